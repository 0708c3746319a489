package analytics

import (
	"sort"
	"strings"

	"github.com/ignite/shipment-analytics/internal/datanorm"
)

// Options lists the values the dashboard offers in its filter dropdowns.
type Options struct {
	Channels          []string `json:"channels"`
	SKUs              []string `json:"skus"`
	SKUsTop10         []string `json:"skusTop10"`
	ProductNames      []string `json:"productNames"`
	ProductNamesTop10 []string `json:"productNamesTop10"`
	PaymentMethods    []string `json:"paymentMethods"`
	Statuses          []string `json:"statuses"`
}

// ComputeFilterOptions collects distinct dimension values. Statuses always
// include the recognized courier labels so the dropdown is stable.
func ComputeFilterOptions(records []*datanorm.Record) Options {
	channels := make(map[string]int)
	skus := make(map[string]int)
	products := make(map[string]int)
	payments := make(map[string]int)
	statuses := make(map[string]int)
	for _, s := range datanorm.ExplicitStatuses() {
		statuses[s] = 0
	}

	for _, r := range records {
		tally(channels, datanorm.Str(r.Channel))
		for _, s := range r.SKUs() {
			tally(skus, s)
		}
		tally(products, datanorm.Str(r.ProductName))
		tally(payments, datanorm.Str(r.PaymentMethod))
		tally(statuses, status(r))
	}

	return Options{
		Channels:          sortedKeys(channels),
		SKUs:              sortedKeys(skus),
		SKUsTop10:         topKeys(skus, 10),
		ProductNames:      sortedKeys(products),
		ProductNamesTop10: topKeys(products, 10),
		PaymentMethods:    sortedKeys(payments),
		Statuses:          sortedKeys(statuses),
	}
}

func tally(m map[string]int, v string) {
	if v = strings.TrimSpace(v); v != "" {
		m[v]++
	}
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func topKeys(m map[string]int, n int) []string {
	out := sortedKeys(m)
	sort.SliceStable(out, func(i, j int) bool { return m[out[i]] > m[out[j]] })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
