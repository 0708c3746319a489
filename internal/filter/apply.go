package filter

import (
	"strings"

	"github.com/ignite/shipment-analytics/internal/datanorm"
	"golang.org/x/text/cases"
)

// Apply returns the records matching every dimension of f. Dimensions are
// ANDed; set dimensions match when any member matches. The input slice is
// never modified and an empty filter returns it unchanged.
func Apply(records []*datanorm.Record, f Filter) []*datanorm.Record {
	f = f.Canonical()
	if f.IsEmpty() {
		return records
	}

	m := newMatcher(f)
	out := make([]*datanorm.Record, 0, len(records))
	for _, r := range records {
		if m.match(r) {
			out = append(out, r)
		}
	}
	return out
}

type matcher struct {
	fold     cases.Caser
	f        Filter
	start    string
	end      string
	skus     map[string]bool
	products map[string]bool
}

func newMatcher(f Filter) *matcher {
	m := &matcher{fold: cases.Fold(), f: f}
	m.start = boundDate(f.StartDate)
	m.end = boundDate(f.EndDate)
	if len(f.SKU) > 0 {
		m.skus = make(map[string]bool, len(f.SKU))
		for _, s := range f.SKU {
			m.skus[s] = true
		}
	}
	if len(f.ProductName) > 0 {
		m.products = make(map[string]bool, len(f.ProductName))
		for _, p := range f.ProductName {
			m.products[p] = true
		}
	}
	return m
}

// boundDate renders a filter bound as YYYY-MM-DD. Unparseable bounds are
// dropped rather than rejecting the request.
func boundDate(s string) string {
	if s == "" {
		return ""
	}
	return datanorm.Str(datanorm.FormatDate(datanorm.ParseDate(s)))
}

func (m *matcher) match(r *datanorm.Record) bool {
	if m.start != "" || m.end != "" {
		d := datanorm.Str(r.OrderDate)
		if d == "" {
			return false
		}
		if m.start != "" && d < m.start {
			return false
		}
		if m.end != "" && d > m.end {
			return false
		}
	}
	if m.f.OrderStatus != "" &&
		!m.equal(r.DeliveryStatus, m.f.OrderStatus) && !m.equal(datanorm.Str(r.OriginalStatus), m.f.OrderStatus) {
		return false
	}
	if m.f.PaymentMethod != "" {
		pm := datanorm.Str(r.PaymentMethod)
		if !m.equal(pm, m.f.PaymentMethod) && !m.equal(PaymentCategory(pm), m.f.PaymentMethod) {
			return false
		}
	}
	if m.f.Channel != "" && !m.equal(datanorm.Str(r.Channel), m.f.Channel) {
		return false
	}
	if m.skus != nil && !m.anySKU(r) {
		return false
	}
	if m.products != nil && !m.products[datanorm.Str(r.ProductName)] {
		return false
	}
	return true
}

func (m *matcher) equal(a, b string) bool {
	if a == "" {
		return false
	}
	return m.fold.String(strings.TrimSpace(a)) == m.fold.String(b)
}

func (m *matcher) anySKU(r *datanorm.Record) bool {
	for _, s := range r.SKUs() {
		if m.skus[s] {
			return true
		}
	}
	return false
}

// Payment categories shown by the payment-method report.
const (
	PaymentCOD     = "COD"
	PaymentOnline  = "Online"
	PaymentUnknown = "NaN"
)

// PaymentCategory buckets a raw payment method into COD, Online or NaN.
func PaymentCategory(method string) string {
	u := strings.ToUpper(strings.TrimSpace(method))
	switch {
	case u == "":
		return PaymentUnknown
	case strings.Contains(u, "COD") || strings.Contains(u, "CASH"):
		return PaymentCOD
	case strings.Contains(u, "ONLINE") || strings.Contains(u, "PREPAID") || strings.Contains(u, "PAID"):
		return PaymentOnline
	default:
		return PaymentUnknown
	}
}
