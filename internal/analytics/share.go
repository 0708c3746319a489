package analytics

import (
	"sort"

	"github.com/ignite/shipment-analytics/internal/datanorm"
	"github.com/ignite/shipment-analytics/internal/filter"
)

// StateRow is delivery performance for one destination state.
type StateRow struct {
	State            string  `json:"state"`
	TotalOrders      int     `json:"total_orders"`
	DelCount         int     `json:"del_count"`
	RTOCount         int     `json:"rto_count"`
	NDRCount         int     `json:"ndr_count"`
	DeliveredPercent float64 `json:"delivered_percent"`
	RTOPercent       float64 `json:"rto_percent"`
	NDRPercent       float64 `json:"ndr_percent"`
	OrderShare       float64 `json:"order_share"`
}

// ComputeStatePerformance reports delivered, RTO and NDR rates per state,
// largest state first.
func ComputeStatePerformance(records []*datanorm.Record) []StateRow {
	g := groupBy(records, func(r *datanorm.Record) string { return dim(r.State) })
	out := make([]StateRow, 0, len(g.keys))
	for _, state := range g.byVolume() {
		recs := g.members[state]
		row := StateRow{
			State:       state,
			TotalOrders: len(recs),
			DelCount:    count(recs, isDelivered),
			RTOCount:    count(recs, isRTO),
			NDRCount:    count(recs, func(r *datanorm.Record) bool { return status(r) == datanorm.StatusNDR }),
		}
		row.DeliveredPercent = percent(row.DelCount, row.TotalOrders)
		row.RTOPercent = percent(row.RTOCount, row.TotalOrders)
		row.NDRPercent = percent(row.NDRCount, row.TotalOrders)
		row.OrderShare = percent(row.TotalOrders, len(records))
		out = append(out, row)
	}
	return out
}

// CategoryRow is order volume and value for one product category.
type CategoryRow struct {
	CategoryName    string  `json:"categoryname"`
	TotalOrders     int     `json:"total_orders"`
	TotalOrderValue float64 `json:"total_order_value"`
	OrderShare      float64 `json:"order_share"`
}

// ComputeCategoryShare groups records by category.
func ComputeCategoryShare(records []*datanorm.Record) []CategoryRow {
	g := groupBy(records, func(r *datanorm.Record) string {
		if r.Category == "" {
			return datanorm.DefaultCategory
		}
		return r.Category
	})
	out := make([]CategoryRow, 0, len(g.keys))
	for _, cat := range g.byVolume() {
		recs := g.members[cat]
		var value money
		for _, r := range recs {
			value.add(r.OrderValue)
		}
		out = append(out, CategoryRow{
			CategoryName:    cat,
			TotalOrders:     len(recs),
			TotalOrderValue: value.value(),
			OrderShare:      percent(len(recs), len(records)),
		})
	}
	return out
}

// ChannelRow is order volume and value for one sales channel.
type ChannelRow struct {
	Channel         string  `json:"channel"`
	TotalOrders     int     `json:"total_orders"`
	TotalOrderValue float64 `json:"total_order_value"`
	OrderShare      float64 `json:"order_share"`
}

// ComputeChannelShare groups records by sales channel.
func ComputeChannelShare(records []*datanorm.Record) []ChannelRow {
	g := groupBy(records, func(r *datanorm.Record) string { return dim(r.Channel) })
	out := make([]ChannelRow, 0, len(g.keys))
	for _, ch := range g.byVolume() {
		recs := g.members[ch]
		var value money
		for _, r := range recs {
			value.add(r.OrderValue)
		}
		out = append(out, ChannelRow{
			Channel:         ch,
			TotalOrders:     len(recs),
			TotalOrderValue: value.value(),
			OrderShare:      percent(len(recs), len(records)),
		})
	}
	return out
}

// NameValue is a labelled share used by pie charts.
type NameValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

// ComputePaymentMethod reports the COD / Online / NaN split.
func ComputePaymentMethod(records []*datanorm.Record) []NameValue {
	g := groupBy(records, func(r *datanorm.Record) string {
		return filter.PaymentCategory(datanorm.Str(r.PaymentMethod))
	})
	out := make([]NameValue, 0, len(g.keys))
	for _, cat := range g.byVolume() {
		n := len(g.members[cat])
		out = append(out, NameValue{Name: cat, Value: percent(n, len(records)), Count: n})
	}
	return out
}

// PaymentOutcomeRow is the share of one status within a payment method.
type PaymentOutcomeRow struct {
	PaymentMethod string  `json:"payment_method"`
	Status        string  `json:"status"`
	Count         int     `json:"count"`
	Percentage    float64 `json:"percentage"`
}

// ComputePaymentMethodOutcome cross-tabulates payment method by status.
func ComputePaymentMethodOutcome(records []*datanorm.Record) []PaymentOutcomeRow {
	payment := func(r *datanorm.Record) string { return dim(r.PaymentMethod) }
	totals := make(map[string]int)
	for _, r := range records {
		totals[payment(r)]++
	}

	g := groupBy(records, func(r *datanorm.Record) string { return payment(r) + "\x00" + status(r) })
	out := make([]PaymentOutcomeRow, 0, len(g.keys))
	for _, key := range g.keys {
		recs := g.members[key]
		pm := payment(recs[0])
		out = append(out, PaymentOutcomeRow{
			PaymentMethod: pm,
			Status:        status(recs[0]),
			Count:         len(recs),
			Percentage:    percent(len(recs), totals[pm]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PaymentMethod != out[j].PaymentMethod {
			return out[i].PaymentMethod < out[j].PaymentMethod
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Status < out[j].Status
	})
	return out
}

// StatusRow is the share of one delivery status.
type StatusRow struct {
	Status     string  `json:"status"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// ComputeOrderStatuses counts records per canonical delivery status.
func ComputeOrderStatuses(records []*datanorm.Record) []StatusRow {
	g := groupBy(records, func(r *datanorm.Record) string {
		if s := status(r); s != "" {
			return s
		}
		return Unknown
	})
	out := make([]StatusRow, 0, len(g.keys))
	for _, s := range g.byVolume() {
		n := len(g.members[s])
		out = append(out, StatusRow{Status: s, Count: n, Percentage: percent(n, len(records))})
	}
	return out
}

// AddressTypeRow is the share of one address quality grade.
type AddressTypeRow struct {
	AddressType string  `json:"addressType"`
	Percent     float64 `json:"percent"`
	Count       int     `json:"count"`
}

var addressTypeLabels = []struct {
	quality datanorm.AddressQuality
	label   string
}{
	{datanorm.AddressInvalid, "Invalid Address%"},
	{datanorm.AddressShort, "Short Address %"},
	{datanorm.AddressGood, "Good Address %"},
}

// ComputeAddressTypeShare always reports all three grades, zeros included.
func ComputeAddressTypeShare(records []*datanorm.Record) []AddressTypeRow {
	counts := make(map[datanorm.AddressQuality]int)
	for _, r := range records {
		q := r.AddressQuality
		if q != datanorm.AddressInvalid && q != datanorm.AddressShort {
			q = datanorm.AddressGood
		}
		counts[q]++
	}
	out := make([]AddressTypeRow, 0, len(addressTypeLabels))
	for _, l := range addressTypeLabels {
		n := counts[l.quality]
		out = append(out, AddressTypeRow{AddressType: l.label, Percent: percent(n, len(records)), Count: n})
	}
	return out
}
