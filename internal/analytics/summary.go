package analytics

import (
	"sort"
	"strings"

	"github.com/ignite/shipment-analytics/internal/datanorm"
)

// Summary is the headline card row of the dashboard.
type Summary struct {
	SyncedOrders      int     `json:"syncedOrders"`
	DeliveredOrders   int     `json:"deliveredOrders"`
	RTOOrders         int     `json:"rtoOrders"`
	NDROrders         int     `json:"ndrOrders"`
	GMV               float64 `json:"gmv"`
	DeliveryPercent   float64 `json:"deliveryPercent"`
	RTOPercent        float64 `json:"rtoPercent"`
	NDRPercent        float64 `json:"ndrPercent"`
	InTransitOrders   int     `json:"inTransitOrders"`
	InTransitPercent  float64 `json:"inTransitPercent"`
	UndeliveredOrders int     `json:"undeliveredOrders"`
}

// ComputeSummaryMetrics totals the whole record set. GMV counts delivered
// orders only.
func ComputeSummaryMetrics(records []*datanorm.Record) Summary {
	s := Summary{SyncedOrders: len(records)}
	var gmv money
	for _, r := range records {
		if isDelivered(r) {
			s.DeliveredOrders++
			gmv.add(r.OrderValue)
		}
		if isRTO(r) {
			s.RTOOrders++
		}
		if r.NDRFlag {
			s.NDROrders++
		}
		if datanorm.IsInTransit(r.DeliveryStatus) {
			s.InTransitOrders++
		}
	}
	s.GMV = gmv.value()
	s.DeliveryPercent = percent(s.DeliveredOrders, s.SyncedOrders)
	s.RTOPercent = percent(s.RTOOrders, s.SyncedOrders)
	s.NDRPercent = percent(s.NDROrders, s.SyncedOrders)
	s.InTransitPercent = percent(s.InTransitOrders, s.SyncedOrders)
	s.UndeliveredOrders = s.SyncedOrders - s.DeliveredOrders
	return s
}

// UnknownException labels NDRs without a recorded reason.
const UnknownException = "Unknown Exception"

// NDRReasonRow counts NDRs for one reason and how many recovered.
type NDRReasonRow struct {
	Reason    string  `json:"reason"`
	Delivered int     `json:"delivered"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

// ComputeNDRCount groups NDR records by reason, most frequent first.
func ComputeNDRCount(records []*datanorm.Record) []NDRReasonRow {
	var ndr []*datanorm.Record
	for _, r := range records {
		if r.NDRFlag {
			ndr = append(ndr, r)
		}
	}
	g := groupBy(ndr, func(r *datanorm.Record) string {
		if reason := strings.TrimSpace(datanorm.Str(r.NDRReason)); reason != "" {
			return reason
		}
		return UnknownException
	})
	out := make([]NDRReasonRow, 0, len(g.keys))
	for _, reason := range g.byVolume() {
		recs := g.members[reason]
		delivered := count(recs, isDelivered)
		out = append(out, NDRReasonRow{
			Reason:    reason,
			Delivered: delivered,
			Total:     len(recs),
			Percent:   percent(delivered, len(recs)),
		})
	}
	return out
}

// MetricPercent is one named percentage.
type MetricPercent struct {
	Metric  string  `json:"metric"`
	Percent float64 `json:"percent"`
	Count   int     `json:"count"`
}

// ComputeFadDelCanRTO reports the outcome funnel. The buckets overlap: a
// delivered first-attempt order counts in both FAD% and Del%.
func ComputeFadDelCanRTO(records []*datanorm.Record) []MetricPercent {
	names := []string{"FAD%", "Del%", "OFD%", "NDR%", "Intransit%", "RTO%", "Canceled%", "RVP%"}
	counts := make(map[string]int, len(names))
	for _, r := range records {
		s := status(r)
		delivered := isDelivered(r)
		rto := isRTO(r)
		canceled := r.CancelledFlag || isCanceledStatus(r)
		if delivered && !r.NDRFlag {
			counts["FAD%"]++
		}
		if delivered {
			counts["Del%"]++
		}
		if isOFD(r) {
			counts["OFD%"]++
		}
		if r.NDRFlag || strings.Contains(s, "NDR") {
			counts["NDR%"]++
		}
		if datanorm.IsInTransit(s) && !isOFD(r) && !canceled {
			counts["Intransit%"]++
		}
		if rto {
			counts["RTO%"]++
		}
		if canceled {
			counts["Canceled%"]++
		}
		if strings.Contains(s, "RVP") {
			counts["RVP%"]++
		}
	}
	out := make([]MetricPercent, 0, len(names))
	for _, name := range names {
		out = append(out, MetricPercent{Metric: name, Percent: percent(counts[name], len(records)), Count: counts[name]})
	}
	return out
}

// ReasonPercent is the share of one cancellation reason.
type ReasonPercent struct {
	Reason  string  `json:"reason"`
	Percent float64 `json:"percent"`
	Count   int     `json:"count"`
}

// ComputeCancellationReasonTracker lists cancellation reasons with the
// non-cancelled share first.
func ComputeCancellationReasonTracker(records []*datanorm.Record) []ReasonPercent {
	counts := make(map[string]int)
	for _, r := range records {
		cancelled := r.CancelledFlag || isCanceledStatus(r)
		switch reason := strings.TrimSpace(datanorm.Str(r.CancellationReason)); {
		case reason != "":
			counts[reason]++
		case cancelled:
			counts["Cancelled"]++
		default:
			counts[NotCanceled]++
		}
	}
	out := make([]ReasonPercent, 0, len(counts))
	for reason, n := range counts {
		out = append(out, ReasonPercent{Reason: reason, Percent: percent(n, len(records)), Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		ni, nj := out[i].Reason == NotCanceled, out[j].Reason == NotCanceled
		if ni != nj {
			return ni
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

// TATMetric is an average turn-around time in days. Average is null when
// no record carried both milestones.
type TATMetric struct {
	Metric  string   `json:"metric"`
	Average *float64 `json:"average"`
	Count   int      `json:"count"`
}

// ComputeAverageOrderTAT averages each TAT leg in days, then appends the
// order count as "Approved Orders".
func ComputeAverageOrderTAT(records []*datanorm.Record) []TATMetric {
	legs := []struct {
		name string
		hrs  func(*datanorm.Record) *float64
	}{
		{"Order Placed to Pickup TAT", func(r *datanorm.Record) *float64 { return r.OrderToPickupTAT }},
		{"Order Placed - Approval TAT", func(r *datanorm.Record) *float64 { return r.OrderToApprovalTAT }},
		{"Approval to AWB TAT", func(r *datanorm.Record) *float64 { return r.ApprovalToAWBTAT }},
		{"AWB to Pickup TAT", func(r *datanorm.Record) *float64 { return r.AWBToPickupTAT }},
		{"Pickup OFD TAT", func(r *datanorm.Record) *float64 { return r.PickupToOFDTAT }},
		{"Order Placed to OFD TAT", func(r *datanorm.Record) *float64 { return r.OrderToOFDTAT }},
		{"OFD to Delivery TAT", func(r *datanorm.Record) *float64 { return r.OFDToDeliveryTAT }},
		{"Total TAT", func(r *datanorm.Record) *float64 { return r.TotalTAT }},
	}
	out := make([]TATMetric, 0, len(legs)+1)
	for _, leg := range legs {
		var m mean
		for _, r := range records {
			m.add(leg.hrs(r))
		}
		metric := TATMetric{Metric: leg.name, Count: m.count}
		if m.count > 0 {
			days := round2(m.sum / float64(m.count) / 24)
			metric.Average = &days
		}
		out = append(out, metric)
	}
	return append(out, TATMetric{Metric: "Approved Orders", Count: len(records)})
}

// PartnerRow is the outcome split for one courier in one state.
type PartnerRow struct {
	State       string `json:"state"`
	Courier     string `json:"courier"`
	TotalOrders int    `json:"total_orders"`
	Delivered   int    `json:"delivered"`
	Cancelled   int    `json:"cancelled"`
	InTransit   int    `json:"in_transit"`
	RTO         int    `json:"rto"`
	Other       int    `json:"other"`
}

// ComputeDeliveryPartnerAnalysis cross-tabulates state by courier. Each
// record lands in exactly one outcome column.
func ComputeDeliveryPartnerAnalysis(records []*datanorm.Record) []PartnerRow {
	g := groupBy(records, func(r *datanorm.Record) string { return dim(r.State) + "\x00" + dim(r.Courier) })
	out := make([]PartnerRow, 0, len(g.keys))
	for _, key := range g.byVolume() {
		recs := g.members[key]
		row := PartnerRow{State: dim(recs[0].State), Courier: dim(recs[0].Courier), TotalOrders: len(recs)}
		for _, r := range recs {
			switch {
			case isDelivered(r):
				row.Delivered++
			case isRTO(r):
				row.RTO++
			case isCanceledStatus(r):
				row.Cancelled++
			case datanorm.IsInTransit(r.DeliveryStatus):
				row.InTransit++
			default:
				row.Other++
			}
		}
		out = append(out, row)
	}
	return out
}
