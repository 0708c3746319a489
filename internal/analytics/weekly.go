package analytics

import (
	"sort"

	"github.com/ignite/shipment-analytics/internal/datanorm"
)

// WeeklySummaryRow is one order-week of the weekly summary.
type WeeklySummaryRow struct {
	OrderWeek            string  `json:"order_week"`
	TotalOrders          int     `json:"total_orders"`
	TotalOrderValue      float64 `json:"total_order_value"`
	AvgOrderValue        float64 `json:"avg_order_value"`
	TotalNDR             int     `json:"total_ndr"`
	NDRDeliveredAfter    int     `json:"ndr_delivered_after"`
	NDRRatePercent       float64 `json:"ndr_rate_percent"`
	NDRConversionPercent float64 `json:"ndr_conversion_percent"`
	FADCount             int     `json:"fad_count"`
	OFDCount             int     `json:"ofd_count"`
	DelCount             int     `json:"del_count"`
	NDRCount             int     `json:"ndr_count"`
	RTOCount             int     `json:"rto_count"`
	DeliveredPercent     float64 `json:"delivered_percent"`
	RTOPercent           float64 `json:"rto_percent"`
	AvgTotalTAT          float64 `json:"avg_total_tat"`
}

// ComputeWeeklySummary groups records by order week. GMV counts delivered
// orders only; rates use the week's order count as denominator.
func ComputeWeeklySummary(records []*datanorm.Record) []WeeklySummaryRow {
	g := groupBy(records, weekOf)
	out := make([]WeeklySummaryRow, 0, len(g.keys))
	for _, week := range g.keys {
		recs := g.members[week]
		row := WeeklySummaryRow{OrderWeek: week, TotalOrders: len(recs)}

		var gmv money
		var tat mean
		for _, r := range recs {
			delivered := isDelivered(r)
			if delivered {
				row.DelCount++
				gmv.add(r.OrderValue)
				if r.NDRFlag {
					row.NDRDeliveredAfter++
				} else {
					row.FADCount++
				}
			}
			if r.NDRFlag {
				row.TotalNDR++
			}
			if isOFD(r) {
				row.OFDCount++
			}
			if status(r) == datanorm.StatusNDR {
				row.NDRCount++
			}
			if isRTO(r) {
				row.RTOCount++
			}
			tat.add(r.TotalTAT)
		}

		row.TotalOrderValue = gmv.value()
		row.AvgOrderValue = gmv.per(row.DelCount)
		row.NDRRatePercent = percent(row.TotalNDR, row.TotalOrders)
		row.NDRConversionPercent = percent(row.NDRDeliveredAfter, row.TotalNDR)
		row.DeliveredPercent = percent(row.DelCount, row.TotalOrders)
		row.RTOPercent = percent(row.RTOCount, row.TotalOrders)
		row.AvgTotalTAT = tat.value()
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderWeek < out[j].OrderWeek })
	return out
}

// NDRWeeklyRow summarizes the NDR cohort of one order week.
type NDRWeeklyRow struct {
	OrderWeek            string         `json:"order_week"`
	TotalNDR             int            `json:"total_ndr"`
	NDRDeliveredAfter    int            `json:"ndr_delivered_after"`
	NDRRatePercent       float64        `json:"ndr_rate_percent"`
	NDRConversionPercent float64        `json:"ndr_conversion_percent"`
	NDRReasons           map[string]int `json:"ndr_reasons"`
}

// ComputeNDRWeekly reports, per week, how many orders hit an NDR and how
// many of those were delivered anyway.
func ComputeNDRWeekly(records []*datanorm.Record) []NDRWeeklyRow {
	weekTotals := make(map[string]int)
	for _, r := range records {
		weekTotals[weekOf(r)]++
	}

	var ndr []*datanorm.Record
	for _, r := range records {
		if r.NDRFlag {
			ndr = append(ndr, r)
		}
	}

	g := groupBy(ndr, weekOf)
	out := make([]NDRWeeklyRow, 0, len(g.keys))
	for _, week := range g.keys {
		recs := g.members[week]
		row := NDRWeeklyRow{
			OrderWeek:  week,
			TotalNDR:   len(recs),
			NDRReasons: make(map[string]int),
		}
		for _, r := range recs {
			if isDelivered(r) {
				row.NDRDeliveredAfter++
			}
			row.NDRReasons[dim(r.NDRReason)]++
		}
		row.NDRRatePercent = percent(row.TotalNDR, weekTotals[week])
		row.NDRConversionPercent = percent(row.NDRDeliveredAfter, row.TotalNDR)
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderWeek < out[j].OrderWeek })
	return out
}

// NotCanceled is the bucket for orders that were not cancelled.
const NotCanceled = "Not Canceled"

// CancellationRow is the share of one cancellation bucket within a week.
type CancellationRow struct {
	OrderWeek          string  `json:"order_week"`
	CancellationBucket string  `json:"cancellation_bucket"`
	Count              int     `json:"count"`
	Percentage         float64 `json:"percentage"`
}

func cancellationBucket(r *datanorm.Record) string {
	if reason := datanorm.Str(r.CancellationReason); reason != "" {
		return reason
	}
	if r.CancelledFlag {
		return "Cancelled"
	}
	return NotCanceled
}

// ComputeCancellationTracker splits each week's orders by cancellation
// reason.
func ComputeCancellationTracker(records []*datanorm.Record) []CancellationRow {
	weekTotals := make(map[string]int)
	for _, r := range records {
		weekTotals[weekOf(r)]++
	}

	g := groupBy(records, func(r *datanorm.Record) string {
		return weekOf(r) + "\x00" + cancellationBucket(r)
	})
	out := make([]CancellationRow, 0, len(g.keys))
	for _, key := range g.keys {
		recs := g.members[key]
		week := weekOf(recs[0])
		out = append(out, CancellationRow{
			OrderWeek:          week,
			CancellationBucket: cancellationBucket(recs[0]),
			Count:              len(recs),
			Percentage:         percent(len(recs), weekTotals[week]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderWeek != out[j].OrderWeek {
			return out[i].OrderWeek < out[j].OrderWeek
		}
		return out[i].CancellationBucket < out[j].CancellationBucket
	})
	return out
}
