package analytics

import (
	"strings"

	"github.com/ignite/shipment-analytics/internal/datanorm"
)

// ProductRow is delivery and revenue performance for one product.
type ProductRow struct {
	ProductName      string  `json:"product_name"`
	Orders           int     `json:"orders"`
	OrderShare       float64 `json:"orderShare"`
	GMV              float64 `json:"gmv"`
	Margin           float64 `json:"margin"`
	DeliveredPercent float64 `json:"deliveredPercent"`
	RTOPercent       float64 `json:"rtoPercent"`
	ReturnedPercent  float64 `json:"returnedPercent"`
}

// ComputeProductAnalysis groups records by product name. GMV and margin
// count delivered orders only.
func ComputeProductAnalysis(records []*datanorm.Record) []ProductRow {
	g := groupBy(records, func(r *datanorm.Record) string { return dim(r.ProductName) })
	out := make([]ProductRow, 0, len(g.keys))
	for _, name := range g.byVolume() {
		recs := g.members[name]
		var gmv, margin money
		delivered, rto, returned := 0, 0, 0
		for _, r := range recs {
			if isDelivered(r) {
				delivered++
				gmv.add(r.OrderValue)
				margin.add(r.Margin)
				if strings.Contains(strings.ToUpper(datanorm.Str(r.OriginalStatus)), "RETURN") {
					returned++
				}
			}
			if isRTO(r) {
				rto++
			}
		}
		out = append(out, ProductRow{
			ProductName:      name,
			Orders:           len(recs),
			OrderShare:       percent(len(recs), len(records)),
			GMV:              gmv.value(),
			Margin:           margin.value(),
			DeliveredPercent: percent(delivered, len(recs)),
			RTOPercent:       percent(rto, len(recs)),
			ReturnedPercent:  percent(returned, delivered),
		})
	}
	return out
}

// SKURow is delivery and revenue performance for one SKU.
type SKURow struct {
	SKU              string  `json:"sku"`
	ProductName      string  `json:"product_name"`
	Orders           int     `json:"orders"`
	OrderShare       float64 `json:"orderShare"`
	GMV              float64 `json:"gmv"`
	AvgOrderValue    float64 `json:"avgOrderValue"`
	Margin           float64 `json:"margin"`
	Delivered        int     `json:"delivered"`
	DeliveredPercent float64 `json:"deliveredPercent"`
	RTO              int     `json:"rto"`
	RTOPercent       float64 `json:"rtoPercent"`
	NDR              int     `json:"ndr"`
	NDRPercent       float64 `json:"ndrPercent"`
	Cancelled        int     `json:"cancelled"`
	CancelledPercent float64 `json:"cancelledPercent"`
	InTransit        int     `json:"inTransit"`
	InTransitPercent float64 `json:"inTransitPercent"`
}

// ComputeSKUAnalysis groups records by their primary SKU. Records without
// any SKU are left out, and so is their share of the total.
func ComputeSKUAnalysis(records []*datanorm.Record) []SKURow {
	var withSKU []*datanorm.Record
	for _, r := range records {
		if r.PrimarySKU() != "" {
			withSKU = append(withSKU, r)
		}
	}

	g := groupBy(withSKU, func(r *datanorm.Record) string { return r.PrimarySKU() })
	out := make([]SKURow, 0, len(g.keys))
	for _, sku := range g.byVolume() {
		recs := g.members[sku]
		row := SKURow{SKU: sku, ProductName: Unknown, Orders: len(recs)}
		var gmv, margin money
		for _, r := range recs {
			if row.ProductName == Unknown && datanorm.Str(r.ProductName) != "" {
				row.ProductName = *r.ProductName
			}
			if isDelivered(r) {
				row.Delivered++
				gmv.add(r.OrderValue)
				margin.add(r.Margin)
			}
			if isRTO(r) {
				row.RTO++
			}
			if r.NDRFlag {
				row.NDR++
			}
			if isCanceledStatus(r) {
				row.Cancelled++
			}
			if datanorm.IsInTransit(r.DeliveryStatus) {
				row.InTransit++
			}
		}
		row.OrderShare = percent(row.Orders, len(withSKU))
		row.GMV = gmv.value()
		row.AvgOrderValue = gmv.per(row.Delivered)
		row.Margin = margin.value()
		row.DeliveredPercent = percent(row.Delivered, row.Orders)
		row.RTOPercent = percent(row.RTO, row.Orders)
		row.NDRPercent = percent(row.NDR, row.Orders)
		row.CancelledPercent = percent(row.Cancelled, row.Orders)
		row.InTransitPercent = percent(row.InTransit, row.Orders)
		out = append(out, row)
	}
	return out
}
