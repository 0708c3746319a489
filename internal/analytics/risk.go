package analytics

import (
	"github.com/ignite/shipment-analytics/internal/datanorm"
)

// Row limits for the pincode risk tables.
const (
	PincodeRiskTopN        = 30
	PincodeCourierRiskTopN = 20
)

// RiskStats aggregates risk over a set of records.
type RiskStats struct {
	TotalOrders     int     `json:"total_orders"`
	ScoredOrders    int     `json:"scored_orders"`
	AvgRisk         float64 `json:"avg_risk"`
	RiskBucket      string  `json:"risk_bucket"`
	Low             int     `json:"low"`
	Medium          int     `json:"medium"`
	High            int     `json:"high"`
	Unknown         int     `json:"unknown"`
	HighRiskPercent float64 `json:"high_risk_percent"`
	RTOCount        int     `json:"rto_count"`
	RTOPercent      float64 `json:"rto_percent"`
	Delivered       int     `json:"delivered"`
	DeliveredPct    float64 `json:"delivered_percent"`
}

func riskStats(recs []*datanorm.Record) RiskStats {
	s := RiskStats{TotalOrders: len(recs)}
	var sum float64
	for _, r := range recs {
		score, ok := r.RiskScore()
		switch datanorm.RiskBucket(score, ok) {
		case datanorm.RiskLow:
			s.Low++
		case datanorm.RiskMedium:
			s.Medium++
		case datanorm.RiskHigh:
			s.High++
		default:
			s.Unknown++
		}
		if ok {
			s.ScoredOrders++
			sum += score
		}
		if isRTO(r) || r.RTOFlag {
			s.RTOCount++
		}
		if isDelivered(r) {
			s.Delivered++
		}
	}
	if s.ScoredOrders > 0 {
		avg := sum / float64(s.ScoredOrders)
		s.AvgRisk = round2(avg)
		s.RiskBucket = datanorm.RiskBucket(avg, true)
	} else {
		s.RiskBucket = datanorm.RiskUnknown
	}
	s.HighRiskPercent = percent(s.High, s.TotalOrders)
	s.RTOPercent = percent(s.RTOCount, s.TotalOrders)
	s.DeliveredPct = percent(s.Delivered, s.TotalOrders)
	return s
}

// CourierRiskRow is risk exposure for one courier.
type CourierRiskRow struct {
	Courier string `json:"courier"`
	RiskStats
}

// ComputeCourierRisk reports risk buckets and RTO rate per courier.
func ComputeCourierRisk(records []*datanorm.Record) []CourierRiskRow {
	g := groupBy(records, func(r *datanorm.Record) string { return dim(r.Courier) })
	out := make([]CourierRiskRow, 0, len(g.keys))
	for _, courier := range g.byVolume() {
		out = append(out, CourierRiskRow{Courier: courier, RiskStats: riskStats(g.members[courier])})
	}
	return out
}

// PincodeRiskRow is risk exposure for one destination pincode.
type PincodeRiskRow struct {
	Pincode string `json:"pincode"`
	RiskStats
}

// ComputePincodeRisk keeps the busiest pincodes, chosen by volume before
// any rate is computed.
func ComputePincodeRisk(records []*datanorm.Record) []PincodeRiskRow {
	g := groupBy(records, func(r *datanorm.Record) string { return dim(r.Pincode) })
	top := g.topN(PincodeRiskTopN)
	out := make([]PincodeRiskRow, 0, len(top))
	for _, pin := range top {
		out = append(out, PincodeRiskRow{Pincode: pin, RiskStats: riskStats(g.members[pin])})
	}
	return out
}

// PincodeCourierRiskRow is risk exposure for one courier in one pincode.
type PincodeCourierRiskRow struct {
	Pincode string `json:"pincode"`
	Courier string `json:"courier"`
	RiskStats
}

// ComputePincodeCourierRisk cross-tabulates the busiest pincodes by
// courier. Rows follow pincode volume, then courier volume.
func ComputePincodeCourierRisk(records []*datanorm.Record) []PincodeCourierRiskRow {
	pins := groupBy(records, func(r *datanorm.Record) string { return dim(r.Pincode) })
	top := pins.topN(PincodeCourierRiskTopN)
	out := make([]PincodeCourierRiskRow, 0, len(top))
	for _, pin := range top {
		couriers := groupBy(pins.members[pin], func(r *datanorm.Record) string { return dim(r.Courier) })
		for _, courier := range couriers.byVolume() {
			out = append(out, PincodeCourierRiskRow{
				Pincode:   pin,
				Courier:   courier,
				RiskStats: riskStats(couriers.members[courier]),
			})
		}
	}
	return out
}
