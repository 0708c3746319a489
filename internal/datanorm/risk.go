package datanorm

import "strings"

// Risk buckets.
const (
	RiskLow     = "Low"
	RiskMedium  = "Medium"
	RiskHigh    = "High"
	RiskUnknown = "Unknown"
)

// riskLabels are the midpoints used when a risk column carries a label
// instead of a score.
var riskLabels = map[string]float64{
	"low":       0.2,
	"medium":    0.5,
	"high":      0.8,
	"very-high": 0.95,
	"very high": 0.95,
	"very_high": 0.95,
	"veryhigh":  0.95,
}

// NormalizeRisk converts a risk label to its midpoint score. Numbers pass
// through unscaled, so anything outside [0,1] buckets as Unknown.
func NormalizeRisk(v any) (float64, bool) {
	v = StandardizeMissing(v)
	if v == nil {
		return 0, false
	}
	if s, ok := v.(string); ok {
		if score, ok := riskLabels[strings.ToLower(strings.TrimSpace(s))]; ok {
			return score, true
		}
	}
	n := ParseNumber(v)
	if n == nil || *n < 0 {
		return 0, false
	}
	return *n, true
}

// RiskBucket places a score into Low [0,0.3), Medium [0.3,0.6) or
// High [0.6,1.0]; anything else is Unknown.
func RiskBucket(score float64, ok bool) string {
	switch {
	case !ok:
		return RiskUnknown
	case score >= 0 && score < 0.3:
		return RiskLow
	case score >= 0.3 && score < 0.6:
		return RiskMedium
	case score >= 0.6 && score <= 1.0:
		return RiskHigh
	default:
		return RiskUnknown
	}
}

// RiskScore resolves the risk of a record: the courier risk label when
// present, otherwise the order risk score.
func (r *Record) RiskScore() (float64, bool) {
	if r.RTORisk != nil {
		if score, ok := NormalizeRisk(*r.RTORisk); ok {
			return score, true
		}
	}
	if r.OrderRiskScore != nil {
		return *r.OrderRiskScore, true
	}
	return 0, false
}
