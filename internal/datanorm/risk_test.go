package datanorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRisk(t *testing.T) {
	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{"Low", 0.2, true},
		{" medium ", 0.5, true},
		{"HIGH", 0.8, true},
		{"very-high", 0.95, true},
		{"Very High", 0.95, true},
		{0.42, 0.42, true},
		{"0.31", 0.31, true},
		{1.0, 1.0, true},
		{"75", 75, true},
		{45.0, 45, true},
		{150.0, 150, true},
		{-1.0, 0, false},
		{"n/a", 0, false},
		{nil, 0, false},
		{"unknown", 0, false},
	}
	for _, tt := range tests {
		got, ok := NormalizeRisk(tt.in)
		assert.Equal(t, tt.wantOK, ok, "%v", tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, "%v", tt.in)
	}
}

func TestRawNumbersAreNotRescaled(t *testing.T) {
	tests := []struct {
		in     any
		bucket string
	}{
		{"low", RiskLow},
		{"Medium", RiskMedium},
		{"very-high", RiskHigh},
		{"0.31", RiskMedium},
		{0.6, RiskHigh},
		{45.0, RiskUnknown},
		{"75%", RiskUnknown},
		{100.0, RiskUnknown},
	}
	for _, tt := range tests {
		score, ok := NormalizeRisk(tt.in)
		assert.Equal(t, tt.bucket, RiskBucket(score, ok), "%v", tt.in)
	}
}

func TestRiskBucket(t *testing.T) {
	assert.Equal(t, RiskLow, RiskBucket(0, true))
	assert.Equal(t, RiskLow, RiskBucket(0.29, true))
	assert.Equal(t, RiskMedium, RiskBucket(0.3, true))
	assert.Equal(t, RiskHigh, RiskBucket(0.6, true))
	assert.Equal(t, RiskHigh, RiskBucket(1.0, true))
	assert.Equal(t, RiskUnknown, RiskBucket(1.5, true))
	assert.Equal(t, RiskUnknown, RiskBucket(0.5, false))
}

func TestRecordRiskScore(t *testing.T) {
	score := 0.4
	rec := &Record{RTORisk: strp("High"), OrderRiskScore: &score}
	got, ok := rec.RiskScore()
	assert.True(t, ok)
	assert.Equal(t, 0.8, got)

	rec.RTORisk = strp("garbage")
	got, ok = rec.RiskScore()
	assert.True(t, ok)
	assert.Equal(t, 0.4, got)

	_, ok = (&Record{}).RiskScore()
	assert.False(t, ok)
}
