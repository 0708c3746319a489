// Package analytics computes the dashboard reports over normalized shipment
// records. Every report is a pure function of its input slice: no I/O, no
// shared state, safe to run concurrently for different filters.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ignite/shipment-analytics/internal/datanorm"
	"github.com/shopspring/decimal"
)

// Func computes one report. List reports return a non-nil slice.
type Func func(records []*datanorm.Record) any

// Report names.
const (
	WeeklySummary             = "weekly-summary"
	NDRWeekly                 = "ndr-weekly"
	StatePerformance          = "state-performance"
	CategoryShare             = "category-share"
	ChannelShare              = "channel-share"
	PaymentMethod             = "payment-method"
	PaymentMethodOutcome      = "payment-method-outcome"
	ProductAnalysis           = "product-analysis"
	SKUAnalysis               = "sku-analysis"
	SummaryMetrics            = "summary-metrics"
	OrderStatuses             = "order-statuses"
	NDRCount                  = "ndr-count"
	AddressTypeShare          = "address-type-share"
	AverageOrderTAT           = "average-order-tat"
	FadDelCanRTO              = "fad-del-can-rto"
	CancellationTracker       = "cancellation-tracker"
	CancellationReasonTracker = "cancellation-reason-tracker"
	DeliveryPartnerAnalysis   = "delivery-partner-analysis"
	CourierRisk               = "courier-risk"
	PincodeRisk               = "pincode-risk"
	PincodeCourierRisk        = "pincode-courier-risk"
	FilterOptions             = "filter-options"
)

// Reports maps every report name to its function.
var Reports = map[string]Func{
	WeeklySummary:             func(r []*datanorm.Record) any { return ComputeWeeklySummary(r) },
	NDRWeekly:                 func(r []*datanorm.Record) any { return ComputeNDRWeekly(r) },
	StatePerformance:          func(r []*datanorm.Record) any { return ComputeStatePerformance(r) },
	CategoryShare:             func(r []*datanorm.Record) any { return ComputeCategoryShare(r) },
	ChannelShare:              func(r []*datanorm.Record) any { return ComputeChannelShare(r) },
	PaymentMethod:             func(r []*datanorm.Record) any { return ComputePaymentMethod(r) },
	PaymentMethodOutcome:      func(r []*datanorm.Record) any { return ComputePaymentMethodOutcome(r) },
	ProductAnalysis:           func(r []*datanorm.Record) any { return ComputeProductAnalysis(r) },
	SKUAnalysis:               func(r []*datanorm.Record) any { return ComputeSKUAnalysis(r) },
	SummaryMetrics:            func(r []*datanorm.Record) any { return ComputeSummaryMetrics(r) },
	OrderStatuses:             func(r []*datanorm.Record) any { return ComputeOrderStatuses(r) },
	NDRCount:                  func(r []*datanorm.Record) any { return ComputeNDRCount(r) },
	AddressTypeShare:          func(r []*datanorm.Record) any { return ComputeAddressTypeShare(r) },
	AverageOrderTAT:           func(r []*datanorm.Record) any { return ComputeAverageOrderTAT(r) },
	FadDelCanRTO:              func(r []*datanorm.Record) any { return ComputeFadDelCanRTO(r) },
	CancellationTracker:       func(r []*datanorm.Record) any { return ComputeCancellationTracker(r) },
	CancellationReasonTracker: func(r []*datanorm.Record) any { return ComputeCancellationReasonTracker(r) },
	DeliveryPartnerAnalysis:   func(r []*datanorm.Record) any { return ComputeDeliveryPartnerAnalysis(r) },
	CourierRisk:               func(r []*datanorm.Record) any { return ComputeCourierRisk(r) },
	PincodeRisk:               func(r []*datanorm.Record) any { return ComputePincodeRisk(r) },
	PincodeCourierRisk:        func(r []*datanorm.Record) any { return ComputePincodeCourierRisk(r) },
	FilterOptions:             func(r []*datanorm.Record) any { return ComputeFilterOptions(r) },
}

// Names returns every report name in sorted order.
func Names() []string {
	names := make([]string, 0, len(Reports))
	for name := range Reports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known reports whether name is a registered report.
func Known(name string) bool {
	_, ok := Reports[name]
	return ok
}

// Compute runs a single report. A panic inside the report is returned as
// an error so one bad report cannot take down a worker.
func Compute(name string, records []*datanorm.Record) (result any, err error) {
	fn, ok := Reports[name]
	if !ok {
		return nil, fmt.Errorf("unknown report %q", name)
	}
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("report %s: panic: %v", name, r)
		}
	}()
	return fn(records), nil
}

// ComputeAll runs every report. It stops at the first failing report.
func ComputeAll(records []*datanorm.Record) (map[string]any, error) {
	out := make(map[string]any, len(Reports))
	for _, name := range Names() {
		res, err := Compute(name, records)
		if err != nil {
			return nil, err
		}
		out[name] = res
	}
	return out, nil
}

// Unknown labels a missing dimension value.
const Unknown = "Unknown"

// percent is 100*n/d rounded to two places, or 0 when d is zero.
func percent(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return round2(float64(n) / float64(d) * 100)
}

func round2(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return math.Round(f*100) / 100
}

// money accumulates currency amounts without float drift.
type money struct{ sum decimal.Decimal }

func (m *money) add(v *float64) {
	if v != nil {
		m.sum = m.sum.Add(decimal.NewFromFloat(*v))
	}
}

func (m money) value() float64 {
	return m.sum.Round(2).InexactFloat64()
}

// per divides the sum by n, 0 when n is zero.
func (m money) per(n int) float64 {
	if n == 0 {
		return 0
	}
	return m.sum.Div(decimal.NewFromInt(int64(n))).Round(2).InexactFloat64()
}

// mean tracks an average over optional values.
type mean struct {
	sum   float64
	count int
}

func (m *mean) add(v *float64) {
	if v != nil {
		m.sum += *v
		m.count++
	}
}

func (m mean) value() float64 {
	if m.count == 0 {
		return 0
	}
	return round2(m.sum / float64(m.count))
}

// status returns the upper-cased canonical status of a record.
func status(r *datanorm.Record) string {
	return strings.ToUpper(strings.TrimSpace(r.DeliveryStatus))
}

func isDelivered(r *datanorm.Record) bool { return status(r) == datanorm.StatusDelivered }

func isOFD(r *datanorm.Record) bool {
	s := status(r)
	return s == datanorm.StatusOFD || s == datanorm.StatusOutForDeliver
}

func isRTO(r *datanorm.Record) bool { return datanorm.IsRTO(r.DeliveryStatus) }

func isCanceledStatus(r *datanorm.Record) bool { return datanorm.IsCancelled(r.DeliveryStatus) }

// dim returns a dimension value or Unknown.
func dim(s *string) string {
	if v := strings.TrimSpace(datanorm.Str(s)); v != "" {
		return v
	}
	return Unknown
}

func weekOf(r *datanorm.Record) string { return dim(r.OrderWeek) }

// group partitions records by key, remembering first-seen key order.
type group struct {
	keys    []string
	members map[string][]*datanorm.Record
}

func groupBy(records []*datanorm.Record, key func(*datanorm.Record) string) *group {
	g := &group{members: make(map[string][]*datanorm.Record)}
	for _, r := range records {
		k := key(r)
		if _, ok := g.members[k]; !ok {
			g.keys = append(g.keys, k)
		}
		g.members[k] = append(g.members[k], r)
	}
	return g
}

// byVolume returns the group keys ordered by member count, largest first,
// ties broken by key.
func (g *group) byVolume() []string {
	keys := append([]string(nil), g.keys...)
	sort.SliceStable(keys, func(i, j int) bool {
		ni, nj := len(g.members[keys[i]]), len(g.members[keys[j]])
		if ni != nj {
			return ni > nj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// topN returns at most n keys by volume.
func (g *group) topN(n int) []string {
	keys := g.byVolume()
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func count(records []*datanorm.Record, pred func(*datanorm.Record) bool) int {
	n := 0
	for _, r := range records {
		if pred(r) {
			n++
		}
	}
	return n
}
