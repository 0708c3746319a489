package datanorm

import (
	"fmt"
	"strings"
	"time"
)

// Preprocessor turns raw spreadsheet rows into normalized records.
type Preprocessor struct {
	classifier *Classifier
	now        func() time.Time
}

// NewPreprocessor returns a Preprocessor stamping records with the wall clock.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{classifier: NewClassifier(), now: time.Now}
}

var defaultPreprocessor = NewPreprocessor()

// Preprocess normalizes one raw record with the package default Preprocessor.
func Preprocess(raw RawRecord) *Record {
	return defaultPreprocessor.Process(raw)
}

// PreprocessAll normalizes a batch, preserving input order.
func PreprocessAll(raws []RawRecord) []*Record {
	out := make([]*Record, len(raws))
	for i, raw := range raws {
		out[i] = defaultPreprocessor.Process(raw)
	}
	return out
}

// Process normalizes a single record. Every field degrades to null, false or
// its default on bad input; the call itself never fails.
func (p *Preprocessor) Process(raw RawRecord) *Record {
	norm := NormalizeKeys(raw)
	for k, v := range norm {
		norm[k] = StandardizeMissing(v)
	}

	rec := &Record{}
	dates := p.mapDates(norm, rec)
	p.mapNumbers(norm, rec)
	p.mapStrings(norm, rec)

	status := StatusText(raw, norm)
	if status != "" {
		rec.OriginalStatus = &status
	}
	rec.OrderWeek = OrderWeek(dates[FieldOrderDate])
	rec.DeliveryStatus = p.classifier.Classify(status, rec)

	rec.NDRFlag = rec.NDRDate != nil || anyTrue(norm, ndrMarkers)
	rec.RTOFlag = rec.RTODate != nil || anyTrue(norm, rtoMarkers) || strings.HasPrefix(rec.DeliveryStatus, "RTO")
	rec.CancelledFlag = IsCancelled(rec.DeliveryStatus) || IsCancelled(status) ||
		rec.CancellationReason != nil || anyTrue(norm, cancelledMarkers)

	order, pickup, ofd, delivered := dates[FieldOrderDate], dates[FieldPickupDate], dates[FieldOFDDate], dates[FieldDeliveryDate]
	approval, awb := dates[FieldApprovalDate], dates[FieldAWBAssignedDate]
	if approval == nil {
		approval = order
	}
	rec.OrderToPickupTAT = HoursBetween(order, pickup)
	rec.PickupToOFDTAT = HoursBetween(pickup, ofd)
	rec.OFDToDeliveryTAT = HoursBetween(ofd, delivered)
	rec.TotalTAT = HoursBetween(order, delivered)
	rec.OrderToApprovalTAT = HoursBetween(order, approval)
	rec.ApprovalToAWBTAT = HoursBetween(approval, awb)
	rec.AWBToPickupTAT = HoursBetween(awb, pickup)
	rec.OrderToOFDTAT = HoursBetween(order, ofd)

	rec.AddressQuality = GradeAddress(rec)
	rec.Extra = extraFields(norm)
	rec.ProcessedAt = p.now().UTC()
	return rec
}

func (p *Preprocessor) mapDates(norm map[string]any, rec *Record) map[CanonicalField]*time.Time {
	targets := []struct {
		field CanonicalField
		dst   **string
	}{
		{FieldOrderDate, &rec.OrderDate},
		{FieldPickupDate, &rec.PickupDate},
		{FieldOFDDate, &rec.OFDDate},
		{FieldDeliveryDate, &rec.DeliveryDate},
		{FieldNDRDate, &rec.NDRDate},
		{FieldRTODate, &rec.RTODate},
		{FieldRTODeliveredDate, &rec.RTODeliveredDate},
		{FieldApprovalDate, &rec.ApprovalDate},
		{FieldAWBAssignedDate, &rec.AWBAssignedDate},
	}
	parsed := make(map[CanonicalField]*time.Time, len(targets))
	for _, t := range targets {
		for _, alias := range fieldAliases[t.field] {
			if d := ParseDate(norm[alias]); d != nil {
				parsed[t.field] = d
				*t.dst = FormatDate(d)
				break
			}
		}
	}
	return parsed
}

func (p *Preprocessor) mapNumbers(norm map[string]any, rec *Record) {
	rec.OrderValue = firstNumber(norm, FieldOrderValue)
	rec.OrderPrice = firstNumber(norm, FieldOrderPrice)
	rec.Weight = firstNumber(norm, FieldWeight)
	rec.Margin = firstNumber(norm, FieldMargin)

	for _, alias := range fieldAliases[FieldOrderRiskScore] {
		if score, ok := NormalizeRisk(norm[alias]); ok {
			rec.OrderRiskScore = &score
			break
		}
	}
}

func (p *Preprocessor) mapStrings(norm map[string]any, rec *Record) {
	targets := []struct {
		field CanonicalField
		dst   **string
	}{
		{FieldChannel, &rec.Channel},
		{FieldPaymentMethod, &rec.PaymentMethod},
		{FieldSKU, &rec.SKU},
		{FieldMasterSKU, &rec.MasterSKU},
		{FieldChannelSKU, &rec.ChannelSKU},
		{FieldProductName, &rec.ProductName},
		{FieldCourier, &rec.Courier},
		{FieldRTORisk, &rec.RTORisk},
		{FieldNDRReason, &rec.NDRReason},
		{FieldCancellationReason, &rec.CancellationReason},
		{FieldAddressLine1, &rec.AddressLine1},
		{FieldAddressLine2, &rec.AddressLine2},
		{FieldCity, &rec.City},
		{FieldState, &rec.State},
		{FieldPincode, &rec.Pincode},
	}
	for _, t := range targets {
		*t.dst = firstString(norm, t.field)
	}

	rec.Category = DefaultCategory
	if c := firstString(norm, FieldCategory); c != nil {
		rec.Category = *c
	}
}

func firstNumber(norm map[string]any, f CanonicalField) *float64 {
	for _, alias := range fieldAliases[f] {
		if n := ParseNumber(norm[alias]); n != nil {
			return n
		}
	}
	return nil
}

func firstString(norm map[string]any, f CanonicalField) *string {
	for _, alias := range fieldAliases[f] {
		if s := ParseString(norm[alias]); s != nil {
			return s
		}
	}
	return nil
}

func anyTrue(norm map[string]any, keys []string) bool {
	for _, k := range keys {
		if ParseBoolean(norm[k]) {
			return true
		}
	}
	return false
}

func extraFields(norm map[string]any) map[string]any {
	var extra map[string]any
	for k, v := range norm {
		if v == nil || k == "" || consumedKeys[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}
	return extra
}

// OrderWeek buckets a date into its day-of-month range: 1-7, 8-14, 15-21,
// 22-28 and 29 through the last day of the month. 2025-01-30 becomes
// "2025-01-29-31".
func OrderWeek(t *time.Time) *string {
	if t == nil {
		return nil
	}
	day := t.Day()
	var start, end int
	switch {
	case day <= 7:
		start, end = 1, 7
	case day <= 14:
		start, end = 8, 14
	case day <= 21:
		start, end = 15, 21
	case day <= 28:
		start, end = 22, 28
	default:
		start, end = 29, daysIn(t.Year(), t.Month())
	}
	label := fmt.Sprintf("%04d-%02d-%02d-%02d", t.Year(), int(t.Month()), start, end)
	return &label
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// HoursBetween returns the non-negative interval from -> to in hours, or
// nil when either end is unknown or the interval runs backwards.
func HoursBetween(from, to *time.Time) *float64 {
	if from == nil || to == nil {
		return nil
	}
	h := to.Sub(*from).Hours()
	if h < 0 {
		return nil
	}
	return &h
}

// GradeAddress classifies the delivery address of a record.
func GradeAddress(rec *Record) AddressQuality {
	line1 := strings.TrimSpace(Str(rec.AddressLine1))
	parts := make([]string, 0, 5)
	for _, s := range []*string{rec.AddressLine1, rec.AddressLine2, rec.City, rec.State, rec.Pincode} {
		if v := strings.TrimSpace(Str(s)); v != "" {
			parts = append(parts, v)
		}
	}
	full := strings.Join(parts, " ")

	lower := strings.ToLower(line1)
	if line1 == "" || lower == "none" || lower == "n/a" || len(full) < 10 {
		return AddressInvalid
	}
	if rec.City == nil || rec.State == nil || rec.Pincode == nil || len(full) < 30 {
		return AddressShort
	}
	return AddressGood
}
