// Package filter narrows a session's normalized records to the subset a
// dashboard request asks for, and derives the cache fingerprint of a filter.
package filter

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// All is the UI sentinel meaning "no restriction" for single-value fields.
const All = "All"

// BaseFingerprint identifies the unfiltered dataset.
const BaseFingerprint = "base"

// StringSet is an unordered set of strings. It unmarshals from either a
// JSON string or a JSON array of strings.
type StringSet []string

// UnmarshalJSON accepts "a", ["a","b"] and null.
func (s *StringSet) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*s = nil
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var many []string
		if err := json.Unmarshal(data, &many); err != nil {
			return fmt.Errorf("string set: %w", err)
		}
		*s = many
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("string set: %w", err)
	}
	*s = StringSet{one}
	return nil
}

// Filter is an immutable request filter. Zero value means no filtering.
type Filter struct {
	StartDate     string    `json:"startDate,omitempty"`
	EndDate       string    `json:"endDate,omitempty"`
	OrderStatus   string    `json:"orderStatus,omitempty"`
	PaymentMethod string    `json:"paymentMethod,omitempty"`
	Channel       string    `json:"channel,omitempty"`
	SKU           StringSet `json:"sku,omitempty"`
	ProductName   StringSet `json:"productName,omitempty"`
}

// Parse decodes a filter from its JSON query form. Empty input is the
// empty filter.
func Parse(raw string) (Filter, error) {
	var f Filter
	if strings.TrimSpace(raw) == "" {
		return f, nil
	}
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return Filter{}, fmt.Errorf("parse filter: %w", err)
	}
	return f.Canonical(), nil
}

// Canonical returns the normal form: values trimmed, "All" and blanks
// dropped, sets deduplicated and sorted. Two filters that select the same
// records through the same values have identical canonical forms.
func (f Filter) Canonical() Filter {
	return Filter{
		StartDate:     scalar(f.StartDate),
		EndDate:       scalar(f.EndDate),
		OrderStatus:   scalar(f.OrderStatus),
		PaymentMethod: scalar(f.PaymentMethod),
		Channel:       scalar(f.Channel),
		SKU:           set(f.SKU),
		ProductName:   set(f.ProductName),
	}
}

func scalar(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, All) {
		return ""
	}
	return s
}

func set(in StringSet) StringSet {
	seen := make(map[string]bool, len(in))
	var out StringSet
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || strings.EqualFold(v, All) || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// IsEmpty reports whether the filter restricts nothing.
func (f Filter) IsEmpty() bool {
	c := f.Canonical()
	return c.StartDate == "" && c.EndDate == "" && c.OrderStatus == "" &&
		c.PaymentMethod == "" && c.Channel == "" && len(c.SKU) == 0 && len(c.ProductName) == 0
}

// CanonicalJSON serializes the canonical form. encoding/json writes struct
// fields in declaration order, so the output is stable.
func (f Filter) CanonicalJSON() string {
	data, _ := json.Marshal(f.Canonical())
	return string(data)
}

// Fingerprint is the cache discriminant for a filter: "base" when empty,
// else a short SHA-256 of the canonical JSON.
func (f Filter) Fingerprint() string {
	if f.IsEmpty() {
		return BaseFingerprint
	}
	sum := sha256.Sum256([]byte(f.CanonicalJSON()))
	return hex.EncodeToString(sum[:8])
}

// Equal compares two filters by canonical form.
func (f Filter) Equal(o Filter) bool {
	return f.CanonicalJSON() == o.CanonicalJSON()
}
