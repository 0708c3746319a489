package datanorm

import (
	"strings"
)

// Classifier derives a canonical delivery status from source status text
// and milestone dates. Explicit status text always outranks dates.
type Classifier struct {
	explicit map[string]string
}

// explicitStatuses are the courier labels returned as-is once recognized.
var explicitStatuses = []string{
	"CANCELED",
	"DESTROYED",
	"LOST",
	"UNTRACEABLE",
	"PICKUP EXCEPTION",
	"REACHED BACK AT SELLER CITY",
	"REACHED DESTINATION HUB",
	"RTO DELIVERED",
	"RTO IN TRANSIT",
	"RTO INITIATED",
	"RTO NDR",
	"RTO OFD",
	"RTO ACKNOWLEDGED",
	"UNDELIVERED-1ST ATTEMPT",
	"UNDELIVERED-2ND ATTEMPT",
	"UNDELIVERED-3RD ATTEMPT",
	"OUT FOR DELIVERY",
	"OUT FOR PICKUP",
	"PICKED UP",
	"IN TRANSIT",
	"IN TRANSIT-AT DESTINATION HUB",
}

// explicitSpellings map alternate spellings onto an explicit label.
var explicitSpellings = map[string]string{
	"CANCELLED": "CANCELED",
}

var blacklistedStatuses = map[string]bool{"": true, "N/A": true, "NONE": true, "NULL": true}

var knownStatusPrefixes = []string{"DELIVERED", "UNDELIVERED", "RTO", "NDR", "PENDING", "CANCEL"}

// NewClassifier builds the lookup table of compacted explicit labels.
func NewClassifier() *Classifier {
	c := &Classifier{explicit: make(map[string]string, len(explicitStatuses)+len(explicitSpellings))}
	for _, s := range explicitStatuses {
		c.explicit[compactStatus(s)] = s
	}
	for alt, s := range explicitSpellings {
		c.explicit[compactStatus(alt)] = s
	}
	return c
}

// compactStatus uppercases and removes spaces, hyphens and underscores, so
// "Rto-Delivered" and "RTO_DELIVERED" compare equal.
func compactStatus(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_', '\t':
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(s)))
}

// StatusText returns the first non-empty status candidate: the raw "Status"
// header, then the normalized status aliases.
func StatusText(raw RawRecord, norm map[string]any) string {
	if v, ok := raw["Status"]; ok {
		if s := ParseString(v); s != nil {
			return *s
		}
	}
	for _, k := range statusAliases {
		if s := ParseString(norm[k]); s != nil {
			return *s
		}
	}
	return ""
}

// Classify returns the canonical status for a record whose milestone dates
// are already parsed. text is the candidate status from StatusText.
func (c *Classifier) Classify(text string, rec *Record) string {
	text = strings.TrimSpace(text)
	upper := strings.ToUpper(text)

	if label, ok := c.explicit[compactStatus(text)]; ok && text != "" {
		return label
	}

	blacklisted := blacklistedStatuses[upper]
	if !blacklisted && !hasKnownPrefix(upper) {
		return text
	}

	if rec.DeliveryDate != nil {
		return StatusDelivered
	}
	if rec.NDRDate != nil {
		return StatusNDR
	}
	if rec.RTODate != nil && !encodesRTOSubstate(upper) {
		if rec.RTODeliveredDate != nil {
			return StatusRTODelivered
		}
		return StatusRTOInitiated
	}
	if rec.OFDDate != nil {
		return StatusOFD
	}

	if !blacklisted {
		return upper
	}
	return StatusPending
}

// ExplicitStatuses returns the recognized courier labels plus the delivered
// and undelivered base labels, in a fresh slice.
func ExplicitStatuses() []string {
	out := make([]string, 0, len(explicitStatuses)+2)
	out = append(out, StatusDelivered, "UNDELIVERED")
	return append(out, explicitStatuses...)
}

func hasKnownPrefix(upper string) bool {
	for _, p := range knownStatusPrefixes {
		if strings.HasPrefix(upper, p) {
			return true
		}
	}
	return false
}

// encodesRTOSubstate reports whether the text already names an RTO stage
// such as "RTO DELIVERED" rather than a bare "RTO".
func encodesRTOSubstate(upper string) bool {
	return strings.HasPrefix(upper, "RTO") && len(strings.TrimSpace(strings.TrimPrefix(upper, "RTO"))) > 0
}

// IsRTO reports whether a canonical status is any RTO stage.
func IsRTO(status string) bool {
	return strings.Contains(strings.ToUpper(status), "RTO")
}

// IsCancelled reports whether a status names a cancellation.
func IsCancelled(status string) bool {
	return strings.Contains(strings.ToUpper(status), "CANCEL")
}

// IsInTransit reports whether a status is a movement stage short of delivery.
func IsInTransit(status string) bool {
	s := strings.ToUpper(status)
	if s == StatusDelivered || IsRTO(s) || IsCancelled(s) {
		return false
	}
	return strings.Contains(s, "IN TRANSIT") || strings.Contains(s, "PICKED UP") ||
		strings.Contains(s, "REACHED DESTINATION") || strings.Contains(s, "AT DESTINATION") ||
		s == StatusOFD || s == StatusOutForDeliver
}
