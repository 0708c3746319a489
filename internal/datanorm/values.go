package datanorm

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// missingSentinels are the lowercase spellings that mean "no value".
var missingSentinels = map[string]bool{
	"":          true,
	"none":      true,
	"n/a":       true,
	"na":        true,
	"null":      true,
	"undefined": true,
}

// StandardizeMissing maps every missing-value spelling to nil. Strings that
// carry a value come back trimmed; other values pass through unchanged.
func StandardizeMissing(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(t)
		if missingSentinels[strings.ToLower(s)] {
			return nil
		}
		return s
	case float64:
		if math.IsNaN(t) {
			return nil
		}
	}
	return v
}

// slashDate matches M/D/YY and M/D/YYYY with an optional clock part.
var slashDate = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2}|\d{4})(?:[ T](\d{1,2}):(\d{2})(?::(\d{2}))?)?$`)

// dateLayouts are tried in order after the slash form. Day-first numeric
// layouts use dashes only, so they never compete with M/D/Y.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"02-01-2006",
	"02 Jan 2006, 15:04",
	"02 Jan 2006 15:04:05",
	"02 Jan 2006",
	"2 Jan 2006",
	"Jan 2, 2006 15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
	time.RFC1123,
	time.RFC1123Z,
}

// ParseDate converts a loosely formatted date into a time. It returns nil
// when the value is missing or matches no known format.
func ParseDate(v any) *time.Time {
	switch t := StandardizeMissing(v).(type) {
	case nil:
		return nil
	case time.Time:
		return &t
	case *time.Time:
		return t
	case string:
		return parseDateString(t)
	default:
		return parseDateString(fmt.Sprint(t))
	}
}

func parseDateString(s string) *time.Time {
	if s == "'" {
		return nil
	}
	if m := slashDate.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if len(m[3]) == 2 {
			if year < 50 {
				year += 2000
			} else {
				year += 1900
			}
		}
		hour, minute, sec := 0, 0, 0
		if m[4] != "" {
			hour, _ = strconv.Atoi(m[4])
			minute, _ = strconv.Atoi(m[5])
			if m[6] != "" {
				sec, _ = strconv.Atoi(m[6])
			}
		}
		if validClock(month, day, hour, minute, sec) {
			t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC)
			// time.Date normalizes overflow; reject dates like 2/30.
			if t.Day() == day && int(t.Month()) == month {
				return &t
			}
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func validClock(month, day, hour, minute, sec int) bool {
	return month >= 1 && month <= 12 && day >= 1 && day <= 31 &&
		hour < 24 && minute < 60 && sec < 60
}

// FormatDate renders a parsed date in the canonical YYYY-MM-DD form.
func FormatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

var nonNumeric = regexp.MustCompile(`[^0-9.\-]`)

// ParseNumber extracts a float from values such as "INR 1,299.00". It
// returns nil when nothing numeric remains.
func ParseNumber(v any) *float64 {
	var f float64
	switch t := StandardizeMissing(v).(type) {
	case nil:
		return nil
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return nil
		}
		f = n
	case bool:
		return nil
	default:
		cleaned := nonNumeric.ReplaceAllString(fmt.Sprint(t), "")
		n, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		f = n
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

var truthy = map[string]bool{"true": true, "yes": true, "1": true, "y": true}

// ParseBoolean reports whether v spells a true value. It never returns an
// error; anything unrecognized is false.
func ParseBoolean(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return truthy[strings.ToLower(strings.TrimSpace(t))]
	default:
		return truthy[strings.ToLower(strings.TrimSpace(fmt.Sprint(t)))]
	}
}

// ParseString returns the trimmed textual form of a non-missing value.
func ParseString(v any) *string {
	switch t := StandardizeMissing(v).(type) {
	case nil:
		return nil
	case string:
		return &t
	case float64:
		s := strconv.FormatFloat(t, 'f', -1, 64)
		return &s
	default:
		s := strings.TrimSpace(fmt.Sprint(t))
		if s == "" {
			return nil
		}
		return &s
	}
}
