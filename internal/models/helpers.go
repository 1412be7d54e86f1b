package models

import (
	"fmt"
	"strings"
	"time"
)

// Timestamp layouts accepted in raw tables. Values without a zone are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// TimestampLayout is the layout used when writing timestamps.
const TimestampLayout = "2006-01-02T15:04:05"

// DateLayout is the layout used for shift dates.
const DateLayout = "2006-01-02"

// ParseTimestamp parses a raw table timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// ParseAvailability accepts 1/0 and true/false.
func ParseAvailability(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "1.0", "true", "yes":
		return true, nil
	case "0", "0.0", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid availability %q", s)
}
