// Package format turns raw numbers and timestamps into the short
// human-readable strings shown on package cards.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CompactNumber formats n in compact notation: 999 stays "999",
// 14800000 becomes "14.8M". Units follow K/M/B/T with at most one
// fraction digit, trailing ".0" trimmed.
func CompactNumber(n int) string {
	if n < 0 {
		n = 0
	}
	if n < 1000 {
		return strconv.Itoa(n)
	}

	units := []struct {
		value  float64
		suffix string
	}{
		{1e12, "T"},
		{1e9, "B"},
		{1e6, "M"},
		{1e3, "K"},
	}

	for _, u := range units {
		if float64(n) >= u.value {
			v := float64(n) / u.value
			s := fmt.Sprintf("%.1f", v)
			s = strings.TrimSuffix(s, ".0")
			return s + u.suffix
		}
	}
	return strconv.Itoa(n)
}

// RelativeTime renders the age of t relative to now: "today",
// "3 days ago", "4 months ago", "2 years ago". Months are 30-day and
// years 365-day approximations.
func RelativeTime(t, now time.Time) string {
	days := int(now.Sub(t).Hours() / 24)
	switch {
	case days > 365:
		return plural(days/365, "year")
	case days > 30:
		return plural(days/30, "month")
	case days > 0:
		return plural(days, "day")
	default:
		return "today"
	}
}

func plural(n int, unit string) string {
	if n > 1 {
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	return fmt.Sprintf("%d %s ago", n, unit)
}
