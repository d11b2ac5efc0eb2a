package util

import (
	"strconv"
	"strings"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, date-only and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

var intradayIntervals = map[string]time.Duration{
	"1m":  time.Minute,
	"2m":  2 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"60m": time.Hour,
	"90m": 90 * time.Minute,
	"1h":  time.Hour,
}

// IsIntraday reports whether interval is shorter than a day.
func IsIntraday(interval string) bool {
	_, ok := intradayIntervals[interval]
	return ok
}

// ValidInterval reports whether interval is a known bar size.
func ValidInterval(interval string) bool {
	switch interval {
	case "1d", "5d", "1wk", "1mo", "3mo":
		return true
	}
	return IsIntraday(interval)
}

// BucketKey maps t to the alignment bucket of interval. Series from different
// exchanges stamp the same session at different clock times, so daily and
// longer bars are keyed by calendar date, week or month rather than instant.
func BucketKey(t time.Time, interval string) int64 {
	if d, ok := intradayIntervals[interval]; ok {
		return t.UTC().Truncate(d).Unix()
	}
	u := t.UTC()
	switch interval {
	case "1wk", "5d":
		y, w := u.ISOWeek()
		return int64(y*100 + w)
	case "1mo", "3mo":
		return int64(u.Year()*100 + int(u.Month()))
	default:
		return int64(u.Year()*10000 + int(u.Month())*100 + u.Day())
	}
}

// RangeStart returns the start of a provider range ending at now.
// Unknown ranges fall back to six months.
func RangeStart(now time.Time, rng string) time.Time {
	switch strings.ToLower(rng) {
	case "1d":
		return now.AddDate(0, 0, -1)
	case "5d":
		return now.AddDate(0, 0, -5)
	case "1mo":
		return now.AddDate(0, -1, 0)
	case "3mo":
		return now.AddDate(0, -3, 0)
	case "6mo":
		return now.AddDate(0, -6, 0)
	case "1y":
		return now.AddDate(-1, 0, 0)
	case "2y":
		return now.AddDate(-2, 0, 0)
	case "5y":
		return now.AddDate(-5, 0, 0)
	case "10y":
		return now.AddDate(-10, 0, 0)
	case "ytd":
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
	case "max":
		return time.Unix(0, 0)
	default:
		return now.AddDate(0, -6, 0)
	}
}

// ValidRange reports whether rng is a known provider range.
func ValidRange(rng string) bool {
	switch rng {
	case "1d", "5d", "1mo", "3mo", "6mo", "1y", "2y", "5y", "10y", "ytd", "max":
		return true
	}
	return false
}
