package util

import (
	"time"
	_ "time/tzdata"
)

var newYork = mustLocation("America/New_York")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// MarketStatus describes the US equity regular session at a point in time.
// Exchange holidays are not modelled.
type MarketStatus struct {
	Open      bool      `json:"open"`
	Timezone  string    `json:"timezone"`
	LocalTime time.Time `json:"local_time"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}

const (
	sessionOpen  = 9*time.Hour + 30*time.Minute
	sessionClose = 16 * time.Hour
)

// USMarketStatus reports whether 09:30-16:00 New York time on a weekday
// contains now.
func USMarketStatus(now time.Time) MarketStatus {
	local := now.In(newYork)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, newYork)
	openAt, closeAt := day.Add(sessionOpen), day.Add(sessionClose)

	st := MarketStatus{Timezone: newYork.String(), LocalTime: local}
	if isWeekday(local) && !local.Before(openAt) && local.Before(closeAt) {
		st.Open = true
		st.NextClose = closeAt
		st.NextOpen = nextSessionDay(day).Add(sessionOpen)
		return st
	}
	if isWeekday(local) && local.Before(openAt) {
		st.NextOpen = openAt
		st.NextClose = closeAt
		return st
	}
	next := nextSessionDay(day)
	st.NextOpen = next.Add(sessionOpen)
	st.NextClose = next.Add(sessionClose)
	return st
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func nextSessionDay(day time.Time) time.Time {
	d := day.AddDate(0, 0, 1)
	for !isWeekday(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
