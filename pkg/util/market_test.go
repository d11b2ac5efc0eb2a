package util

import (
	"testing"
	"time"
)

func TestUSMarketStatus(t *testing.T) {
	ny, _ := time.LoadLocation("America/New_York")
	cases := []struct {
		name     string
		now      time.Time
		open     bool
		nextOpen time.Time
	}{
		{"tuesday midday", time.Date(2026, 3, 10, 12, 0, 0, 0, ny), true, time.Date(2026, 3, 11, 9, 30, 0, 0, ny)},
		{"at the open", time.Date(2026, 3, 10, 9, 30, 0, 0, ny), true, time.Date(2026, 3, 11, 9, 30, 0, 0, ny)},
		{"at the close", time.Date(2026, 3, 10, 16, 0, 0, 0, ny), false, time.Date(2026, 3, 11, 9, 30, 0, 0, ny)},
		{"before the open", time.Date(2026, 3, 10, 8, 0, 0, 0, ny), false, time.Date(2026, 3, 10, 9, 30, 0, 0, ny)},
		{"friday evening", time.Date(2026, 3, 13, 18, 0, 0, 0, ny), false, time.Date(2026, 3, 16, 9, 30, 0, 0, ny)},
		{"saturday", time.Date(2026, 3, 14, 11, 0, 0, 0, ny), false, time.Date(2026, 3, 16, 9, 30, 0, 0, ny)},
		{"utc input", time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC), true, time.Date(2026, 3, 11, 9, 30, 0, 0, ny)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			st := USMarketStatus(c.now)
			if st.Open != c.open {
				t.Fatalf("open = %v, want %v", st.Open, c.open)
			}
			if !st.NextOpen.Equal(c.nextOpen) {
				t.Fatalf("next open = %v, want %v", st.NextOpen, c.nextOpen)
			}
			if st.Timezone != "America/New_York" {
				t.Fatalf("timezone %s", st.Timezone)
			}
		})
	}
}
