package models

import "time"

// Quote is a current price for one ticker in the display currency.
type Quote struct {
	Ticker   Ticker    `json:"ticker"`
	Price    float64   `json:"price"`
	Currency string    `json:"currency"`
	AsOf     time.Time `json:"as_of"`
	IsStale  bool      `json:"is_stale"`
	Source   string    `json:"source,omitempty"`
	// PreviousClose is optional; zero means the provider did not report it.
	PreviousClose float64 `json:"previous_close,omitempty"`
}

// ChangePct returns the move against the previous close in percent.
func (q Quote) ChangePct() Optional {
	if q.PreviousClose <= 0 || q.Price <= 0 {
		return Undefined()
	}
	return Some((q.Price/q.PreviousClose - 1) * 100)
}

// Point is one observation of a historical series.
type Point struct {
	Time   time.Time `json:"t"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

// HistoricalSeries is an ascending, immutable close series.
type HistoricalSeries struct {
	Ticker   Ticker  `json:"ticker"`
	Interval string  `json:"interval"`
	Range    string  `json:"range"`
	Currency string  `json:"currency,omitempty"`
	Points   []Point `json:"points"`
}

// Closes returns a copy of the close prices in order.
func (s *HistoricalSeries) Closes() []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Close
	}
	return out
}

// Len is safe on nil.
func (s *HistoricalSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// Last returns the most recent point.
func (s *HistoricalSeries) Last() (Point, bool) {
	if s.Len() == 0 {
		return Point{}, false
	}
	return s.Points[len(s.Points)-1], true
}
