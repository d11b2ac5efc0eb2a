package models

import "time"

// Trade is a single print from a live stream.
type Trade struct {
	Ticker    Ticker
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// AsQuote converts a print into a quote in the given currency.
func (t Trade) AsQuote(currency, source string) Quote {
	return Quote{Ticker: t.Ticker, Price: t.Price, Currency: currency, AsOf: t.Timestamp, Source: source}
}
