package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidTicker is returned when a symbol cannot be a provider ticker.
var ErrInvalidTicker = errors.New("invalid ticker")

// Ticker is a case-normalized asset identifier (equity symbol, index, crypto pair).
type Ticker string

var tickerPattern = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9.\-=^/]{0,19}$`)

// NormalizeTicker trims and upper-cases raw and checks it is well formed.
func NormalizeTicker(raw string) (Ticker, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrInvalidTicker)
	}
	if !tickerPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTicker, raw)
	}
	return Ticker(s), nil
}

// MustTicker is NormalizeTicker for literals; it panics on malformed input.
func MustTicker(raw string) Ticker {
	t, err := NormalizeTicker(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTickers normalizes a list, dropping duplicates. Malformed inputs are
// returned separately in their original spelling.
func ParseTickers(raw []string) (valid []Ticker, invalid []string) {
	seen := make(map[Ticker]struct{}, len(raw))
	for _, r := range raw {
		t, err := NormalizeTicker(r)
		if err != nil {
			invalid = append(invalid, r)
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		valid = append(valid, t)
	}
	return valid, invalid
}

func (t Ticker) String() string { return string(t) }

// Valid reports whether t is already in normalized form.
func (t Ticker) Valid() bool { return tickerPattern.MatchString(string(t)) }
