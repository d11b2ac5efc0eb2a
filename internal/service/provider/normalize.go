package provider

import "strings"

// minorUnits maps sub-unit currency codes to their major unit and divisor.
// Codes are matched case-sensitively: GBp is pence, GBP is pounds.
var minorUnits = map[string]struct {
	major   string
	divisor float64
}{
	"GBp": {"GBP", 100},
	"GBX": {"GBP", 100},
	"ZAc": {"ZAR", 100},
	"ILA": {"ILS", 100},
}

// normalizeCurrency converts a provider currency code to a major ISO code and
// returns the divisor to apply to prices quoted in it.
func normalizeCurrency(code, fallback string) (string, float64) {
	if code == "" {
		return strings.ToUpper(fallback), 1
	}
	if m, ok := minorUnits[code]; ok {
		return m.major, m.divisor
	}
	return strings.ToUpper(code), 1
}

// DefaultAliases maps common index shorthands to provider symbols.
func DefaultAliases() map[string]string {
	return map[string]string{
		"SPX":    "^GSPC",
		"SP500":  "^GSPC",
		"SPX500": "^GSPC",
		"NDX":    "^IXIC",
		"DJI":    "^DJI",
		"VIX":    "^VIX",
	}
}
