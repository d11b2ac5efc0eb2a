package models

import (
	"encoding/json"
	"math"
)

// Optional is a metric value that may be undefined. Undefined values marshal
// to JSON null and are never coerced to zero.
type Optional struct {
	Value float64
	Valid bool
}

// Some wraps v. NaN and infinities are treated as undefined.
func Some(v float64) Optional {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Optional{}
	}
	return Optional{Value: v, Valid: true}
}

// Undefined returns the absent value.
func Undefined() Optional { return Optional{} }

// Get returns the value and whether it is defined.
func (o Optional) Get() (float64, bool) { return o.Value, o.Valid }

// Or returns the value or def when undefined.
func (o Optional) Or(def float64) float64 {
	if !o.Valid {
		return def
	}
	return o.Value
}

func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *Optional) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*o = Optional{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
