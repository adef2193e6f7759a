package model

import (
	"encoding/json"
	"strconv"
)

// OptionalFloat is a float64 that may be absent. Absence is never encoded as
// zero or NaN; it marshals to JSON null.
type OptionalFloat struct {
	Value float64
	Valid bool
}

// Some wraps a present value.
func Some(v float64) OptionalFloat {
	return OptionalFloat{Value: v, Valid: true}
}

// None returns an absent value.
func None() OptionalFloat {
	return OptionalFloat{}
}

// Get returns the value and whether it is present.
func (o OptionalFloat) Get() (float64, bool) {
	return o.Value, o.Valid
}

// String implements fmt.Stringer.
func (o OptionalFloat) String() string {
	if !o.Valid {
		return "<absent>"
	}
	return strconv.FormatFloat(o.Value, 'g', -1, 64)
}

// MarshalJSON implements json.Marshaler.
func (o OptionalFloat) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *OptionalFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = None()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
