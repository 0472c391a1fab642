package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// Value is a sealed interface over the attribute value types.
// Only Number, Bool, and String implement it. Heterogeneous attribute maps
// are represented as map[string]Value rather than map[string]any so that
// clamping and serialization can dispatch by variant.
type Value interface {
	value() // sealed
}

// Number is a float64 attribute value. Clamping applies only to Numbers.
type Number float64

func (Number) value() {}

// Bool is a boolean attribute value.
type Bool bool

func (Bool) value() {}

// String is a string attribute value.
type String string

func (String) value() {}

// Attributes maps attribute keys to values.
type Attributes map[string]Value

// DiseaseStateMap maps machine ids to their current state names.
type DiseaseStateMap map[string]string

// Snapshot is a read-only view of patient attributes and per-machine state.
// Hazards and watchers observe snapshots and must never mutate them; the
// kernel rebuilds the snapshot whenever any field changes.
type Snapshot struct {
	Attrs    Attributes
	Diseases DiseaseStateMap
}

// Num returns the numeric value of an attribute, or def if the attribute is
// absent or not a Number.
func (s Snapshot) Num(key string, def float64) float64 {
	if v, ok := s.Attrs[key].(Number); ok {
		return float64(v)
	}
	return def
}

// Str returns the string value of an attribute, or def if absent.
func (s Snapshot) Str(key, def string) string {
	if v, ok := s.Attrs[key].(String); ok {
		return string(v)
	}
	return def
}

// Flag returns the boolean value of an attribute, false if absent.
func (s Snapshot) Flag(key string) bool {
	v, ok := s.Attrs[key].(Bool)
	return ok && bool(v)
}

// StrEq reports whether the keyed value is the given string.
func (a Attributes) StrEq(key, want string) bool {
	v, ok := a[key].(String)
	return ok && string(v) == want
}

// Limits bounds a numeric attribute. Nil min/max leave that side open.
type Limits struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Clamp applies the limits to a Number value; other variants and non-finite
// numbers pass through unchanged. Clamping is idempotent.
func (l Limits) Clamp(v Value) Value {
	n, ok := v.(Number)
	if !ok {
		return v
	}
	f := float64(n)
	if math.IsNaN(f) {
		return v
	}
	if l.Min != nil && f < *l.Min {
		f = *l.Min
	}
	if l.Max != nil && f > *l.Max {
		f = *l.Max
	}
	return Number(f)
}

// Clone returns a shallow copy of the attribute map. Values are immutable,
// so a shallow copy is a full copy.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Clone returns a copy of the disease state map.
func (d DiseaseStateMap) Clone() DiseaseStateMap {
	out := make(DiseaseStateMap, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the variant as its natural JSON type.
func (n Number) MarshalJSON() ([]byte, error) { return json.Marshal(float64(n)) }

// MarshalJSON encodes the variant as its natural JSON type.
func (b Bool) MarshalJSON() ([]byte, error) { return json.Marshal(bool(b)) }

// MarshalJSON encodes the variant as its natural JSON type.
func (s String) MarshalJSON() ([]byte, error) { return json.Marshal(string(s)) }

// UnmarshalJSON decodes a JSON scalar into the matching Value variant.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = make(Attributes, len(raw))
	for k, v := range raw {
		val, err := UnmarshalValue(v)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", k, err)
		}
		(*a)[k] = val
	}
	return nil
}

// UnmarshalValue decodes a JSON scalar into a Value.
// Arrays, objects, and null are rejected: attributes are scalar by contract.
func UnmarshalValue(data []byte) (Value, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case 'n', '[', '{':
		return nil, fmt.Errorf("attribute values must be number, boolean, or string: %s", string(data))
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		return Number(f), nil
	}
}
