package requirements

import "encoding/json"

// Optional is a string that may be absent. A set-but-empty value is distinct
// from an unset one.
type Optional struct {
	value string
	set   bool
}

// Some returns a set Optional holding v.
func Some(v string) Optional { return Optional{value: v, set: true} }

// None returns an unset Optional.
func None() Optional { return Optional{} }

// Value returns the held value and whether it is set.
func (o Optional) Value() (string, bool) { return o.value, o.set }

// IsSet reports whether a value is present, even an empty one.
func (o Optional) IsSet() bool { return o.set }

// Empty reports whether the value is unset or blank.
func (o Optional) Empty() bool { return !o.set || o.value == "" }

// OrEmpty returns the value, or "" when unset.
func (o Optional) OrEmpty() string { return o.value }

func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

func (o *Optional) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = None()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Some(s)
	return nil
}
