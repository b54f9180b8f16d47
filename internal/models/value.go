package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindFloat
	KindInt
	KindBool
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindText:
		return "text"
	default:
		return "null"
	}
}

// Value is a dynamically typed field value: a tagged union over
// float, int, bool and text. The zero Value is null.
type Value struct {
	kind Kind
	num  float64
	b    bool
	s    string
}

// Null returns the null value.
func Null() Value { return Value{} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, num: f} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, num: float64(i)} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNumeric reports whether v is a float or an int.
func (v Value) IsNumeric() bool { return v.kind == KindFloat || v.kind == KindInt }

// Number returns the numeric interpretation of v. Booleans count as 1 and 0.
// Text and null values are not numbers.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindFloat, KindInt:
		return v.num, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Float returns the numeric interpretation of v, or 0.
func (v Value) Float() float64 {
	f, _ := v.Number()
	return f
}

// Truthy reports whether v counts as true in a condition.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindFloat, KindInt:
		return v.num != 0
	case KindBool:
		return v.b
	case KindText:
		return v.s != ""
	default:
		return false
	}
}

// String renders v the way it would be shown to a user.
func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindInt:
		return strconv.FormatInt(int64(v.num), 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindText:
		return v.s
	default:
		return ""
	}
}

// Equal reports whether v and o hold the same value. Numbers compare by value
// regardless of int/float kind, and a bool equals the number 1 or 0.
func (v Value) Equal(o Value) bool {
	if v.IsNumeric() && o.IsNumeric() {
		return v.num == o.num
	}
	if (v.kind == KindBool && o.IsNumeric()) || (v.IsNumeric() && o.kind == KindBool) {
		a, _ := v.Number()
		b, _ := o.Number()
		return a == b
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindText:
		return v.s == o.s
	default:
		return true
	}
}

// MarshalJSON encodes v as a plain JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindFloat:
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("cannot encode non-finite number %v", v.num)
		}
		return []byte(strconv.FormatFloat(v.num, 'g', -1, 64)), nil
	case KindInt:
		return []byte(strconv.FormatInt(int64(v.num), 10)), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindText:
		return json.Marshal(v.s)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON scalar. Integral literals become ints, other
// numbers floats.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Null()
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	default:
		lit := string(data)
		if !strings.ContainsAny(lit, ".eE") {
			if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
				*v = Int(i)
				return nil
			}
		}
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return fmt.Errorf("invalid value %s: %w", lit, err)
		}
		*v = Float(f)
	}
	return nil
}

// Values is the dynamic payload of an item row, keyed by field name.
type Values map[string]Value

// Clone returns a copy of vs that can be mutated independently.
func (vs Values) Clone() Values {
	out := make(Values, len(vs))
	for k, v := range vs {
		out[k] = v
	}
	return out
}
