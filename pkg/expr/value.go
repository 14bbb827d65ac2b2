package expr

import (
	"strconv"
)

// Kind identifies the dynamic type of a Value.
type Kind int

const (
	// KindNull is the zero value: no value present.
	KindNull Kind = iota
	// KindBool is a boolean.
	KindBool
	// KindInt is a signed 64-bit integer.
	KindInt
	// KindString is a string.
	KindString
)

// String returns the name used for the kind in error messages.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	default:
		return "null"
	}
}

// Value is a typed value produced by evaluation or stored for an option.
// The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	s    string
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps an integer.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Str wraps a string.
func Str(s string) Value { return Value{kind: KindString, s: s} }

// Kind returns the dynamic type of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v carries no value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload. It is false for non-bool values.
func (v Value) AsBool() bool { return v.kind == KindBool && v.b }

// AsInt returns the integer payload. It is 0 for non-int values.
func (v Value) AsInt() int64 {
	if v.kind != KindInt {
		return 0
	}
	return v.i
}

// AsString returns the string payload. It is "" for non-string values.
func (v Value) AsString() string {
	if v.kind != KindString {
		return ""
	}
	return v.s
}

// Truthy reports whether v counts as true in a logical context:
// true, a non-zero integer, or a non-empty string.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindString:
		return v.s != ""
	default:
		return false
	}
}

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindString:
		return v.s == o.s
	default:
		return true
	}
}

// Interface returns v as a plain Go value (nil, bool, int64 or string),
// suitable for encoders.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindString:
		return v.s
	default:
		return nil
	}
}

// String renders v the way it would be written in an expression.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindString:
		return strconv.Quote(v.s)
	default:
		return "null"
	}
}

// Text renders v without quoting, as shown to users.
func (v Value) Text() string {
	if v.kind == KindString {
		return v.s
	}
	return v.String()
}
