package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/openfroyo/cfgtree/pkg/expr"
)

// Coerce converts a loosely typed raw literal to the node's declared type.
// Accepted inputs:
//
//	Bool     bool, "true", "false"
//	Integer  any Go integer, integral float64, decimal or 0x-prefixed string; within bounds
//	Enum     a declared literal, or an integer whose decimal form is one
//	String   string
func (n *Node) Coerce(raw any) (expr.Value, error) {
	if n.Kind != KindScalar {
		return expr.Null(), fmt.Errorf("%s is a menu and takes no value", n.Path)
	}
	if v, ok := raw.(expr.Value); ok {
		raw = v.Interface()
	}

	switch n.Type {
	case TypeBool:
		switch v := raw.(type) {
		case bool:
			return expr.Bool(v), nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true":
				return expr.Bool(true), nil
			case "false":
				return expr.Bool(false), nil
			}
		}
		return expr.Null(), fmt.Errorf("expected bool, got %s", describe(raw))

	case TypeInteger:
		i, ok := toInt64(raw)
		if !ok {
			return expr.Null(), fmt.Errorf("expected %s, got %s", n.TypeName, describe(raw))
		}
		if i < n.Min || i > n.Max {
			return expr.Null(), fmt.Errorf("%d is out of range for %s [%d, %d]", i, n.TypeName, n.Min, n.Max)
		}
		return expr.Int(i), nil

	case TypeEnum:
		var lit string
		switch v := raw.(type) {
		case string:
			lit = v
		default:
			i, ok := toInt64(raw)
			if !ok {
				return expr.Null(), fmt.Errorf("expected one of %s, got %s", n.literals(), describe(raw))
			}
			lit = strconv.FormatInt(i, 10)
		}
		if n.EnumIndex(lit) < 0 {
			return expr.Null(), fmt.Errorf("%q is not one of %s", lit, n.literals())
		}
		return expr.Str(lit), nil

	default:
		s, ok := raw.(string)
		if !ok {
			return expr.Null(), fmt.Errorf("expected string, got %s", describe(raw))
		}
		return expr.Str(s), nil
	}
}

func (n *Node) literals() string {
	lits := make([]string, len(n.Values))
	for i, v := range n.Values {
		lits[i] = strconv.Quote(v.Literal)
	}
	return "[" + strings.Join(lits, ", ") + "]"
}

func toInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 0, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func describe(raw any) string {
	switch v := raw.(type) {
	case nil:
		return "nothing"
	case string:
		return fmt.Sprintf("string %q", v)
	case bool:
		return fmt.Sprintf("bool %t", v)
	case float64:
		return fmt.Sprintf("number %v", v)
	default:
		return fmt.Sprintf("%T %v", raw, raw)
	}
}
