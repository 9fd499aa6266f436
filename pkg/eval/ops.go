package eval

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/weaveworld/goweave/pkg/script"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// The operator tables. These are polymorphic the way script authors
// expect: + concatenates strings and lists, % formats strings, / is
// true division. Operators outside the table (** and //) report
// ErrUnsupported at run time rather than parse time.

func opUnary(op script.UnaryKind, val any) (any, error) {
	switch op {
	case script.UnaryNot:
		return !worlddb.Truthy(val), nil
	case script.UnaryPos:
		switch val.(type) {
		case int64, float64:
			return val, nil
		}
		return nil, fmt.Errorf("eval: bad operand type for unary +: %s", typeName(val))
	case script.UnaryNeg:
		switch v := val.(type) {
		case int64:
			return -v, nil
		case float64:
			return -v, nil
		}
		return nil, fmt.Errorf("eval: bad operand type for unary -: %s", typeName(val))
	default:
		return nil, fmt.Errorf("%w: unary operator %s", ErrUnsupported, op)
	}
}

func opBinary(op script.BinaryKind, left, right any) (any, error) {
	switch op {
	case script.BinAdd:
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
		}
		if ll, ok := left.([]any); ok {
			if rl, ok := right.([]any); ok {
				out := make([]any, 0, len(ll)+len(rl))
				out = append(out, ll...)
				return append(out, rl...), nil
			}
		}
		return numericOp(op, left, right)
	case script.BinSub, script.BinDiv:
		return numericOp(op, left, right)
	case script.BinMult:
		if val, ok := repeatOp(left, right); ok {
			return val, nil
		}
		if val, ok := repeatOp(right, left); ok {
			return val, nil
		}
		return numericOp(op, left, right)
	case script.BinMod:
		if format, ok := left.(string); ok {
			return formatString(format, right)
		}
		return numericOp(op, left, right)
	default:
		return nil, fmt.Errorf("%w: binary operator %s", ErrUnsupported, op)
	}
}

// repeatOp handles string and list repetition ("ab" * 3).
func repeatOp(seq, count any) (any, bool) {
	n, isCount := count.(int64)
	if !isCount {
		return nil, false
	}
	if n < 0 {
		n = 0
	}
	switch v := seq.(type) {
	case string:
		return strings.Repeat(v, int(n)), true
	case []any:
		out := []any{}
		for i := int64(0); i < n; i++ {
			out = append(out, v...)
		}
		return out, true
	}
	return nil, false
}

func numericOp(op script.BinaryKind, left, right any) (any, error) {
	li, lInt := left.(int64)
	ri, rInt := right.(int64)
	if lInt && rInt {
		switch op {
		case script.BinAdd:
			return li + ri, nil
		case script.BinSub:
			return li - ri, nil
		case script.BinMult:
			return li * ri, nil
		case script.BinDiv:
			if ri == 0 {
				return nil, fmt.Errorf("eval: division by zero")
			}
			return float64(li) / float64(ri), nil
		case script.BinMod:
			if ri == 0 {
				return nil, fmt.Errorf("eval: modulo by zero")
			}
			// Result takes the sign of the divisor.
			rem := li % ri
			if rem != 0 && (rem < 0) != (ri < 0) {
				rem += ri
			}
			return rem, nil
		}
	}
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if !lok || !rok {
		return nil, fmt.Errorf("eval: unsupported operand types for %s: %s and %s", op, typeName(left), typeName(right))
	}
	switch op {
	case script.BinAdd:
		return lf + rf, nil
	case script.BinSub:
		return lf - rf, nil
	case script.BinMult:
		return lf * rf, nil
	case script.BinDiv:
		if rf == 0 {
			return nil, fmt.Errorf("eval: division by zero")
		}
		return lf / rf, nil
	case script.BinMod:
		if rf == 0 {
			return nil, fmt.Errorf("eval: modulo by zero")
		}
		rem := math.Mod(lf, rf)
		if rem != 0 && (rem < 0) != (rf < 0) {
			rem += rf
		}
		return rem, nil
	default:
		return nil, fmt.Errorf("%w: binary operator %s", ErrUnsupported, op)
	}
}

// formatString handles the modest slice of %-formatting scripts use:
// %s and %d verbs against a single value or a list of values.
func formatString(format string, arg any) (any, error) {
	args, ok := arg.([]any)
	if !ok {
		args = []any{arg}
	}
	var out strings.Builder
	argpos := 0
	i := 0
	for i < len(format) {
		ch := format[i]
		if ch != '%' {
			out.WriteByte(ch)
			i++
			continue
		}
		if i+1 >= len(format) {
			return nil, fmt.Errorf("eval: incomplete format")
		}
		verb := format[i+1]
		i += 2
		if verb == '%' {
			out.WriteByte('%')
			continue
		}
		if argpos >= len(args) {
			return nil, fmt.Errorf("eval: not enough arguments for format string")
		}
		val := args[argpos]
		argpos++
		switch verb {
		case 's':
			out.WriteString(worlddb.Stringify(val))
		case 'd':
			switch v := val.(type) {
			case int64:
				out.WriteString(fmt.Sprintf("%d", v))
			case float64:
				out.WriteString(fmt.Sprintf("%d", int64(v)))
			default:
				return nil, fmt.Errorf("eval: %%d format requires a number, not %s", typeName(val))
			}
		default:
			return nil, fmt.Errorf("%w: format verb %%%c", ErrUnsupported, verb)
		}
	}
	if argpos < len(args) {
		return nil, fmt.Errorf("eval: not all arguments converted during string formatting")
	}
	return out.String(), nil
}

func opCompare(op script.CompareKind, left, right any) (bool, error) {
	switch op {
	case script.CmpEq:
		return equalValues(left, right), nil
	case script.CmpNotEq:
		return !equalValues(left, right), nil
	case script.CmpIs:
		return identical(left, right), nil
	case script.CmpIsNot:
		return !identical(left, right), nil
	case script.CmpIn:
		return containsValue(right, left)
	case script.CmpNotIn:
		res, err := containsValue(right, left)
		return !res, err
	case script.CmpLt, script.CmpLtE, script.CmpGt, script.CmpGtE:
		cmp, err := orderValues(left, right)
		if err != nil {
			return false, err
		}
		switch op {
		case script.CmpLt:
			return cmp < 0, nil
		case script.CmpLtE:
			return cmp <= 0, nil
		case script.CmpGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	default:
		return false, fmt.Errorf("%w: comparison %s", ErrUnsupported, op)
	}
}

// equalValues is script equality: numbers compare across int and
// float, containers compare element-wise.
func equalValues(left, right any) bool {
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if lok && rok {
		return lf == rf
	}
	if lok != rok {
		return false
	}
	return reflect.DeepEqual(left, right)
}

// identical is script "is": nil identity, container identity by
// address, scalar identity by value.
func identical(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	lv := reflect.ValueOf(left)
	rv := reflect.ValueOf(right)
	if lv.Kind() != rv.Kind() {
		return false
	}
	switch lv.Kind() {
	case reflect.Slice:
		return lv.Len() == rv.Len() && (lv.Len() == 0 || lv.Pointer() == rv.Pointer())
	case reflect.Map, reflect.Pointer:
		return lv.Pointer() == rv.Pointer()
	default:
		if !lv.Comparable() {
			return false
		}
		return left == right
	}
}

// containsValue is script "in": substring, list membership, map key.
func containsValue(container, item any) (bool, error) {
	switch v := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return false, fmt.Errorf("eval: 'in <str>' requires a string, not %s", typeName(item))
		}
		return strings.Contains(v, s), nil
	case []any:
		for _, el := range v {
			if equalValues(el, item) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		key, ok := item.(string)
		if !ok {
			return false, nil
		}
		_, ok = v[key]
		return ok, nil
	default:
		return false, fmt.Errorf("eval: %s is not a container", typeName(container))
	}
}

// orderValues compares two ordered values, returning -1, 0, or 1.
// Numbers order across int and float; strings order lexically.
func orderValues(left, right any) (int, error) {
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if lok && rok {
		switch {
		case lf < rf:
			return -1, nil
		case lf > rf:
			return 1, nil
		default:
			return 0, nil
		}
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		return strings.Compare(ls, rs), nil
	}
	return 0, fmt.Errorf("eval: unorderable types: %s and %s", typeName(left), typeName(right))
}
