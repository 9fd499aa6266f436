package eval

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/weaveworld/goweave/pkg/task"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// ScriptFunc is a builtin function in the script namespace.
type ScriptFunc struct {
	Name string
	Fn   func(ctx *Context, args []any) (any, error)
}

// builtinSymbol resolves the immutable global names: the capability
// proxies and the builtin functions. These shadow properties of the
// same name everywhere.
func (ctx *Context) builtinSymbol(loctx *task.LocContext, name string) (any, bool) {
	switch name {
	case "player":
		return PlayerProxy{UID: loctx.UID}, true
	case "location":
		if loctx.LocID == "" {
			return nil, true
		}
		return LocationProxy{LocID: loctx.LocID}, true
	case "realm":
		return RealmProxy{}, true
	case "locations":
		return WorldLocationsProxy{}, true
	}
	if fn, ok := builtinFuncs[name]; ok {
		return fn, true
	}
	return nil, false
}

// IsBuiltin reports whether name is an immutable global: assignment and
// del reject these.
func IsBuiltin(name string) bool {
	switch name {
	case "player", "location", "realm", "locations":
		return true
	}
	_, ok := builtinFuncs[name]
	return ok
}

var builtinFuncs = map[string]*ScriptFunc{
	"len":  {Name: "len", Fn: builtinLen},
	"str":  {Name: "str", Fn: builtinStr},
	"int":  {Name: "int", Fn: builtinInt},
	"bool": {Name: "bool", Fn: builtinBool},
	"min":  {Name: "min", Fn: builtinMin},
	"max":  {Name: "max", Fn: builtinMax},
}

func argCount(name string, args []any, min, max int) error {
	if len(args) < min || len(args) > max {
		return fmt.Errorf("eval: %s() takes %d to %d arguments, got %d", name, min, max, len(args))
	}
	return nil
}

func builtinLen(ctx *Context, args []any) (any, error) {
	if err := argCount("len", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case string:
		return int64(utf8.RuneCountInString(v)), nil
	case []any:
		return int64(len(v)), nil
	case map[string]any:
		return int64(len(v)), nil
	default:
		return nil, fmt.Errorf("eval: len() of %s", typeName(args[0]))
	}
}

func builtinStr(ctx *Context, args []any) (any, error) {
	if err := argCount("str", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return "", nil
	}
	if s, ok := args[0].(string); ok {
		return s, nil
	}
	return worlddb.Stringify(args[0]), nil
}

func builtinInt(ctx *Context, args []any) (any, error) {
	if err := argCount("int", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return int64(0), nil
	}
	switch v := args[0].(type) {
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		val, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("eval: invalid literal for int(): %q", v)
		}
		return val, nil
	default:
		return nil, fmt.Errorf("eval: int() of %s", typeName(args[0]))
	}
}

func builtinBool(ctx *Context, args []any) (any, error) {
	if err := argCount("bool", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return false, nil
	}
	return worlddb.Truthy(args[0]), nil
}

func builtinMin(ctx *Context, args []any) (any, error) {
	return builtinMinMax("min", args, func(a, b float64) bool { return a < b })
}

func builtinMax(ctx *Context, args []any) (any, error) {
	return builtinMinMax("max", args, func(a, b float64) bool { return a > b })
}

func builtinMinMax(name string, args []any, better func(a, b float64) bool) (any, error) {
	if len(args) == 1 {
		ls, ok := args[0].([]any)
		if !ok {
			return nil, fmt.Errorf("eval: %s() of %s", name, typeName(args[0]))
		}
		args = ls
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("eval: %s() of an empty sequence", name)
	}
	best := args[0]
	bestf, ok := asFloat(best)
	if !ok {
		return nil, fmt.Errorf("eval: %s() of %s", name, typeName(best))
	}
	for _, arg := range args[1:] {
		f, ok := asFloat(arg)
		if !ok {
			return nil, fmt.Errorf("eval: %s() of %s", name, typeName(arg))
		}
		if better(f, bestf) {
			best, bestf = arg, f
		}
	}
	return best, nil
}

// typeName is the script-facing name of a value's type, for error
// messages.
func typeName(val any) string {
	switch val.(type) {
	case nil:
		return "None"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case []any:
		return "list"
	case map[string]any:
		return "map"
	case *ScriptFunc:
		return "function"
	case PropertyProxy:
		return "proxy"
	case worlddb.Record:
		return val.(worlddb.Record).RecordType()
	default:
		return fmt.Sprintf("%T", val)
	}
}

// asFloat widens a numeric value to float64.
func asFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
