package worlddb

import (
	"fmt"
	"sort"
	"strconv"
)

// A property value is an `any` restricted to the storable types: nil,
// bool, int64, float64, string, []any, map[string]any, and the Record
// implementations below. Mutable containers ([]any, map[string]any) get
// identity-tracked by the property cache; records and scalars are
// treated as immutable.

// Record is the closed set of tagged property records. Only the types in
// this package implement it; an exhaustive type switch over them covers
// every record kind.
type Record interface {
	// RecordType returns the type discriminator ("text", "code", ...).
	RecordType() string
}

// Text is a marked-up description string.
type Text struct {
	Text string
}

func (*Text) RecordType() string { return "text" }

// Code is a script source snippet.
type Code struct {
	Text string
}

func (*Code) RecordType() string { return "code" }

// GenText is a procedural text template (see pkg/gentext).
type GenText struct {
	Text string
}

func (*GenText) RecordType() string { return "gentext" }

// Event shows a message to the acting player (Text) and optionally to
// everyone else in the location (OText). Both are markup.
type Event struct {
	Text  string
	OText string
}

func (*Event) RecordType() string { return "event" }

// Panic is an Event followed by forcible relocation to the void.
type Panic struct {
	Text  string
	OText string
}

func (*Panic) RecordType() string { return "panic" }

// Move relocates the acting player to the location whose key is Loc,
// within the same world. Text goes to the mover; OLeave/OArrive go to
// the occupants of the old and new locations.
type Move struct {
	Loc     string
	Text    string
	OLeave  string
	OArrive string
}

func (*Move) RecordType() string { return "move" }

// SelfDesc lets the player examine and edit their own appearance. Text
// is optional extra markup shown alongside.
type SelfDesc struct {
	Text string
}

func (*SelfDesc) RecordType() string { return "selfdesc" }

// EditStr is an editable one-line string widget bound to the property
// named Key. Label is optional markup shown with it; Text/OText are
// markup shown after an edit, to the editor and to bystanders.
type EditStr struct {
	Key        string
	Label      string
	Text       string
	OText      string
	EditAccess AccessLevel
}

func (*EditStr) RecordType() string { return "editstr" }

// PortalRef focuses a single portal. BackTo optionally names the symbol
// to return to when the player backs out.
type PortalRef struct {
	PortID PortalID
	BackTo string
}

func (*PortalRef) RecordType() string { return "portal" }

// PortListRef displays a portal list. FocusPort, when set, narrows the
// display to a single portal of the list.
type PortListRef struct {
	PListID    PortListID
	ReadAccess AccessLevel
	EditAccess AccessLevel
	Text       string
	FocusPort  PortalID
}

func (*PortListRef) RecordType() string { return "portlist" }

// DeepCopy returns a copy of a storable value. Scalars and records are
// returned as-is; lists and maps are copied recursively. This is what
// the property cache snapshots at fill time for mutation detection.
func DeepCopy(val any) any {
	switch v := val.(type) {
	case []any:
		out := make([]any, len(v))
		for i, sub := range v {
			out[i] = DeepCopy(sub)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, sub := range v {
			out[key] = DeepCopy(sub)
		}
		return out
	default:
		return val
	}
}

const maxValueDepth = 64

// CheckStorable verifies that a value consists only of storable types,
// to a bounded depth (which also rejects self-referential containers).
func CheckStorable(val any) error {
	return checkStorable(val, 0)
}

func checkStorable(val any, depth int) error {
	if depth > maxValueDepth {
		return fmt.Errorf("value is too deeply nested (or self-referential)")
	}
	switch v := val.(type) {
	case nil, bool, int64, float64, string:
		return nil
	case Record:
		return nil
	case []any:
		for _, sub := range v {
			if err := checkStorable(sub, depth+1); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for key, sub := range v {
			if key == "" {
				return fmt.Errorf("map key must be a nonempty string")
			}
			if err := checkStorable(sub, depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("value type %T is not storable", val)
	}
}

// Stringify renders a value the way script string conversion does.
// nil becomes "None", bools become "True"/"False", records render as
// "<text>", "<code>", etc.
func Stringify(val any) string {
	switch v := val.(type) {
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return v
	case []any:
		out := "["
		for i, sub := range v {
			if i > 0 {
				out += ", "
			}
			out += Stringify(sub)
		}
		return out + "]"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		out := "{"
		for i, key := range keys {
			if i > 0 {
				out += ", "
			}
			out += strconv.Quote(key) + ": " + Stringify(v[key])
		}
		return out + "}"
	case Record:
		return "<" + v.RecordType() + ">"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Truthy reports the boolean interpretation of a script value: nil,
// False, zero, "", and empty containers are false; records are true.
func Truthy(val any) bool {
	switch v := val.(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}
