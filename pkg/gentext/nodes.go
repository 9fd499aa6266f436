// Package gentext parses and performs procedural text templates. A
// template is a tree of selection and sequence nodes; rendering walks
// the tree, choosing among alternatives with a seeded hash so that the
// same seed always yields the same text.
package gentext

// Node is one element of a parsed template tree. The set of
// implementations is closed.
type Node interface {
	genNode()
}

// Literal is a scalar leaf: string, int64, float64, or bool.
type Literal struct {
	Val any
}

func (*Literal) genNode() {}

// Symbol is a bare lowercase name, looked up as a property when the
// template is performed.
type Symbol struct {
	Name string
}

func (*Symbol) genNode() {}

// Seq renders all of its children in order.
type Seq struct {
	Prefix string
	Nodes  []Node
}

func (*Seq) genNode() {}

// Alt renders exactly one child, selected by seeded hash.
type Alt struct {
	Prefix string
	Nodes  []Node
}

func (*Alt) genNode() {}

// Shuffle renders one child, avoiding repeats within a single
// generation pass where possible.
type Shuffle struct {
	Prefix string
	Nodes  []Node
}

func (*Shuffle) genNode() {}

// WeightEntry pairs a child with its selection weight.
type WeightEntry struct {
	Weight float64
	Node   Node
}

// Weight renders one child, selected with probability proportional to
// its weight.
type Weight struct {
	Prefix  string
	Entries []WeightEntry
	Total   float64
}

func (*Weight) genNode() {}

// Opt renders its child with the given probability, otherwise nothing.
type Opt struct {
	Prefix string
	Chance float64
	Node   Node
}

func (*Opt) genNode() {}

// SetKey sets a generation parameter, then optionally renders a child.
// If Value is a Symbol, it is looked up at perform time.
type SetKey struct {
	Prefix string
	Key    string
	Value  Node
	Node   Node
}

func (*SetKey) genNode() {}

// IfKey renders one of two children depending on whether a generation
// parameter equals a value.
type IfKey struct {
	Prefix string
	Key    string
	Value  any
	True   Node
	False  Node
}

func (*IfKey) genNode() {}

// SwitchCase is one arm of a SwitchKey.
type SwitchCase struct {
	Value any
	Node  Node
}

// SwitchKey renders the child whose case value equals a generation
// parameter, or the else child if none match.
type SwitchKey struct {
	Prefix string
	Key    string
	Cases  []SwitchCase
	Else   Node
}

func (*SwitchKey) genNode() {}

// MarkerKind identifies a static output marker.
type MarkerKind int

const (
	// MarkerWord is the implicit state after a literal; never parsed.
	MarkerWord MarkerKind = iota
	// MarkerRunOn suppresses the space before the next word.
	MarkerRunOn
	// MarkerA inserts "a" or "an" before the next word, chosen by its
	// initial letter. MarkerAForm and MarkerAnForm force the choice.
	MarkerA
	MarkerAForm
	MarkerAnForm
	MarkerComma
	MarkerSemi
	MarkerStop
	MarkerPara
	// MarkerBegin is the initial state; never parsed.
	MarkerBegin
)

// Marker is a static punctuation or article node. It renders as itself
// into the accumulator; the cooker resolves runs of adjacent markers.
type Marker struct {
	Kind MarkerKind
}

func (*Marker) genNode() {}

// precedence orders break markers by severity. When two land adjacent
// in the output stream, the higher one survives.
func (k MarkerKind) precedence() int {
	switch k {
	case MarkerBegin:
		return 10
	case MarkerPara:
		return 5
	case MarkerStop:
		return 4
	case MarkerSemi:
		return 3
	case MarkerComma:
		return 2
	case MarkerRunOn:
		return 1
	default:
		return 0
	}
}

// bareMarkers maps bare template names to marker kinds.
var bareMarkers = map[string]MarkerKind{
	"_":      MarkerRunOn,
	"A":      MarkerA,
	"An":     MarkerA,
	"AN":     MarkerA,
	"AForm":  MarkerAForm,
	"AFORM":  MarkerAForm,
	"AnForm": MarkerAnForm,
	"ANFORM": MarkerAnForm,
	"Para":   MarkerPara,
	"PARA":   MarkerPara,
	"Stop":   MarkerStop,
	"STOP":   MarkerStop,
	"Semi":   MarkerSemi,
	"SEMI":   MarkerSemi,
	"Comma":  MarkerComma,
	"COMMA":  MarkerComma,
}

// callNames is the set of node constructors that require call syntax.
var callNames = map[string]bool{
	"Seq": true, "Alt": true, "Shuffle": true, "Opt": true,
	"Weight": true, "SetKey": true, "IfKey": true, "SwitchKey": true,
}
