package markup

import "strings"

// Node is one element of a parsed description: either a literal text run
// (Str) or a structural marker. The set of implementations is closed;
// the evaluator switches exhaustively over it.
type Node interface {
	markupNode()
}

// Str is a literal text run.
type Str string

func (Str) markupNode() {}

// Interpolate is a [[expr]] interpolation whose inner expression is
// evaluated as script code and spliced into the output.
type Interpolate struct {
	Expr string
}

func (Interpolate) markupNode() {}

// If opens a conditional region: [[$if expr]].
type If struct {
	Expr string
}

func (If) markupNode() {}

// ElIf continues a conditional region: [[$elif expr]].
type ElIf struct {
	Expr string
}

func (ElIf) markupNode() {}

// Else flips a conditional region: [[$else]].
type Else struct{}

func (Else) markupNode() {}

// End closes a conditional region: [[$end]].
type End struct{}

func (End) markupNode() {}

// Link opens a link. Target is a property slug, or a verbatim URL when
// External is set.
type Link struct {
	Target   string
	External bool
}

func (Link) markupNode() {}

// EndLink closes the innermost link.
type EndLink struct {
	External bool
}

func (EndLink) markupNode() {}

// Style opens a style run ("emph", "fixed").
type Style struct {
	Key string
}

func (Style) markupNode() {}

// EndStyle closes a style run.
type EndStyle struct {
	Key string
}

func (EndStyle) markupNode() {}

// ParaBreak is a paragraph break, produced by a blank line or [[$para]].
type ParaBreak struct{}

func (ParaBreak) markupNode() {}

// OpenBracket and CloseBracket render literal square brackets.
type OpenBracket struct{}

func (OpenBracket) markupNode() {}

type CloseBracket struct{}

func (CloseBracket) markupNode() {}

// PlayerRef renders the acting player's name or a pronoun form. Key is
// the canonical form ("name", "we", "us", "our", "ours", "ourself", or
// a capitalized variant); Expr optionally names a different player.
type PlayerRef struct {
	Key  string
	Expr string
}

func (PlayerRef) markupNode() {}

// parseToken turns the inside of a [[...]] group into a node. An
// expression with no leading $ is an Interpolate; a $token is looked up
// in the token table. Unknown tokens become a diagnostic Str, not an
// error.
func parseToken(expr string) Node {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "$") {
		return Interpolate{Expr: expr}
	}
	key, val, _ := strings.Cut(expr, " ")
	val = strings.TrimSpace(val)

	switch key {
	case "$para":
		return noArg(key, val, ParaBreak{})
	case "$openbracket":
		return noArg(key, val, OpenBracket{})
	case "$closebracket":
		return noArg(key, val, CloseBracket{})
	case "$if":
		return If{Expr: val}
	case "$elif":
		return ElIf{Expr: val}
	case "$else":
		return noArg(key, val, Else{})
	case "$end":
		return noArg(key, val, End{})
	case "$em":
		return noArg(key, val, Style{Key: "emph"})
	case "$/em":
		return noArg(key, val, EndStyle{Key: "emph"})
	case "$fixed":
		return noArg(key, val, Style{Key: "fixed"})
	case "$/fixed":
		return noArg(key, val, EndStyle{Key: "fixed"})
	}
	if ref, ok := pronounTokens[key]; ok {
		return PlayerRef{Key: ref, Expr: val}
	}
	return Str("[Unknown key: " + key + "]")
}

func noArg(key, val string, nod Node) Node {
	if val != "" {
		return Str("[" + key + " does not accept arguments]")
	}
	return nod
}

// pronounTokens maps $-tokens to canonical PlayerRef keys. The "they"
// spellings alias the "we" forms; capitalization is preserved so the
// renderer can pick the capitalized pronoun.
var pronounTokens = map[string]string{
	"$name": "name", "$Name": "name",
	"$we": "we", "$they": "we",
	"$us": "us", "$them": "us",
	"$our": "our", "$their": "our",
	"$ours": "ours", "$theirs": "ours",
	"$ourself": "ourself", "$themself": "ourself",
	"$We": "We", "$They": "We",
	"$Us": "Us", "$Them": "Us",
	"$Our": "Our", "$Their": "Our",
	"$Ours": "Ours", "$Theirs": "Ours",
	"$Ourself": "Ourself", "$Themself": "Ourself",
}
