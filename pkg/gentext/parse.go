package gentext

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/weaveworld/goweave/pkg/markup"
)

// ErrSyntax wraps every template parse failure.
var ErrSyntax = errors.New("gentext: syntax error")

func syntaxErrf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
}

// Template is a complete parsed template. Root may be nil for an empty
// source.
type Template struct {
	Root Node
}

// The tokenizer and first parse stage build a small expression tree;
// evalExpr then converts it to Node values, threading positional
// prefixes down the tree.

type expr interface{}

type exprStr string

type exprNum struct{ val any } // int64 or float64

type exprName string

type exprList []expr

type exprTuple []expr

type exprKeyword struct {
	name string
	val  expr
}

type exprCall struct {
	fn     string
	args   []expr
	kwargs []exprKeyword
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNewline
	tokName
	tokNumber
	tokString
	tokPunct // one of [ ] ( ) , =
)

type token struct {
	kind tokKind
	text string
	val  any // number value for tokNumber, unescaped text for tokString
	line int
}

func tokenize(src string) ([]token, error) {
	var toks []token
	line := 1
	depth := 0
	i := 0
	for i < len(src) {
		ch := src[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r':
			i++
		case ch == '#':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case ch == '\n':
			if depth == 0 {
				toks = append(toks, token{kind: tokNewline, line: line})
			}
			line++
			i++
		case ch == ';':
			toks = append(toks, token{kind: tokNewline, line: line})
			i++
		case ch == '[' || ch == '(':
			depth++
			toks = append(toks, token{kind: tokPunct, text: string(ch), line: line})
			i++
		case ch == ']' || ch == ')':
			depth--
			toks = append(toks, token{kind: tokPunct, text: string(ch), line: line})
			i++
		case ch == ',' || ch == '=':
			toks = append(toks, token{kind: tokPunct, text: string(ch), line: line})
			i++
		case ch == '\'' || ch == '"':
			text, rest, err := scanString(src[i:], line)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: text, val: text, line: line})
			i = len(src) - len(rest)
		case ch >= '0' && ch <= '9':
			j := i
			isFloat := false
			for j < len(src) && (src[j] >= '0' && src[j] <= '9') {
				j++
			}
			if j < len(src) && src[j] == '.' {
				isFloat = true
				j++
				for j < len(src) && (src[j] >= '0' && src[j] <= '9') {
					j++
				}
			}
			if j < len(src) && (src[j] == 'e' || src[j] == 'E') {
				isFloat = true
				j++
				if j < len(src) && (src[j] == '+' || src[j] == '-') {
					j++
				}
				for j < len(src) && (src[j] >= '0' && src[j] <= '9') {
					j++
				}
			}
			lit := src[i:j]
			var val any
			if isFloat {
				f, err := strconv.ParseFloat(lit, 64)
				if err != nil {
					return nil, syntaxErrf("line %d: bad number %q", line, lit)
				}
				val = f
			} else {
				n, err := strconv.ParseInt(lit, 10, 64)
				if err != nil {
					return nil, syntaxErrf("line %d: bad number %q", line, lit)
				}
				val = n
			}
			toks = append(toks, token{kind: tokNumber, text: lit, val: val, line: line})
			i = j
		case ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z'):
			j := i
			for j < len(src) && (src[j] == '_' ||
				(src[j] >= 'a' && src[j] <= 'z') || (src[j] >= 'A' && src[j] <= 'Z') ||
				(src[j] >= '0' && src[j] <= '9')) {
				j++
			}
			toks = append(toks, token{kind: tokName, text: src[i:j], line: line})
			i = j
		default:
			return nil, syntaxErrf("line %d: unexpected character %q", line, ch)
		}
	}
	toks = append(toks, token{kind: tokEOF, line: line})
	return toks, nil
}

// scanString consumes a quoted string literal and returns its unescaped
// value and the remaining source.
func scanString(src string, line int) (string, string, error) {
	quote := src[0]
	var sb strings.Builder
	i := 1
	for i < len(src) {
		ch := src[i]
		switch ch {
		case quote:
			return sb.String(), src[i+1:], nil
		case '\\':
			if i+1 >= len(src) {
				return "", "", syntaxErrf("line %d: unterminated string", line)
			}
			i++
			switch src[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '\\', '\'', '"':
				sb.WriteByte(src[i])
			case '\n':
				line++
			default:
				sb.WriteByte('\\')
				sb.WriteByte(src[i])
			}
			i++
		case '\n':
			return "", "", syntaxErrf("line %d: unterminated string", line)
		default:
			sb.WriteByte(ch)
			i++
		}
	}
	return "", "", syntaxErrf("line %d: unterminated string", line)
}

type parser struct {
	toks []token
	pos  int

	// sawTrailingComma distinguishes a one-element tuple from simple
	// grouping; parseExprList leaves it describing the list just parsed.
	sawTrailingComma bool
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(text string) error {
	t := p.next()
	if t.kind != tokPunct || t.text != text {
		return syntaxErrf("line %d: expected %q, found %q", t.line, text, t.text)
	}
	return nil
}

func (p *parser) isPunct(text string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == text
}

// parseExpr parses one expression into the intermediate tree.
func (p *parser) parseExpr() (expr, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return exprStr(t.val.(string)), nil
	case tokNumber:
		return exprNum{val: t.val}, nil
	case tokName:
		if p.isPunct("(") {
			p.next()
			return p.parseCall(t.text, t.line)
		}
		return exprName(t.text), nil
	case tokPunct:
		switch t.text {
		case "[":
			items, err := p.parseExprList("]")
			if err != nil {
				return nil, err
			}
			return exprList(items), nil
		case "(":
			items, err := p.parseExprList(")")
			if err != nil {
				return nil, err
			}
			// A parenthesized single expression with no trailing comma
			// is grouping, not a one-alternative choice.
			if len(items) == 1 && !p.sawTrailingComma {
				return items[0], nil
			}
			return exprTuple(items), nil
		}
	}
	return nil, syntaxErrf("line %d: unexpected token %q", t.line, t.text)
}

func (p *parser) parseExprList(closer string) ([]expr, error) {
	var items []expr
	p.sawTrailingComma = false
	for {
		if p.isPunct(closer) {
			p.next()
			return items, nil
		}
		sub, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, sub)
		p.sawTrailingComma = false
		if p.isPunct(",") {
			p.next()
			p.sawTrailingComma = true
			continue
		}
		if err := p.expect(closer); err != nil {
			return nil, err
		}
		return items, nil
	}
}

// parseCall parses the argument list of name(...). Keyword arguments
// must follow positional ones.
func (p *parser) parseCall(fn string, line int) (expr, error) {
	call := exprCall{fn: fn}
	for {
		if p.isPunct(")") {
			p.next()
			return call, nil
		}
		t := p.peek()
		if t.kind == tokName && p.toks[p.pos+1].kind == tokPunct && p.toks[p.pos+1].text == "=" {
			p.next()
			p.next()
			sub, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.kwargs = append(call.kwargs, exprKeyword{name: t.text, val: sub})
		} else {
			if len(call.kwargs) > 0 {
				return nil, syntaxErrf("line %d: positional argument after keyword argument", t.line)
			}
			sub, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.args = append(call.args, sub)
		}
		if p.isPunct(",") {
			p.next()
			continue
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return call, nil
	}
}

// Parse converts template source into a Template. The syntax is a
// narrow expression language: string and number literals, bare names,
// [a, b] sequences, (a, b) alternative groups, and calls of the named
// node constructors. Statements are separated by newlines or
// semicolons; multiple statements form an implicit sequence.
func Parse(src string) (*Template, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}

	var stmts []expr
	for {
		for p.peek().kind == tokNewline {
			p.next()
		}
		if p.peek().kind == tokEOF {
			break
		}
		ex, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, ex)
		t := p.peek()
		if t.kind != tokNewline && t.kind != tokEOF {
			return nil, syntaxErrf("line %d: unexpected token %q after expression", t.line, t.text)
		}
	}

	switch len(stmts) {
	case 0:
		return &Template{}, nil
	case 1:
		root, err := evalExpr(stmts[0], "")
		if err != nil {
			return nil, err
		}
		return &Template{Root: root}, nil
	default:
		nodes := make([]Node, len(stmts))
		for i, ex := range stmts {
			sub, err := evalExpr(ex, ":seq_"+strconv.Itoa(i))
			if err != nil {
				return nil, err
			}
			nodes[i] = sub
		}
		return &Template{Root: &Seq{Nodes: nodes}}, nil
	}
}

// evalExpr converts an intermediate expression into a Node, assigning
// the positional prefix that seeds random selection at that position.
func evalExpr(ex expr, prefix string) (Node, error) {
	switch v := ex.(type) {
	case exprStr:
		return &Literal{Val: string(v)}, nil

	case exprNum:
		return &Literal{Val: v.val}, nil

	case exprList:
		nodes := make([]Node, len(v))
		for i, sub := range v {
			nod, err := evalExpr(sub, prefix+":seq_"+strconv.Itoa(i))
			if err != nil {
				return nil, err
			}
			nodes[i] = nod
		}
		return &Seq{Prefix: prefix, Nodes: nodes}, nil

	case exprTuple:
		nodes := make([]Node, len(v))
		for i, sub := range v {
			nod, err := evalExpr(sub, prefix+":alt_"+strconv.Itoa(i))
			if err != nil {
				return nil, err
			}
			nodes[i] = nod
		}
		return &Alt{Prefix: prefix, Nodes: nodes}, nil

	case exprName:
		name := string(v)
		switch name {
		case "None":
			return &Literal{}, nil
		case "True":
			return &Literal{Val: true}, nil
		case "False":
			return &Literal{Val: false}, nil
		}
		if kind, ok := bareMarkers[name]; ok {
			return &Marker{Kind: kind}, nil
		}
		if callNames[name] {
			return nil, syntaxErrf("special node requires arguments: %s", name)
		}
		if name == markup.Slug(name) {
			return &Symbol{Name: name}, nil
		}
		return nil, syntaxErrf("not a special node or database key: %s", name)

	case exprCall:
		return evalCall(v, prefix)
	}
	return nil, syntaxErrf("expression type not implemented")
}

func evalCall(call exprCall, prefix string) (Node, error) {
	if kind, ok := bareMarkers[call.fn]; ok {
		return &Marker{Kind: kind}, nil
	}
	if !callNames[call.fn] {
		return nil, syntaxErrf("not a special node: %s()", call.fn)
	}

	args := make([]Node, len(call.args))
	for i, sub := range call.args {
		nod, err := evalExpr(sub, prefix+":arg_"+strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		args[i] = nod
	}
	kwargs := make(map[string]Node, len(call.kwargs))
	for _, kw := range call.kwargs {
		if _, dup := kwargs[kw.name]; dup {
			return nil, syntaxErrf("%s: duplicate keyword argument %q", call.fn, kw.name)
		}
		nod, err := evalExpr(kw.val, prefix+":kwarg_"+kw.name)
		if err != nil {
			return nil, err
		}
		kwargs[kw.name] = nod
	}

	switch call.fn {
	case "Seq", "Alt", "Shuffle":
		if len(kwargs) > 0 {
			return nil, syntaxErrf("%s does not accept keyword arguments", call.fn)
		}
		switch call.fn {
		case "Seq":
			return &Seq{Prefix: prefix, Nodes: args}, nil
		case "Alt":
			return &Alt{Prefix: prefix, Nodes: args}, nil
		default:
			return &Shuffle{Prefix: prefix, Nodes: args}, nil
		}

	case "Opt":
		slots, err := bindParams("Opt", []string{"val", "nod"}, 2, args, kwargs)
		if err != nil {
			return nil, err
		}
		chance, err := literalNumber("Opt", slots[0])
		if err != nil {
			return nil, err
		}
		return &Opt{Prefix: prefix, Chance: chance, Node: slots[1]}, nil

	case "Weight":
		if len(kwargs) > 0 {
			return nil, syntaxErrf("Weight does not accept keyword arguments")
		}
		if len(args)%2 != 0 {
			return nil, syntaxErrf("Weight: arguments must be weight, node pairs")
		}
		res := &Weight{Prefix: prefix}
		for i := 0; i < len(args); i += 2 {
			wgt, err := literalNumber("Weight", args[i])
			if err != nil {
				return nil, err
			}
			if wgt < 0 {
				return nil, syntaxErrf("Weight: entry is negative")
			}
			res.Entries = append(res.Entries, WeightEntry{Weight: wgt, Node: args[i+1]})
			res.Total += wgt
		}
		return res, nil

	case "SetKey":
		slots, err := bindParams("SetKey", []string{"key", "val", "nod"}, 2, args, kwargs)
		if err != nil {
			return nil, err
		}
		key, err := literalString("SetKey", slots[0])
		if err != nil {
			return nil, err
		}
		return &SetKey{Prefix: prefix, Key: key, Value: slots[1], Node: slots[2]}, nil

	case "IfKey":
		slots, err := bindParams("IfKey", []string{"key", "val", "truenod", "falsenod"}, 3, args, kwargs)
		if err != nil {
			return nil, err
		}
		key, err := literalString("IfKey", slots[0])
		if err != nil {
			return nil, err
		}
		return &IfKey{Prefix: prefix, Key: key, Value: caseValue(slots[1]),
			True: slots[2], False: slots[3]}, nil

	case "SwitchKey":
		if len(kwargs) > 0 {
			return nil, syntaxErrf("SwitchKey does not accept keyword arguments")
		}
		if len(args) == 0 {
			return nil, syntaxErrf("SwitchKey: missing key")
		}
		key, err := literalString("SwitchKey", args[0])
		if err != nil {
			return nil, err
		}
		res := &SwitchKey{Prefix: prefix, Key: key}
		rest := args[1:]
		for i := 0; i+1 < len(rest); i += 2 {
			res.Cases = append(res.Cases, SwitchCase{Value: caseValue(rest[i]), Node: rest[i+1]})
		}
		if len(rest)%2 != 0 {
			res.Else = rest[len(rest)-1]
		}
		return res, nil
	}
	return nil, syntaxErrf("not a special node: %s()", call.fn)
}

// bindParams maps positional and keyword arguments onto named slots.
// The first required slots must all be filled.
func bindParams(fn string, params []string, required int, args []Node, kwargs map[string]Node) ([]Node, error) {
	slots := make([]Node, len(params))
	if len(args) > len(params) {
		return nil, syntaxErrf("%s: too many arguments", fn)
	}
	copy(slots, args)
	for name, nod := range kwargs {
		idx := -1
		for i, p := range params {
			if p == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, syntaxErrf("%s: unknown keyword argument %q", fn, name)
		}
		if slots[idx] != nil {
			return nil, syntaxErrf("%s: argument %q given twice", fn, name)
		}
		slots[idx] = nod
	}
	for i := 0; i < required; i++ {
		if slots[i] == nil {
			return nil, syntaxErrf("%s: missing argument %q", fn, params[i])
		}
	}
	return slots, nil
}

func literalNumber(fn string, nod Node) (float64, error) {
	if lit, ok := nod.(*Literal); ok {
		switch v := lit.Val.(type) {
		case int64:
			return float64(v), nil
		case float64:
			return v, nil
		}
	}
	return 0, syntaxErrf("%s: expected a number", fn)
}

func literalString(fn string, nod Node) (string, error) {
	if lit, ok := nod.(*Literal); ok {
		if s, ok := lit.Val.(string); ok {
			return s, nil
		}
	}
	return "", syntaxErrf("%s: expected a string key", fn)
}

// caseValue extracts the comparison value for IfKey/SwitchKey arms.
// Literals compare by value; any other node never matches a parameter.
func caseValue(nod Node) any {
	if lit, ok := nod.(*Literal); ok {
		return lit.Val
	}
	return nod
}
