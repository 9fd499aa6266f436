package script

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax wraps every parse failure in this package.
var ErrSyntax = errors.New("script: syntax error")

func syntaxErrf(line int, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrSyntax, line, fmt.Sprintf(format, args...))
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNewline
	tokIndent
	tokDedent
	tokName
	tokNumber
	tokString
	tokOp
)

type token struct {
	kind tokKind
	text string
	val  any // number or unescaped string value
	line int
}

// keywords that may not be used as names.
var keywords = map[string]bool{
	"if": true, "elif": true, "else": true, "del": true, "pass": true,
	"return": true, "and": true, "or": true, "not": true, "in": true,
	"is": true, "None": true, "True": true, "False": true,
}

// IsKeyword reports whether name is a reserved word of the script
// language and so unusable as a property symbol.
func IsKeyword(name string) bool {
	return keywords[name]
}

// lexer tokenizes with indentation tracking. Lines inside brackets
// join implicitly; blank and comment-only lines vanish.
type lexer struct {
	src     string
	pos     int
	line    int
	depth   int
	indents []int
	toks    []token
	atStart bool // at the start of a logical line
	content bool // current logical line has produced a token
}

func lex(src string) ([]token, error) {
	lx := &lexer{src: src, line: 1, indents: []int{0}, atStart: true}
	if err := lx.run(); err != nil {
		return nil, err
	}
	return lx.toks, nil
}

func (lx *lexer) emit(t token) {
	lx.toks = append(lx.toks, t)
	if t.kind != tokNewline && t.kind != tokIndent && t.kind != tokDedent {
		lx.content = true
	}
}

func (lx *lexer) endLine() {
	if lx.content {
		lx.emit(token{kind: tokNewline, line: lx.line})
		lx.content = false
	}
	lx.atStart = true
}

func (lx *lexer) run() error {
	for lx.pos < len(lx.src) {
		if lx.atStart && lx.depth == 0 {
			if err := lx.handleIndent(); err != nil {
				return err
			}
			if lx.pos >= len(lx.src) {
				break
			}
		}
		ch := lx.src[lx.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r':
			lx.pos++
		case ch == '#':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		case ch == '\n':
			lx.pos++
			if lx.depth == 0 {
				lx.endLine()
			}
			lx.line++
		case ch == '\\' && lx.depth == 0:
			// Explicit line continuation.
			if lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '\n' {
				lx.pos += 2
				lx.line++
			} else {
				return syntaxErrf(lx.line, "unexpected character %q", ch)
			}
		case ch == '\'' || ch == '"':
			if err := lx.scanString(); err != nil {
				return err
			}
		case ch >= '0' && ch <= '9':
			if err := lx.scanNumber(); err != nil {
				return err
			}
		case ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z'):
			lx.scanName()
		default:
			if err := lx.scanOp(); err != nil {
				return err
			}
		}
	}
	lx.endLine()
	for len(lx.indents) > 1 {
		lx.indents = lx.indents[:len(lx.indents)-1]
		lx.emit(token{kind: tokDedent, line: lx.line})
	}
	lx.emit(token{kind: tokEOF, line: lx.line})
	return nil
}

// handleIndent measures the leading whitespace of a line and emits
// INDENT/DEDENT tokens against the indentation stack. Blank and
// comment-only lines are skipped entirely.
func (lx *lexer) handleIndent() error {
	for {
		col := 0
		i := lx.pos
		for i < len(lx.src) {
			switch lx.src[i] {
			case ' ':
				col++
			case '\t':
				col = (col/8 + 1) * 8
			case '\r':
			default:
				goto measured
			}
			i++
		}
	measured:
		if i >= len(lx.src) {
			lx.pos = i
			return nil
		}
		if lx.src[i] == '\n' {
			lx.pos = i + 1
			lx.line++
			continue
		}
		if lx.src[i] == '#' {
			for i < len(lx.src) && lx.src[i] != '\n' {
				i++
			}
			lx.pos = i
			continue
		}
		lx.pos = i
		lx.atStart = false
		top := lx.indents[len(lx.indents)-1]
		switch {
		case col > top:
			lx.indents = append(lx.indents, col)
			lx.emit(token{kind: tokIndent, line: lx.line})
		case col < top:
			for len(lx.indents) > 1 && lx.indents[len(lx.indents)-1] > col {
				lx.indents = lx.indents[:len(lx.indents)-1]
				lx.emit(token{kind: tokDedent, line: lx.line})
			}
			if lx.indents[len(lx.indents)-1] != col {
				return syntaxErrf(lx.line, "unindent does not match any outer level")
			}
		}
		return nil
	}
}

func (lx *lexer) scanString() error {
	quote := lx.src[lx.pos]
	line := lx.line
	var sb strings.Builder
	i := lx.pos + 1
	for i < len(lx.src) {
		ch := lx.src[i]
		switch ch {
		case quote:
			lx.emit(token{kind: tokString, text: sb.String(), val: sb.String(), line: line})
			lx.pos = i + 1
			return nil
		case '\\':
			if i+1 >= len(lx.src) {
				return syntaxErrf(line, "unterminated string")
			}
			i++
			switch lx.src[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '\\', '\'', '"':
				sb.WriteByte(lx.src[i])
			case '\n':
				lx.line++
			default:
				sb.WriteByte('\\')
				sb.WriteByte(lx.src[i])
			}
			i++
		case '\n':
			return syntaxErrf(line, "unterminated string")
		default:
			sb.WriteByte(ch)
			i++
		}
	}
	return syntaxErrf(line, "unterminated string")
}

func (lx *lexer) scanNumber() error {
	i := lx.pos
	isFloat := false
	for i < len(lx.src) && lx.src[i] >= '0' && lx.src[i] <= '9' {
		i++
	}
	if i < len(lx.src) && lx.src[i] == '.' {
		isFloat = true
		i++
		for i < len(lx.src) && lx.src[i] >= '0' && lx.src[i] <= '9' {
			i++
		}
	}
	if i < len(lx.src) && (lx.src[i] == 'e' || lx.src[i] == 'E') {
		isFloat = true
		i++
		if i < len(lx.src) && (lx.src[i] == '+' || lx.src[i] == '-') {
			i++
		}
		for i < len(lx.src) && lx.src[i] >= '0' && lx.src[i] <= '9' {
			i++
		}
	}
	lit := lx.src[lx.pos:i]
	var val any
	if isFloat {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return syntaxErrf(lx.line, "bad number %q", lit)
		}
		val = f
	} else {
		n, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return syntaxErrf(lx.line, "bad number %q", lit)
		}
		val = n
	}
	lx.emit(token{kind: tokNumber, text: lit, val: val, line: lx.line})
	lx.pos = i
	return nil
}

func (lx *lexer) scanName() {
	i := lx.pos
	for i < len(lx.src) && (lx.src[i] == '_' ||
		(lx.src[i] >= 'a' && lx.src[i] <= 'z') ||
		(lx.src[i] >= 'A' && lx.src[i] <= 'Z') ||
		(lx.src[i] >= '0' && lx.src[i] <= '9')) {
		i++
	}
	lx.emit(token{kind: tokName, text: lx.src[lx.pos:i], line: lx.line})
	lx.pos = i
}

// twoCharOps are matched before their one-character prefixes.
var twoCharOps = map[string]bool{
	"**": true, "//": true, "<=": true, ">=": true, "==": true, "!=": true,
}

var oneCharOps = map[byte]bool{
	'+': true, '-': true, '*': true, '/': true, '%': true,
	'<': true, '>': true, '=': true, '(': true, ')': true,
	'[': true, ']': true, ',': true, ':': true, '.': true,
	';': true, '~': true,
}

func (lx *lexer) scanOp() error {
	if lx.pos+1 < len(lx.src) && twoCharOps[lx.src[lx.pos:lx.pos+2]] {
		op := lx.src[lx.pos : lx.pos+2]
		lx.emit(token{kind: tokOp, text: op, line: lx.line})
		lx.pos += 2
		return nil
	}
	ch := lx.src[lx.pos]
	if !oneCharOps[ch] {
		return syntaxErrf(lx.line, "unexpected character %q", ch)
	}
	switch ch {
	case '(', '[':
		lx.depth++
	case ')', ']':
		if lx.depth > 0 {
			lx.depth--
		}
	}
	lx.emit(token{kind: tokOp, text: string(ch), line: lx.line})
	lx.pos++
	return nil
}
