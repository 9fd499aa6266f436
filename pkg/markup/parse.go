// Package markup parses the square-bracket text format used by world
// properties of type text: [[expr]] interpolations and $tokens,
// [visible], [visible|target], and [visible||extra] links, and
// blank-line paragraph breaks.
package markup

import (
	"errors"
	"regexp"
	"strings"
)

// Structural errors raised by Parse. Unknown $tokens are not errors
// (they render as a diagnostic string); these mean the bracket structure
// itself is broken.
var (
	ErrUnterminatedInterp = errors.New("markup: interpolated text missing ]]")
	ErrUnterminatedLink   = errors.New("markup: link missing ]")
	ErrNestedLink         = errors.New("markup: links cannot be nested")
)

var (
	reBracketGroup       = regexp.MustCompile(`\[+`)
	reCloseOrBarOrInterp = regexp.MustCompile(`]|\|\|?|\[`)
	reTwoLineBreaks      = regexp.MustCompile(`[ \t]*\n[ \t]*\n[ \t\n]*`)
	reInitDollar         = regexp.MustCompile(`^[ \t\n]*\$`)
)

// appendTextWithParas appends literal text to the node list, converting
// each blank line (two or more newlines with only horizontal whitespace
// between) into a ParaBreak. Square brackets must already be dealt with.
func appendTextWithParas(dest []Node, text string) []Node {
	if text == "" {
		return dest
	}
	parts := reTwoLineBreaks.Split(text, -1)
	if len(parts) <= 1 {
		return append(dest, Str(text))
	}
	for i, el := range parts {
		if i > 0 {
			dest = append(dest, ParaBreak{})
		}
		if el != "" {
			dest = append(dest, Str(el))
		}
	}
	return dest
}

// Parse breaks a string into a description list: a sequence of Str runs
// and structural nodes. The bracket rules are somewhat ornate; see the
// unit tests for the full catalog.
func Parse(text string) ([]Node, error) {
	res := []Node{}
	start := 0

	for start < len(text) {
		loc := reBracketGroup.FindStringIndex(text[start:])
		if loc == nil {
			res = appendTextWithParas(res, text[start:])
			break
		}
		pos := start + loc[0]
		numBrackets := loc[1] - loc[0]
		res = appendTextWithParas(res, text[start:pos])
		start = pos

		if numBrackets == 2 {
			// A complete top-level [[...]] interpolation.
			start += 2
			end := strings.Index(text[start:], "]]")
			if end < 0 {
				return nil, ErrUnterminatedInterp
			}
			res = append(res, parseToken(text[start:start+end]))
			start += end + 2
			continue
		}

		start++

		if reInitDollar.MatchString(text[start:]) {
			// Special case: [$foo] is treated the same as [[$foo]].
			// Not a link, but an interpolation.
			end := strings.Index(text[start:], "]")
			if end < 0 {
				return nil, ErrUnterminatedInterp
			}
			res = append(res, parseToken(text[start:start+end]))
			start += end + 1
			continue
		}

		// A [...] or [...|...] link. The first part may contain a mix of
		// text and interpolations. A [...||...] link pastes the second
		// part into the text as well as the target.
		linkStart := start
		linkIndex := len(res)
		res = append(res, Link{})

		closed := false
		for start < len(text) {
			mloc := reCloseOrBarOrInterp.FindStringIndex(text[start:])
			if mloc == nil {
				return nil, ErrUnterminatedLink
			}
			mpos := start + mloc[0]

			switch text[mpos] {
			case ']':
				res = appendTextWithParas(res, text[start:mpos])
				chunk := text[linkStart:mpos]
				link := Link{}
				if looksURLLike(chunk) {
					link.Target = strings.TrimSpace(chunk)
					link.External = true
				} else {
					link.Target = Slug(chunk)
				}
				res[linkIndex] = link
				res = append(res, EndLink{External: link.External})
				start = mpos + 1
				closed = true

			case '|':
				res = appendTextWithParas(res, text[start:mpos])
				start = start + mloc[1]
				doubleBar := mloc[1]-mloc[0] > 1
				end := strings.Index(text[start:], "]")
				if end < 0 {
					return nil, ErrUnterminatedLink
				}
				chunk := text[start : start+end]
				link := Link{}
				if doubleBar {
					res = appendTextWithParas(res, " "+chunk)
					link.Target = Slug(chunk)
				} else if looksURLLike(chunk) {
					link.Target = strings.TrimSpace(chunk)
					link.External = true
				} else {
					link.Target = Slug(chunk)
				}
				res[linkIndex] = link
				res = append(res, EndLink{External: link.External})
				start = start + end + 1
				closed = true

			case '[':
				if mpos+1 >= len(text) || text[mpos+1] != '[' {
					return nil, ErrNestedLink
				}
				// A complete [[...]] interpolation inside the link text.
				res = appendTextWithParas(res, text[start:mpos])
				start = mpos + 2
				end := strings.Index(text[start:], "]]")
				if end < 0 {
					return nil, ErrUnterminatedInterp
				}
				res = append(res, parseToken(text[start:start+end]))
				start += end + 2
				continue
			}
			if closed {
				break
			}
		}
		if !closed {
			return nil, ErrUnterminatedLink
		}
	}
	return res, nil
}

// looksURLLike reports whether a link target should be passed through
// verbatim as an external URL rather than slugged.
func looksURLLike(val string) bool {
	val = strings.TrimSpace(val)
	return strings.HasPrefix(val, "http:") || strings.HasPrefix(val, "https:")
}

// Flatten drops all structural nodes and pastes the literal runs back
// together. Used for MESSAGE-level rendering and round-trip checks.
func Flatten(nodes []Node) string {
	var sb strings.Builder
	for _, nod := range nodes {
		if s, ok := nod.(Str); ok {
			sb.WriteString(string(s))
		}
	}
	return sb.String()
}
