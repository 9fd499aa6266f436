package gentext

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sink receives cooked output: literal text runs and paragraph breaks.
type Sink interface {
	WriteString(s string)
	WritePara()
}

// Cooker assembles the raw stream of words and markers produced by a
// generation pass into readable prose. Before each word it decides the
// separator and capitalization implied by the markers seen since the
// previous word; adjacent break markers collapse to the most severe
// one.
type Cooker struct {
	out Sink

	pending MarkerKind // break to apply before the next word
	started bool       // a word has been written

	// A pending indefinite article waits for the next word so the
	// a/an choice can see its first letter.
	article     bool
	articleKind MarkerKind
}

// NewCooker returns a Cooker writing to out. The initial state
// capitalizes the first word and emits no leading separator.
func NewCooker(out Sink) *Cooker {
	return &Cooker{out: out, pending: MarkerBegin}
}

// Append adds one accumulator item: a string is a word run, a *Marker
// adjusts the pending break or article state. Other values are
// ignored.
func (c *Cooker) Append(val any) {
	switch v := val.(type) {
	case string:
		if v != "" {
			c.word(v)
		}
	case *Marker:
		c.marker(v.Kind)
	}
}

func (c *Cooker) marker(kind MarkerKind) {
	switch kind {
	case MarkerA, MarkerAForm, MarkerAnForm:
		c.article = true
		c.articleKind = kind
	default:
		if c.article {
			// A break after a dangling article drops the article.
			c.article = false
		}
		if kind.precedence() > c.pending.precedence() {
			c.pending = kind
		}
	}
}

func (c *Cooker) word(text string) {
	sep, capitalize := c.breakEffect(c.pending)
	c.pending = MarkerWord

	if sep == "\n" {
		// A paragraph break closes the open sentence.
		c.out.WriteString(".")
		c.out.WritePara()
	} else if sep != "" {
		c.out.WriteString(sep)
	}

	if c.article {
		art := "a"
		switch {
		case c.articleKind == MarkerAnForm:
			art = "an"
		case c.articleKind == MarkerA && startsWithVowel(text):
			art = "an"
		}
		if capitalize {
			art = strings.ToUpper(art[:1]) + art[1:]
			capitalize = false
		}
		c.out.WriteString(art + " ")
		c.article = false
	}

	if capitalize {
		text = capitalizeFirst(text)
	}
	c.out.WriteString(text)
	c.started = true
}

// breakEffect maps a pending break onto the separator text and whether
// the next word starts a sentence. A "\n" separator stands for a
// paragraph break.
func (c *Cooker) breakEffect(kind MarkerKind) (string, bool) {
	switch kind {
	case MarkerBegin:
		return "", true
	case MarkerPara:
		return "\n", true
	case MarkerStop:
		return ". ", true
	case MarkerSemi:
		return "; ", false
	case MarkerComma:
		return ", ", false
	case MarkerRunOn:
		return "", false
	default:
		return " ", false
	}
}

// Finish closes the pass, terminating the final sentence with a period
// when one is still open.
func (c *Cooker) Finish() {
	if c.started {
		c.out.WriteString(".")
	}
}

func startsWithVowel(text string) bool {
	r, _ := utf8.DecodeRuneInString(text)
	switch unicode.ToLower(r) {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

func capitalizeFirst(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	up := unicode.ToUpper(r)
	if up == r {
		return text
	}
	return string(up) + text[size:]
}
