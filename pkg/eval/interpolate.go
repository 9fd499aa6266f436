package eval

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/weaveworld/goweave/pkg/markup"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// interpolateText renders a pile of (already-looked-up) markup into
// the accumulator: literal runs, [[expr]] interpolations, links,
// styles, $if conditionals, and pronoun tokens.
func (ctx *Context) interpolateText(text string) error {
	if err := ctx.Task.Tick(); err != nil {
		return err
	}

	nodes, err := markup.Parse(text)
	if err != nil {
		return err
	}

	// While walking the nodes we may encounter $if/$end markers. The
	// stack tracks them: 0 means "within a true conditional", 1 means
	// "within a false conditional", 2 means "in an else/elif after a
	// true conditional". Output is suppressed whenever any entry is
	// nonzero, so we keep the running sum.
	var suppstack []int
	suppressed := 0

	for _, nod := range nodes {
		switch v := nod.(type) {
		case markup.Str:
			if v != "" && suppressed == 0 {
				ctx.accum = append(ctx.accum, string(v))
			}

		case markup.If:
			if suppressed > 0 {
				// Can't get any more suppressed.
				suppstack = append(suppstack, 0)
				continue
			}
			ifval, err := ctx.evalGuard(v.Expr)
			if err != nil {
				return err
			}
			if ifval {
				suppstack = append(suppstack, 0)
			} else {
				suppstack = append(suppstack, 1)
				suppressed++
			}

		case markup.ElIf:
			if len(suppstack) == 0 {
				ctx.accum = append(ctx.accum, "[$elif without matching $if]")
				continue
			}
			if suppressed == 0 {
				// We follow a successful $if. Suppress now.
				suppstack[len(suppstack)-1] = 2
				suppressed = sumStack(suppstack)
				continue
			}
			if suppstack[len(suppstack)-1] == 2 {
				// We had a successful $if earlier; no change.
				continue
			}
			// We follow an unsuccessful $if. Maybe unsuppress.
			ifval, err := ctx.evalGuard(v.Expr)
			if err != nil {
				return err
			}
			if ifval {
				suppstack[len(suppstack)-1] = 0
			} else {
				suppstack[len(suppstack)-1] = 1
			}
			suppressed = sumStack(suppstack)

		case markup.Else:
			if len(suppstack) == 0 {
				ctx.accum = append(ctx.accum, "[$else without matching $if]")
				continue
			}
			if suppstack[len(suppstack)-1] == 1 {
				suppstack[len(suppstack)-1] = 0
			} else {
				suppstack[len(suppstack)-1] = 2
			}
			suppressed = sumStack(suppstack)

		case markup.End:
			if len(suppstack) == 0 {
				ctx.accum = append(ctx.accum, "[$end without matching $if]")
				continue
			}
			suppstack = suppstack[:len(suppstack)-1]
			suppressed = sumStack(suppstack)

		case markup.Link:
			if suppressed > 0 {
				continue
			}
			if v.External {
				ctx.accum = append(ctx.accum, []any{"exlink", v.Target})
			} else {
				ackey := BuildActionKey()
				ctx.linkTargets[ackey] = v.Target
				ctx.accum = append(ctx.accum, []any{"link", ackey})
			}

		case markup.EndLink:
			if suppressed > 0 {
				continue
			}
			if v.External {
				ctx.accum = append(ctx.accum, []any{"/exlink"})
			} else {
				ctx.accum = append(ctx.accum, []any{"/link"})
			}

		case markup.Style:
			if suppressed == 0 {
				ctx.accum = append(ctx.accum, []any{"style", v.Key})
			}

		case markup.EndStyle:
			if suppressed == 0 {
				ctx.accum = append(ctx.accum, []any{"/style", v.Key})
			}

		case markup.ParaBreak:
			if suppressed == 0 {
				ctx.accum = append(ctx.accum, []any{"para"})
			}

		case markup.OpenBracket:
			if suppressed == 0 {
				ctx.accum = append(ctx.accum, "[")
			}

		case markup.CloseBracket:
			if suppressed == 0 {
				ctx.accum = append(ctx.accum, "]")
			}

		case markup.Interpolate:
			if suppressed > 0 {
				continue
			}
			subres, err := ctx.evalObj(v.Expr, TypeCode)
			if err != nil {
				if errors.Is(err, ErrSymbolNotFound) {
					continue
				}
				return err
			}
			// Text objects have already added their contents to the
			// accumulator. Anything else interpolates as a string.
			if subres != accumulated {
				ctx.accum = append(ctx.accum, worlddb.Stringify(subres))
			}

		case markup.PlayerRef:
			if suppressed > 0 {
				continue
			}
			if err := ctx.interpolatePlayerRef(v); err != nil {
				return err
			}

		default:
			ctx.accum = append(ctx.accum, fmt.Sprintf("[Unhandled markup: %T]", nod))
		}
	}

	if len(suppstack) > 0 {
		ctx.accum = append(ctx.accum, "[$if without matching $end]")
	}
	return nil
}

// evalGuard evaluates an $if/$elif expression. A symbol miss counts as
// false rather than an error.
func (ctx *Context) evalGuard(expr string) (bool, error) {
	val, err := ctx.evalObj(expr, TypeCode)
	if err != nil {
		if errors.Is(err, ErrSymbolNotFound) {
			return false, nil
		}
		return false, err
	}
	if val == accumulated {
		return true, nil
	}
	return worlddb.Truthy(val), nil
}

func sumStack(stack []int) int {
	total := 0
	for _, val := range stack {
		total += val
	}
	return total
}

// interpolatePlayerRef appends the acting player's name or pronoun
// form. An expression argument may name another player instead.
func (ctx *Context) interpolatePlayerRef(nod markup.PlayerRef) error {
	uid := ctx.Loctx.UID
	if nod.Expr != "" {
		val, err := ctx.evalObj(nod.Expr, TypeCode)
		if err != nil {
			if errors.Is(err, ErrSymbolNotFound) {
				return nil
			}
			return err
		}
		proxy, ok := val.(PlayerProxy)
		if !ok {
			ctx.accum = append(ctx.accum, fmt.Sprintf("[$%s of %s]", nod.Key, typeName(val)))
			return nil
		}
		uid = proxy.UID
	}

	player, err := ctx.Task.Store().Player(uid)
	if err != nil {
		if errors.Is(err, worlddb.ErrNotFound) {
			ctx.accum = append(ctx.accum, "???")
			return nil
		}
		return err
	}
	if nod.Key == "name" {
		ctx.dependencies.Add(worlddb.PropKey{Store: worlddb.PlayerField, ID1: string(uid), Name: "name"})
		ctx.accum = append(ctx.accum, player.Name)
		return nil
	}
	ctx.dependencies.Add(worlddb.PropKey{Store: worlddb.PlayerField, ID1: string(uid), Name: "pronoun"})
	ctx.dependencies.Add(worlddb.PropKey{Store: worlddb.PlayerField, ID1: string(uid), Name: "name"})
	ctx.accum = append(ctx.accum, ResolvePronoun(player, nod.Key))
	return nil
}

// pronounForms maps a pronoun choice to its five canonical forms.
var pronounForms = map[worlddb.Pronoun]map[string]string{
	"he":   {"we": "he", "us": "him", "our": "his", "ours": "his", "ourself": "himself"},
	"she":  {"we": "she", "us": "her", "our": "her", "ours": "hers", "ourself": "herself"},
	"it":   {"we": "it", "us": "it", "our": "its", "ours": "its", "ourself": "itself"},
	"they": {"we": "they", "us": "them", "our": "their", "ours": "theirs", "ourself": "themself"},
}

// ResolvePronoun renders a pronoun token key ("we", "Our", ...) for a
// player. The "name" pronoun substitutes the player's name for every
// form; a capitalized key capitalizes the result.
func ResolvePronoun(player *worlddb.Player, key string) string {
	first, size := utf8.DecodeRuneInString(key)
	capital := unicode.IsUpper(first)
	canon := string(unicode.ToLower(first)) + key[size:]

	if player.Pronoun == "name" {
		return player.Name
	}
	forms, ok := pronounForms[player.Pronoun]
	if !ok {
		forms = pronounForms["they"]
	}
	word, ok := forms[canon]
	if !ok {
		return "[Unknown pronoun: " + key + "]"
	}
	if capital {
		wfirst, wsize := utf8.DecodeRuneInString(word)
		word = string(unicode.ToUpper(wfirst)) + word[wsize:]
	}
	return word
}
