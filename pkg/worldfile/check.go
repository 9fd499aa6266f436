package worldfile

import (
	"fmt"

	"github.com/weaveworld/goweave/pkg/gentext"
	"github.com/weaveworld/goweave/pkg/markup"
	"github.com/weaveworld/goweave/pkg/script"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// Names resolvable in any context: the evaluator's proxies and builtin
// functions. Symbol-usage checking does not warn about these.
var builtinNames = map[string]bool{
	"player": true, "location": true, "realm": true, "locations": true,
	"len": true, "str": true, "int": true, "bool": true,
	"min": true, "max": true,
}

// Check runs the consistency pass over a parsed definition: markup,
// script, and template syntax; move targets; and every symbol reached
// from description links and interpolations. It returns one warning per
// finding. Parse errors are not repeated here.
func (w *WorldDef) Check() []string {
	c := &checker{def: w, seen: make(map[symbolUse]bool)}
	c.checkProps("", w.Props, w.PropList)
	c.checkProps("$player", w.PlayerProps, w.PlayerPropList)
	for _, lockey := range w.LocationList {
		loc := w.Locations[lockey]
		c.checkProps(lockey, loc.Props, loc.PropList)
	}
	c.checkSymbols()
	return c.warnings
}

// symbolUse records a symbol reference and the location it occurs in
// (empty for world-level properties).
type symbolUse struct {
	symbol string
	lockey string
}

type checker struct {
	def      *WorldDef
	warnings []string
	used     []symbolUse
	seen     map[symbolUse]bool
}

func (c *checker) warnf(format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

func place(lockey string) string {
	if lockey == "" {
		return "(world)"
	}
	return lockey
}

func (c *checker) checkProps(lockey string, props map[string]any, list []string) {
	for _, key := range list {
		if script.IsKeyword(key) {
			c.warnf("prop %q in %s is a reserved word", key, place(lockey))
		}
		switch v := props[key].(type) {
		case *worlddb.Text:
			c.checkMarkup(key, v.Text, lockey, true)
		case *worlddb.Event:
			c.checkMarkup(key, v.Text, lockey, false)
			c.checkMarkup(key, v.OText, lockey, false)
		case *worlddb.Panic:
			c.checkMarkup(key, v.Text, lockey, false)
			c.checkMarkup(key, v.OText, lockey, false)
		case *worlddb.Move:
			if _, ok := c.def.Locations[v.Loc]; !ok {
				c.warnf("move prop %q in %s goes to undefined location: %s", key, place(lockey), v.Loc)
			}
			c.checkMarkup(key, v.Text, lockey, false)
			c.checkMarkup(key, v.OLeave, lockey, false)
			c.checkMarkup(key, v.OArrive, lockey, false)
		case *worlddb.Code:
			if v.Text == "" {
				break
			}
			if _, err := script.Parse(v.Text); err != nil {
				c.warnf("code prop %q in %s does not parse: %v", key, place(lockey), err)
			}
		case *worlddb.GenText:
			if v.Text == "" {
				break
			}
			if _, err := gentext.Parse(v.Text); err != nil {
				c.warnf("gentext prop %q in %s does not parse: %v", key, place(lockey), err)
			}
		case *worlddb.EditStr:
			c.checkMarkup(key, v.Label, lockey, false)
			c.checkMarkup(key, v.Text, lockey, false)
			c.checkMarkup(key, v.OText, lockey, false)
		case *worlddb.SelfDesc:
			c.checkMarkup(key, v.Text, lockey, false)
		case *PortListDef:
			// Portal quads name worlds and players; they are resolved
			// against the store at apply time.
			c.checkMarkup(key, v.Text, lockey, false)
		}
	}
}

// checkMarkup parses one markup string. With collect set, link targets
// and interpolation expressions feed the symbol-usage pass.
func (c *checker) checkMarkup(key, text, lockey string, collect bool) {
	if text == "" {
		return
	}
	nodes, err := markup.Parse(text)
	if err != nil {
		c.warnf("markup in prop %q in %s does not parse: %v", key, place(lockey), err)
		return
	}
	if !collect {
		return
	}
	for _, nod := range nodes {
		switch n := nod.(type) {
		case markup.Link:
			if !n.External {
				c.noteSymbol(n.Target, lockey)
			}
		case markup.Interpolate:
			c.noteSymbol(n.Expr, lockey)
		}
	}
}

func (c *checker) noteSymbol(symbol, lockey string) {
	use := symbolUse{symbol, lockey}
	if c.seen[use] {
		return
	}
	c.seen[use] = true
	c.used = append(c.used, use)
}

func (c *checker) checkSymbols() {
	for _, use := range c.used {
		if !isIdentifier(use.symbol) {
			// An interpolation may hold a whole expression; it only has
			// to parse.
			if _, err := script.ParseExpr(use.symbol); err != nil {
				c.warnf("code snippet %q in %s does not parse: %v", use.symbol, place(use.lockey), err)
			}
			continue
		}
		if builtinNames[use.symbol] {
			continue
		}
		if use.lockey != "" {
			if loc := c.def.Locations[use.lockey]; loc != nil {
				if _, ok := loc.Props[use.symbol]; ok {
					continue
				}
			}
		}
		if _, ok := c.def.Props[use.symbol]; ok {
			continue
		}
		c.warnf("symbol %q in %s is not defined", use.symbol, place(use.lockey))
	}
}
