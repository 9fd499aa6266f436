package eval

import (
	"errors"

	"github.com/weaveworld/goweave/pkg/gentext"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// performGenText renders a procedural text template into the
// accumulator. The raw word stream runs through a cooker, so the
// accumulator receives finished sentences and paragraph breaks.
func (ctx *Context) performGenText(rec *worlddb.GenText, propname string) error {
	tmpl, err := gentext.Parse(rec.Text)
	if err != nil {
		return err
	}
	gctx := &genBridge{ctx: ctx}
	gctx.cooker = gentext.NewCooker(gctx)
	if err := tmpl.Perform(gctx, propname); err != nil {
		return err
	}
	gctx.cooker.Finish()
	return nil
}

// genBridge adapts the evaluation context to template rendering. It is
// both the rendering context and the cooker's output sink.
type genBridge struct {
	ctx    *Context
	cooker *gentext.Cooker
}

func (g *genBridge) Tick() error { return g.ctx.Task.Tick() }

func (g *genBridge) Append(val any) { g.cooker.Append(val) }

func (g *genBridge) NextGenCount() int { return g.ctx.Task.NextGenCount() }

func (g *genBridge) GenParams() map[string]any { return g.ctx.Task.GenParams() }

// GenSeed is the instance's fixed seed, or the instance and world ids
// when none is stored. The same instance always renders the same
// choices until its seed changes.
func (g *genBridge) GenSeed() []byte {
	loctx := g.ctx.Loctx
	if loctx.IID != "" {
		inst, err := g.ctx.Task.Store().Instance(loctx.IID)
		if err == nil && len(inst.GenSeed) > 0 {
			return inst.GenSeed
		}
	}
	return []byte(string(loctx.IID) + "|" + string(loctx.WID))
}

// EvalSymbol resolves a symbol reference inside a template. Text
// renders to a plain string; a nested template renders inline through
// the same cooker; code runs read-only. A symbol miss renders as
// nothing.
func (g *genBridge) EvalSymbol(name string) (any, error) {
	ctx := g.ctx
	res, err := ctx.FindSymbol(ctx.Loctx, name, ctx.frameLocals())
	if err != nil {
		if errors.Is(err, ErrSymbolNotFound) {
			return nil, nil
		}
		return nil, err
	}
	switch v := res.(type) {
	case *worlddb.Text:
		sub := NewSubContext(ctx, LevelMessage)
		val, err := sub.Eval(v.Text, TypeText)
		if err != nil {
			return nil, err
		}
		ctx.dependencies.Merge(sub.dependencies)
		return val, nil
	case *worlddb.GenText:
		// A nested template renders through the same cooker, so its
		// words join the enclosing sentence flow. The tick budget
		// bounds self-referential templates.
		tmpl, err := gentext.Parse(v.Text)
		if err != nil {
			return nil, err
		}
		if err := tmpl.Perform(g, name); err != nil {
			return nil, err
		}
		return nil, nil
	case *worlddb.Code:
		sub := NewSubContext(ctx, LevelMessage)
		val, err := sub.Eval(v.Text, TypeCode)
		if err != nil {
			return nil, err
		}
		ctx.dependencies.Merge(sub.dependencies)
		return val, nil
	default:
		return res, nil
	}
}

// WriteString and WritePara are the cooker's sink: cooked output lands
// in the accumulator.
func (g *genBridge) WriteString(s string) {
	g.ctx.accum = append(g.ctx.accum, s)
}

func (g *genBridge) WritePara() {
	g.ctx.accum = append(g.ctx.accum, []any{"para"})
}
