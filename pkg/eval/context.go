// Package eval is the interpreter at the heart of the server: it
// renders marked-up text, runs sandboxed script code, and expands the
// special property records (events, moves, portals, widgets) that
// world-builders attach to locations.
package eval

import (
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/weaveworld/goweave/pkg/task"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// Level determines both the shape of an evaluation's result and which
// side effects are legal during it.
type Level int

const (
	// LevelRaw returns the stored value verbatim.
	LevelRaw Level = iota
	// LevelFlat returns a stringified scalar; text records yield their
	// raw source without interpolation.
	LevelFlat
	// LevelMessage flattens the rendered description to plain text.
	LevelMessage
	// LevelDisplay returns the rendered description as a structured
	// sequence for the client.
	LevelDisplay
	// LevelDispSpecial is LevelDisplay plus expansion of the special
	// focus records (selfdesc, editstr). Used only for the focus facet.
	LevelDispSpecial
	// LevelExecute permits world mutation and the bare-name record
	// dispatch (events, moves, focus changes).
	LevelExecute
)

// EvalType tells Eval how to treat its argument.
type EvalType int

const (
	// TypeSymbol looks the argument up as a property name.
	TypeSymbol EvalType = iota
	// TypeRaw treats the argument as an already-looked-up value.
	TypeRaw
	// TypeCode treats the argument as script source.
	TypeCode
	// TypeText treats the argument as markup source.
	TypeText
)

// accumulated is the sentinel result meaning "the answer is the
// context's accumulator".
type accumSentinel struct{}

var accumulated = &accumSentinel{}

// BuildActionKey returns an opaque token that will never repeat, for
// the per-render action-key maps.
func BuildActionKey() string {
	return uuid.NewString()
}

// frame is one stack level of the context: a code execution, text
// interpolation, or template render. Locals are allocated lazily.
type frame struct {
	locals map[string]any
}

// Context evaluates one symbol, piece of code, or piece of marked-up
// text during a task. Nested evaluations either share the context (and
// its stack) or run in a sub-context with a higher parent depth.
type Context struct {
	Task  *task.Task
	Loctx *task.LocContext
	Level Level

	parentDepth int
	frames      []*frame

	accum        []any
	linkTargets  map[string]any
	dependencies worlddb.KeySet
	wasSpecial   bool
}

// NewContext creates a top-level evaluation context for the player and
// position in loctx.
func NewContext(t *task.Task, loctx *task.LocContext, level Level) *Context {
	return &Context{Task: t, Loctx: loctx, Level: level}
}

// NewSubContext creates a nested context sharing the parent's task and
// position. The parent's total depth carries over, so the stack limit
// spans the whole chain.
func NewSubContext(parent *Context, level Level) *Context {
	return &Context{
		Task:        parent.Task,
		Loctx:       parent.Loctx,
		Level:       level,
		parentDepth: parent.parentDepth + len(parent.frames) + 1,
	}
}

// Dependencies returns the property keys consulted by the last Eval,
// including tiers that missed.
func (ctx *Context) Dependencies() worlddb.KeySet { return ctx.dependencies }

// LinkTargets returns the action-key map built by the last Eval: the
// target is a symbol name string or one of the structured target types
// (EditStrTarget and friends).
func (ctx *Context) LinkTargets() map[string]any { return ctx.linkTargets }

// WasSpecial reports whether the last DISPSPECIAL Eval produced one of
// the structured focus objects.
func (ctx *Context) WasSpecial() bool { return ctx.wasSpecial }

// updateACDepends merges the actions and dependencies of a finished
// sub-context into this one.
func (ctx *Context) updateACDepends(sub *Context) {
	for key, target := range sub.linkTargets {
		ctx.linkTargets[key] = target
	}
	ctx.dependencies.Merge(sub.dependencies)
}

// Eval is the top-level entry point: look up (or accept) a value and
// produce the result shape implied by the context's level. After the
// call, Dependencies holds every key consulted.
func (ctx *Context) Eval(key any, etype EvalType) (any, error) {
	if err := ctx.Task.Tick(); err != nil {
		return nil, err
	}
	ctx.accum = nil
	ctx.linkTargets = nil
	ctx.dependencies = worlddb.NewKeySet()
	ctx.wasSpecial = false
	ctx.frames = nil

	res, err := ctx.evalObj(key, etype)
	if err != nil {
		return nil, err
	}
	if len(ctx.frames) != 0 {
		return nil, fmt.Errorf("eval: context did not pop all the way")
	}

	switch ctx.Level {
	case LevelRaw:
		return res, nil
	case LevelFlat:
		if txt, ok := res.(*worlddb.Text); ok {
			return txt.Text, nil
		}
		return strOrNull(res), nil
	case LevelMessage:
		if res == accumulated {
			return flattenAccum(ctx.accum), nil
		}
		return worlddb.Stringify(res), nil
	case LevelDisplay:
		if res == accumulated {
			return ctx.accum, nil
		}
		return strOrNull(res), nil
	case LevelDispSpecial:
		if ctx.wasSpecial {
			return res, nil
		}
		if res == accumulated {
			return ctx.accum, nil
		}
		return strOrNull(res), nil
	case LevelExecute:
		if res == accumulated {
			return ctx.accum, nil
		}
		return res, nil
	}
	return nil, fmt.Errorf("eval: unrecognized level %d", ctx.Level)
}

// evalObj looks up a value and, for text and code records, renders or
// executes it into the accumulator, recursing for interpolations. The
// depth-zero call owns the accumulator and action-key map.
func (ctx *Context) evalObj(key any, etype EvalType) (any, error) {
	if err := ctx.Task.Tick(); err != nil {
		return nil, err
	}

	var res any
	switch etype {
	case TypeSymbol:
		name, ok := key.(string)
		if !ok {
			return nil, fmt.Errorf("eval: symbol key must be a string, not %T", key)
		}
		var err error
		res, err = ctx.FindSymbol(ctx.Loctx, name, nil)
		if err != nil {
			return nil, err
		}
	case TypeText:
		res = &worlddb.Text{Text: key.(string)}
	case TypeCode:
		res = &worlddb.Code{Text: key.(string)}
	case TypeRaw:
		res = key
	default:
		return nil, fmt.Errorf("eval: unknown eval type %d", etype)
	}

	_, isRec := res.(worlddb.Record)
	if len(ctx.frames) == 0 && isRec && ctx.accum == nil {
		ctx.accum = []any{}
		ctx.linkTargets = map[string]any{}
	}

	if len(ctx.frames) == 0 && ctx.Level == LevelDispSpecial {
		switch v := res.(type) {
		case *worlddb.SelfDesc:
			return ctx.expandSelfDesc(v), nil
		case *worlddb.EditStr:
			return ctx.expandEditStr(v), nil
		}
	}

	switch v := res.(type) {
	case *worlddb.Text:
		if ctx.Level < LevelMessage {
			return res, nil
		}
		return ctx.withFrame(func() (any, error) {
			if err := ctx.interpolateText(v.Text); err != nil {
				if errors.As(err, new(*returnSignal)) {
					return accumulated, nil
				}
				if isFatal(err) {
					return nil, err
				}
				log.Printf("eval: caught exception (interpolating): %v", err)
				return fmt.Sprintf("[Exception: %v]", err), nil
			}
			return accumulated, nil
		})
	case *worlddb.GenText:
		if ctx.Level < LevelMessage {
			return res, nil
		}
		propname := ""
		if etype == TypeSymbol {
			propname, _ = key.(string)
		}
		return ctx.withFrame(func() (any, error) {
			if err := ctx.performGenText(v, propname); err != nil {
				if isFatal(err) {
					return nil, err
				}
				log.Printf("eval: caught exception (generating): %v", err)
				return fmt.Sprintf("[Exception: %v]", err), nil
			}
			return accumulated, nil
		})
	case *worlddb.Code:
		if ctx.Level < LevelMessage {
			return res, nil
		}
		return ctx.withFrame(func() (any, error) {
			newres, err := ctx.executeCode(v.Text)
			var ret *returnSignal
			if errors.As(err, &ret) {
				return ret.value, nil
			}
			return newres, err
		})
	default:
		return res, nil
	}
}

// withFrame pushes a stack frame, enforcing the depth limit shared
// with parent contexts, runs fn, and pops.
func (ctx *Context) withFrame(fn func() (any, error)) (any, error) {
	if ctx.parentDepth+len(ctx.frames) > ctx.Task.StackLimit {
		log.Printf("eval: script exceeded depth limit")
		return nil, ErrStackDepth
	}
	ctx.frames = append(ctx.frames, &frame{})
	defer func() {
		ctx.frames = ctx.frames[:len(ctx.frames)-1]
	}()
	return fn()
}

// currentFrame returns the innermost frame, or nil outside any frame.
func (ctx *Context) currentFrame() *frame {
	if len(ctx.frames) == 0 {
		return nil
	}
	return ctx.frames[len(ctx.frames)-1]
}

// expandSelfDesc builds the ['selfdesc', name, pronoun, desc, extra]
// focus object. Failures render inline rather than aborting the
// command.
func (ctx *Context) expandSelfDesc(rec *worlddb.SelfDesc) any {
	var extratext any
	if rec.Text != "" {
		sub := NewSubContext(ctx, LevelDisplay)
		val, err := sub.Eval(rec.Text, TypeText)
		if err != nil {
			log.Printf("eval: caught exception (selfdesc): %v", err)
			return fmt.Sprintf("[Exception: %v]", err)
		}
		ctx.updateACDepends(sub)
		extratext = val
	}
	player, err := ctx.Task.Store().Player(ctx.Loctx.UID)
	if err != nil {
		return "There is no such person."
	}
	ctx.dependencies.Add(worlddb.PropKey{Store: worlddb.PlayerField, ID1: string(player.UID), Name: "desc"})
	ctx.wasSpecial = true
	return []any{"selfdesc", player.Name, string(player.Pronoun), player.Desc, extratext}
}

// expandEditStr builds the ['editstr', actionKey, current, extra]
// focus object and registers the edit action.
func (ctx *Context) expandEditStr(rec *worlddb.EditStr) any {
	level, err := ctx.scopeAccessLevel(ctx.Loctx.UID)
	if err != nil {
		log.Printf("eval: caught exception (editstr): %v", err)
		return fmt.Sprintf("[Exception: %v]", err)
	}
	if level < rec.EditAccess {
		return "You do not have access to this widget."
	}
	var extratext any
	if rec.Label != "" {
		sub := NewSubContext(ctx, LevelDisplay)
		val, err := sub.Eval(rec.Label, TypeText)
		if err != nil {
			log.Printf("eval: caught exception (editstr): %v", err)
			return fmt.Sprintf("[Exception: %v]", err)
		}
		ctx.updateACDepends(sub)
		extratext = val
	}
	editkey := "editstr" + BuildActionKey()
	ctx.linkTargets[editkey] = &EditStrTarget{Key: rec.Key, Text: rec.Text, OText: rec.OText}
	sub := NewSubContext(ctx, LevelFlat)
	curvalue, err := sub.Eval(rec.Key, TypeSymbol)
	if err != nil {
		if !errors.Is(err, ErrSymbolNotFound) {
			log.Printf("eval: caught exception (editstr): %v", err)
			return fmt.Sprintf("[Exception: %v]", err)
		}
		curvalue = ""
	}
	ctx.updateACDepends(sub)
	ctx.wasSpecial = true
	return []any{"editstr", editkey, curvalue, extratext}
}

// scopeAccessLevel reports the acting player's access to the current
// scope: owner of a personal scope is an owner, members of the scope's
// group and everyone in the global scope are members, anyone else is a
// visitor.
func (ctx *Context) scopeAccessLevel(uid worlddb.PlayerID) (worlddb.AccessLevel, error) {
	if ctx.Loctx.SID == "" {
		return worlddb.AccVisitor, nil
	}
	scope, err := ctx.Task.Store().Scope(ctx.Loctx.SID)
	if err != nil {
		return worlddb.AccBanned, fmt.Errorf("eval: scope %s: %w", ctx.Loctx.SID, err)
	}
	switch scope.Type {
	case worlddb.ScopePersonal:
		if scope.UID == uid {
			return worlddb.AccOwner, nil
		}
		return worlddb.AccVisitor, nil
	case worlddb.ScopeGlobal:
		return worlddb.AccMember, nil
	case worlddb.ScopeGroup:
		return worlddb.AccMember, nil
	default:
		return worlddb.AccVisitor, nil
	}
}

// strOrNull renders nil as the empty string, everything else through
// the script string conversion.
func strOrNull(res any) string {
	if res == nil {
		return ""
	}
	return worlddb.Stringify(res)
}

// flattenAccum pastes the plain strings of a description together,
// skipping all styles and links.
func flattenAccum(accum []any) string {
	out := ""
	for _, val := range accum {
		if s, ok := val.(string); ok {
			out += s
		}
	}
	return out
}

// isFatal reports whether an error must abort the whole task rather
// than render inline.
func isFatal(err error) bool {
	return errors.Is(err, task.ErrRunaway) || errors.Is(err, ErrStackDepth)
}
