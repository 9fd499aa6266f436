package eval

import (
	"errors"
	"fmt"

	"github.com/weaveworld/goweave/pkg/script"
	"github.com/weaveworld/goweave/pkg/task"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// executeCode runs a pile of (already-looked-up) script code. The
// result is the value of the last statement; a return statement
// surfaces as a returnSignal error, which the caller unwraps.
func (ctx *Context) executeCode(text string) (any, error) {
	if err := ctx.Task.Tick(); err != nil {
		return nil, err
	}
	stmts, err := script.Parse(text)
	if err != nil {
		return nil, err
	}
	var res any
	for _, st := range stmts {
		res, err = ctx.execStatement(st)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// frameLocals returns the current frame's local map, or nil outside
// any frame.
func (ctx *Context) frameLocals() map[string]any {
	fr := ctx.currentFrame()
	if fr == nil {
		return nil
	}
	return fr.locals
}

func (ctx *Context) execStatement(st script.Stmt) (any, error) {
	if err := ctx.Task.Tick(); err != nil {
		return nil, err
	}
	switch v := st.(type) {
	case *script.ExprStmt:
		return ctx.execExpr(v.X, true)
	case *script.Assign:
		target, err := ctx.execStore(v.Target)
		if err != nil {
			return nil, err
		}
		val, err := ctx.execExpr(v.Value, false)
		if err != nil {
			return nil, err
		}
		return nil, target.store(ctx, ctx.Loctx, val)
	case *script.Delete:
		for _, sub := range v.Targets {
			target, err := ctx.execStore(sub)
			if err != nil {
				return nil, err
			}
			if err := target.remove(ctx, ctx.Loctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case *script.If:
		testval, err := ctx.execExpr(v.Test, false)
		if err != nil {
			return nil, err
		}
		body := v.Body
		if !worlddb.Truthy(testval) {
			body = v.Else
		}
		var res any
		for _, sub := range body {
			res, err = ctx.execStatement(sub)
			if err != nil {
				return nil, err
			}
		}
		return res, nil
	case *script.Return:
		if v.Value == nil {
			return nil, &returnSignal{}
		}
		val, err := ctx.execExpr(v.Value, false)
		if err != nil {
			return nil, err
		}
		return nil, &returnSignal{value: val}
	case *script.Pass:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: statement %T", ErrUnsupported, st)
	}
}

// execStore resolves an assignment or del target to an assignTarget
// rather than a value.
func (ctx *Context) execStore(x script.Expr) (assignTarget, error) {
	switch v := x.(type) {
	case *script.Name:
		return boundName{key: v.ID}, nil
	case *script.Attribute:
		arg, err := ctx.execExpr(v.Value, false)
		if err != nil {
			return nil, err
		}
		if proxy, ok := arg.(PropertyProxy); ok {
			return boundProp{proxy: proxy, key: v.Attr}, nil
		}
		return nil, fmt.Errorf("%w: %s.%s: setattr not allowed", ErrSandbox, typeName(arg), v.Attr)
	default:
		return nil, fmt.Errorf("%w: assignment target %T", ErrUnsupported, x)
	}
}

// execExpr evaluates one expression. bare is set for the expression of
// a top-level expression statement, where a name resolving to a
// special record dispatches it (shows the event, performs the move, or
// focuses the widget) instead of returning the record.
func (ctx *Context) execExpr(x script.Expr, bare bool) (any, error) {
	if err := ctx.Task.Tick(); err != nil {
		return nil, err
	}
	switch v := x.(type) {
	case *script.Literal:
		return v.Val, nil

	case *script.Name:
		res, err := ctx.FindSymbol(ctx.Loctx, v.ID, ctx.frameLocals())
		if err != nil {
			return nil, err
		}
		if !bare {
			return res, nil
		}
		rec, ok := res.(worlddb.Record)
		if !ok {
			return res, nil
		}
		return ctx.execBareRecord(v.ID, rec)

	case *script.ListExpr:
		return ctx.execElements(v.Elts)

	case *script.TupleExpr:
		return ctx.execElements(v.Elts)

	case *script.UnaryOp:
		argval, err := ctx.execExpr(v.Operand, false)
		if err != nil {
			return nil, err
		}
		return opUnary(v.Op, argval)

	case *script.BinOp:
		leftval, err := ctx.execExpr(v.Left, false)
		if err != nil {
			return nil, err
		}
		rightval, err := ctx.execExpr(v.Right, false)
		if err != nil {
			return nil, err
		}
		return opBinary(v.Op, leftval, rightval)

	case *script.BoolOp:
		var val any
		var err error
		for _, sub := range v.Values {
			val, err = ctx.execExpr(sub, false)
			if err != nil {
				return nil, err
			}
			if v.Op == script.BoolAnd && !worlddb.Truthy(val) {
				return val, nil
			}
			if v.Op == script.BoolOr && worlddb.Truthy(val) {
				return val, nil
			}
		}
		return val, nil

	case *script.Compare:
		leftval, err := ctx.execExpr(v.Left, false)
		if err != nil {
			return nil, err
		}
		for i, op := range v.Ops {
			rightval, err := ctx.execExpr(v.Comparators[i], false)
			if err != nil {
				return nil, err
			}
			res, err := opCompare(op, leftval, rightval)
			if err != nil {
				return nil, err
			}
			if !res {
				return false, nil
			}
			leftval = rightval
		}
		return true, nil

	case *script.Attribute:
		arg, err := ctx.execExpr(v.Value, false)
		if err != nil {
			return nil, err
		}
		// The real reflection machinery is way too powerful to offer
		// up; only proxies have attributes.
		if proxy, ok := arg.(PropertyProxy); ok {
			return proxy.GetProp(ctx, ctx.Loctx, v.Attr)
		}
		return nil, fmt.Errorf("%w: %s.%s: getattr not allowed", ErrSandbox, typeName(arg), v.Attr)

	case *script.Subscript:
		arg, err := ctx.execExpr(v.Value, false)
		if err != nil {
			return nil, err
		}
		idx, err := ctx.execExpr(v.Index, false)
		if err != nil {
			return nil, err
		}
		return ctx.execSubscript(arg, idx)

	case *script.Call:
		funcval, err := ctx.execExpr(v.Func, false)
		if err != nil {
			return nil, err
		}
		args, err := ctx.execElements(v.Args)
		if err != nil {
			return nil, err
		}
		fn, ok := funcval.(*ScriptFunc)
		if !ok {
			return nil, fmt.Errorf("eval: %s is not callable", typeName(funcval))
		}
		if len(v.Keywords) > 0 {
			return nil, fmt.Errorf("eval: %s() got an unexpected keyword argument %q", fn.Name, v.Keywords[0].Name)
		}
		return fn.Fn(ctx, args)

	default:
		return nil, fmt.Errorf("%w: expression %T", ErrUnsupported, x)
	}
}

func (ctx *Context) execElements(elts []script.Expr) ([]any, error) {
	ls := make([]any, 0, len(elts))
	for _, sub := range elts {
		val, err := ctx.execExpr(sub, false)
		if err != nil {
			return nil, err
		}
		ls = append(ls, val)
	}
	return ls, nil
}

// execSubscript indexes a container. Proxies accept string keys; lists
// accept (possibly negative) int indexes; strings index to one-rune
// strings; map misses are symbol-miss errors so $if guards can probe
// them.
func (ctx *Context) execSubscript(arg, idx any) (any, error) {
	if proxy, ok := arg.(PropertyProxy); ok {
		key, ok := idx.(string)
		if !ok {
			return nil, fmt.Errorf("eval: proxy subscript must be a string, not %s", typeName(idx))
		}
		return proxy.GetProp(ctx, ctx.Loctx, key)
	}
	switch container := arg.(type) {
	case []any:
		pos, ok := idx.(int64)
		if !ok {
			return nil, fmt.Errorf("eval: list index must be an int, not %s", typeName(idx))
		}
		if pos < 0 {
			pos += int64(len(container))
		}
		if pos < 0 || pos >= int64(len(container)) {
			return nil, fmt.Errorf("eval: list index out of range")
		}
		return container[pos], nil
	case string:
		pos, ok := idx.(int64)
		if !ok {
			return nil, fmt.Errorf("eval: string index must be an int, not %s", typeName(idx))
		}
		runes := []rune(container)
		if pos < 0 {
			pos += int64(len(runes))
		}
		if pos < 0 || pos >= int64(len(runes)) {
			return nil, fmt.Errorf("eval: string index out of range")
		}
		return string(runes[pos]), nil
	case map[string]any:
		key, ok := idx.(string)
		if !ok {
			return nil, fmt.Errorf("eval: map key must be a string, not %s", typeName(idx))
		}
		val, ok := container[key]
		if !ok {
			return nil, fmt.Errorf("%w: map key %q", ErrSymbolNotFound, key)
		}
		return val, nil
	default:
		return nil, fmt.Errorf("eval: %s is not subscriptable", typeName(arg))
	}
}

// execBareRecord dispatches a record named bare in an expression
// statement. Outside action code, text and code snippets are invoked
// read-only and everything else is returned as-is. In action code the
// record performs its effect.
func (ctx *Context) execBareRecord(symbol string, rec worlddb.Record) (any, error) {
	uid := ctx.Loctx.UID

	if ctx.Level != LevelExecute {
		switch v := rec.(type) {
		case *worlddb.Text:
			if v.Text == "" {
				return "", nil
			}
			return ctx.evalObj(v.Text, TypeText)
		case *worlddb.Code:
			if v.Text == "" {
				return nil, nil
			}
			return ctx.evalObj(v.Text, TypeCode)
		default:
			return rec, nil
		}
	}

	switch v := rec.(type) {
	case *worlddb.Text, *worlddb.SelfDesc, *worlddb.EditStr:
		// Focus on this symbol name.
		return nil, ctx.setFocus(uid, symbol)

	case *worlddb.GenText:
		return nil, ctx.setFocus(uid, symbol)

	case *worlddb.PortListRef:
		return nil, ctx.focusPortList(uid, v)

	case *worlddb.Code:
		if v.Text == "" {
			return nil, nil
		}
		return ctx.evalObj(v.Text, TypeCode)

	case *worlddb.Event:
		return nil, ctx.performEvent(v.Text, v.OText)

	case *worlddb.Panic:
		return nil, ctx.performPanic(v)

	case *worlddb.Move:
		loc, err := ctx.Task.Store().LocationByKey(ctx.Loctx.WID, v.Loc)
		if err != nil {
			if errors.Is(err, worlddb.ErrNotFound) {
				return nil, fmt.Errorf("%w: no such location: %s", ErrSymbolNotFound, v.Loc)
			}
			return nil, err
		}
		return nil, ctx.performMove(loc, v.Text, v.OLeave, v.OArrive)

	default:
		return nil, &CommandError{Text: fmt.Sprintf("Code invoked unsupported property type: %s", rec.RecordType())}
	}
}

// setFocus points the player's focus at obj (a symbol name or focus
// array) and marks the focus facet dirty.
func (ctx *Context) setFocus(uid worlddb.PlayerID, obj any) error {
	store := ctx.Task.Store()
	ps, err := store.PlayState(uid)
	if err != nil {
		return err
	}
	ps.Focus = obj
	if err := store.SetPlayState(ps); err != nil {
		return err
	}
	ctx.Task.SetDirty(uid, task.DirtyFocus)
	ctx.Task.SetDataChange(worlddb.PropKey{Store: worlddb.PlayStateField, ID1: string(uid), Name: "focus"})
	return nil
}

// focusPortList builds the portlist focus array, checking the player's
// access to the widget.
func (ctx *Context) focusPortList(uid worlddb.PlayerID, rec *worlddb.PortListRef) error {
	if rec.PListID == "" {
		return &CommandError{Text: "portlist property has no portal list"}
	}
	level, err := ctx.scopeAccessLevel(uid)
	if err != nil {
		return err
	}
	if level < rec.ReadAccess {
		return &MessageError{Text: "You do not have access to this widget."}
	}
	editable := level >= rec.EditAccess

	var extratext any
	if rec.Text != "" {
		extratext = rec.Text
	}
	var focusport any
	withback := true
	if rec.FocusPort != "" {
		focusport = string(rec.FocusPort)
		withback = false
	}
	arr := []any{"portlist", string(rec.PListID), editable, extratext, withback, focusport}
	return ctx.setFocus(uid, arr)
}

// performEvent shows a message to the acting player and, optionally, a
// different one to everybody else in the location.
func (ctx *Context) performEvent(text, otext string) error {
	if ctx.Level != LevelExecute {
		return fmt.Errorf("%w: events may only occur in action code", ErrSandbox)
	}
	uid := ctx.Loctx.UID
	if text != "" {
		val, err := ctx.evalMessage(text)
		if err != nil {
			return err
		}
		ctx.Task.WriteEvent(uid, val)
	}
	if otext != "" {
		others, err := ctx.Task.FindLocalePlayers(ctx.Loctx, true)
		if err != nil {
			return err
		}
		val, err := ctx.evalMessage(otext)
		if err != nil {
			return err
		}
		ctx.Task.WriteEventMany(others, val)
	}
	return nil
}

// performPanic shows the event messages, then schedules the player's
// forcible relocation to the void.
func (ctx *Context) performPanic(rec *worlddb.Panic) error {
	if ctx.Level != LevelExecute {
		return fmt.Errorf("%w: panics may only occur in action code", ErrSandbox)
	}
	uid := ctx.Loctx.UID
	if rec.Text != "" {
		val, err := ctx.evalMessage(rec.Text)
		if err != nil {
			return err
		}
		ctx.Task.WriteEvent(uid, val)
	}
	if rec.OText != "" {
		others, err := ctx.Task.FindLocalePlayers(ctx.Loctx, true)
		if err != nil {
			return err
		}
		val, err := ctx.evalMessage(rec.OText)
		if err != nil {
			return err
		}
		ctx.Task.WriteEventMany(others, val)
	}
	ctx.Task.QueueCommand(task.Command{Cmd: "tovoid", UID: uid, Data: map[string]any{"portin": true}})
	return nil
}

// performMove relocates the acting player to loc, within the same
// world. Departure and arrival messages go to the bystanders of the
// old and new rooms; text goes to the mover.
func (ctx *Context) performMove(loc *worlddb.Location, text, oleave, oarrive string) error {
	if ctx.Level != LevelExecute {
		return fmt.Errorf("%w: moves may only occur in action code", ErrSandbox)
	}
	t := ctx.Task
	store := t.Store()
	uid := ctx.Loctx.UID

	player, err := store.Player(uid)
	if err != nil {
		return err
	}

	msg := oleave
	if msg == "" {
		msg = fmt.Sprintf("%s leaves.", player.Name)
	} else {
		msg, err = ctx.evalMessage(msg)
		if err != nil {
			return err
		}
	}
	if msg != "" {
		others, err := t.FindLocalePlayers(ctx.Loctx, true)
		if err != nil {
			return err
		}
		t.WriteEventMany(others, msg)
	}

	ps, err := store.PlayState(uid)
	if err != nil {
		return err
	}
	ps.LastLocID = ctx.Loctx.LocID
	ps.LocID = loc.LocID
	ps.Focus = nil
	ps.LastMoved = t.StartTime
	if err := store.SetPlayState(ps); err != nil {
		return err
	}
	t.SetDirty(uid, task.DirtyFocus|task.DirtyLocale|task.DirtyPopulace)
	t.SetDataChange(worlddb.PropKey{Store: worlddb.PlayStateField, ID1: string(uid), Name: "locid"})
	t.ClearLocContext(uid)

	// Everybody already in the destination room gets a dirty populace.
	// (Players in the starting room have a dependency, which is already
	// covered.)
	newloctx, err := t.GetLocContext(uid)
	if err != nil {
		return err
	}
	others, err := t.FindLocalePlayers(newloctx, true)
	if err != nil {
		return err
	}
	if len(others) > 0 {
		t.SetDirtyMany(others, task.DirtyPopulace)
	}

	msg = oarrive
	if msg == "" {
		msg = fmt.Sprintf("%s arrives.", player.Name)
	} else {
		msg, err = ctx.evalMessage(msg)
		if err != nil {
			return err
		}
	}
	if msg != "" && len(others) > 0 {
		t.WriteEventMany(others, msg)
	}

	if text != "" {
		msg, err = ctx.evalMessage(text)
		if err != nil {
			return err
		}
		t.WriteEvent(uid, msg)
	}
	return nil
}

// evalMessage renders markup to a plain string in a sub-context.
// Events are transient, so the sub-context's actions and dependencies
// are discarded.
func (ctx *Context) evalMessage(text string) (string, error) {
	sub := NewSubContext(ctx, LevelMessage)
	val, err := sub.Eval(text, TypeText)
	if err != nil {
		return "", err
	}
	msg, _ := val.(string)
	return msg, nil
}
