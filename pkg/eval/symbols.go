package eval

import (
	"fmt"

	"github.com/weaveworld/goweave/pkg/task"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// FindSymbol looks up a symbol using the universal laws of
// symbol-looking-up. To wit: frame locals, the builtin namespace, then
// the four-tier property cascade:
//
//	instance properties at the location
//	world properties at the location
//	realm-level instance properties
//	realm-level world properties
//
// Every probed tier's key lands in the context's dependency set even
// on a miss, so creating the property later invalidates whoever
// depended on its absence.
func (ctx *Context) FindSymbol(loctx *task.LocContext, name string, locals map[string]any) (any, error) {
	if locals != nil {
		if val, ok := locals[name]; ok {
			return val, nil
		}
	}
	if val, ok := ctx.builtinSymbol(loctx, name); ok {
		return val, nil
	}

	cache := ctx.Task.Cache()
	iid := string(loctx.IID)
	wid := string(loctx.WID)
	locid := string(loctx.LocID)

	if iid != "" && locid != "" {
		ent, err := cache.Get(worlddb.PropKey{Store: worlddb.InstanceProp, ID1: iid, ID2: locid, Name: name}, ctx.dependencies)
		if err != nil {
			return nil, err
		}
		if ent != nil {
			return ent.Val, nil
		}
	}
	if locid != "" {
		ent, err := cache.Get(worlddb.PropKey{Store: worlddb.WorldProp, ID1: wid, ID2: locid, Name: name}, ctx.dependencies)
		if err != nil {
			return nil, err
		}
		if ent != nil {
			return ent.Val, nil
		}
	}
	if iid != "" {
		ent, err := cache.Get(worlddb.PropKey{Store: worlddb.InstanceProp, ID1: iid, ID2: "", Name: name}, ctx.dependencies)
		if err != nil {
			return nil, err
		}
		if ent != nil {
			return ent.Val, nil
		}
	}
	ent, err := cache.Get(worlddb.PropKey{Store: worlddb.WorldProp, ID1: wid, ID2: "", Name: name}, ctx.dependencies)
	if err != nil {
		return nil, err
	}
	if ent != nil {
		return ent.Val, nil
	}

	return nil, fmt.Errorf("%w: name %q", ErrSymbolNotFound, name)
}

// findPlayerProp looks up a per-player property through its own
// four-tier cascade: instance player props, world player props, then
// the all-players rows of each (empty uid).
func (ctx *Context) findPlayerProp(loctx *task.LocContext, uid worlddb.PlayerID, name string) (any, error) {
	cache := ctx.Task.Cache()
	iid := string(loctx.IID)
	wid := string(loctx.WID)

	if iid != "" {
		ent, err := cache.Get(worlddb.PropKey{Store: worlddb.IPlayerProp, ID1: iid, ID2: string(uid), Name: name}, ctx.dependencies)
		if err != nil {
			return nil, err
		}
		if ent != nil {
			return ent.Val, nil
		}
	}
	ent, err := cache.Get(worlddb.PropKey{Store: worlddb.WPlayerProp, ID1: wid, ID2: string(uid), Name: name}, ctx.dependencies)
	if err != nil {
		return nil, err
	}
	if ent != nil {
		return ent.Val, nil
	}
	if iid != "" {
		ent, err := cache.Get(worlddb.PropKey{Store: worlddb.IPlayerProp, ID1: iid, ID2: "", Name: name}, ctx.dependencies)
		if err != nil {
			return nil, err
		}
		if ent != nil {
			return ent.Val, nil
		}
	}
	ent, err = cache.Get(worlddb.PropKey{Store: worlddb.WPlayerProp, ID1: wid, ID2: "", Name: name}, ctx.dependencies)
	if err != nil {
		return nil, err
	}
	if ent != nil {
		return ent.Val, nil
	}

	return nil, fmt.Errorf("%w: player property %q", ErrSymbolNotFound, name)
}

// writeProp stores a value through the cache and records the key in
// the task changeset. All script write paths funnel through here.
func (ctx *Context) writeProp(key worlddb.PropKey, val any) error {
	if ctx.Level != LevelExecute {
		return fmt.Errorf("%w: properties may only be set in action code", ErrSandbox)
	}
	if !ctx.Task.Writable() {
		return task.ErrNotWritable
	}
	if err := ctx.Task.Cache().Set(key, val); err != nil {
		return err
	}
	ctx.Task.SetDataChange(key)
	return nil
}

// deleteProp removes a property through the cache and records the key
// in the task changeset.
func (ctx *Context) deleteProp(key worlddb.PropKey) error {
	if ctx.Level != LevelExecute {
		return fmt.Errorf("%w: properties may only be deleted in action code", ErrSandbox)
	}
	if !ctx.Task.Writable() {
		return task.ErrNotWritable
	}
	if err := ctx.Task.Cache().Delete(key); err != nil {
		return err
	}
	ctx.Task.SetDataChange(key)
	return nil
}
