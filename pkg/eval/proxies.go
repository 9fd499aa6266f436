package eval

import (
	"errors"
	"fmt"

	"github.com/weaveworld/goweave/pkg/task"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// PropertyProxy is a capability object in the script namespace: a bag
// of database entries indexed by key. Script code says "proxy.foo" or
// "proxy['foo']"; the location information needed to make sense of the
// key comes from the evaluation context.
//
// Proxies are plain comparable values, so script equality ("player ==
// somebody") works without special cases in the executor.
type PropertyProxy interface {
	GetProp(ctx *Context, loctx *task.LocContext, key string) (any, error)
	SetProp(ctx *Context, loctx *task.LocContext, key string, val any) error
	DeleteProp(ctx *Context, loctx *task.LocContext, key string) error
}

// cascadeProp runs the property cascade rooted at a particular
// location id: instance properties at that location, world properties
// at that location, then the realm level of each. An empty locid skips
// straight to the realm tiers.
func (ctx *Context) cascadeProp(loctx *task.LocContext, locid worlddb.LocID, name string) (any, error) {
	cache := ctx.Task.Cache()
	iid := string(loctx.IID)
	wid := string(loctx.WID)

	if iid != "" && locid != "" {
		ent, err := cache.Get(worlddb.PropKey{Store: worlddb.InstanceProp, ID1: iid, ID2: string(locid), Name: name}, ctx.dependencies)
		if err != nil {
			return nil, err
		}
		if ent != nil {
			return ent.Val, nil
		}
	}
	if locid != "" {
		ent, err := cache.Get(worlddb.PropKey{Store: worlddb.WorldProp, ID1: wid, ID2: string(locid), Name: name}, ctx.dependencies)
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
	return nil, fmt.Errorf("%w: property %q", ErrSymbolNotFound, name)
}

// PlayerProxy represents a player in the script environment. Property
// access goes through the per-player cascade; writes land in the
// player's instance properties.
type PlayerProxy struct {
	UID worlddb.PlayerID
}

func (p PlayerProxy) GetProp(ctx *Context, loctx *task.LocContext, key string) (any, error) {
	return ctx.findPlayerProp(loctx, p.UID, key)
}

func (p PlayerProxy) SetProp(ctx *Context, loctx *task.LocContext, key string, val any) error {
	if loctx.IID == "" {
		return fmt.Errorf("eval: cannot set a player property outside an instance")
	}
	return ctx.writeProp(worlddb.PropKey{Store: worlddb.IPlayerProp, ID1: string(loctx.IID), ID2: string(p.UID), Name: key}, val)
}

func (p PlayerProxy) DeleteProp(ctx *Context, loctx *task.LocContext, key string) error {
	if loctx.IID == "" {
		return fmt.Errorf("eval: cannot delete a player property outside an instance")
	}
	return ctx.deleteProp(worlddb.PropKey{Store: worlddb.IPlayerProp, ID1: string(loctx.IID), ID2: string(p.UID), Name: key})
}

// LocationProxy represents a location in the script environment.
// Property access runs the cascade rooted at that location; writes
// land in the instance properties of that location.
type LocationProxy struct {
	LocID worlddb.LocID
}

func (p LocationProxy) GetProp(ctx *Context, loctx *task.LocContext, key string) (any, error) {
	return ctx.cascadeProp(loctx, p.LocID, key)
}

func (p LocationProxy) SetProp(ctx *Context, loctx *task.LocContext, key string, val any) error {
	if loctx.IID == "" {
		return fmt.Errorf("eval: cannot set a property outside an instance")
	}
	return ctx.writeProp(worlddb.PropKey{Store: worlddb.InstanceProp, ID1: string(loctx.IID), ID2: string(p.LocID), Name: key}, val)
}

func (p LocationProxy) DeleteProp(ctx *Context, loctx *task.LocContext, key string) error {
	if loctx.IID == "" {
		return fmt.Errorf("eval: cannot delete a property outside an instance")
	}
	return ctx.deleteProp(worlddb.PropKey{Store: worlddb.InstanceProp, ID1: string(loctx.IID), ID2: string(p.LocID), Name: key})
}

// RealmProxy represents the realm-level properties. There is one of
// these, in the global namespace.
type RealmProxy struct{}

func (p RealmProxy) GetProp(ctx *Context, loctx *task.LocContext, key string) (any, error) {
	val, err := ctx.cascadeProp(loctx, "", key)
	if errors.Is(err, ErrSymbolNotFound) {
		return nil, fmt.Errorf("%w: realm property %q", ErrSymbolNotFound, key)
	}
	return val, err
}

func (p RealmProxy) SetProp(ctx *Context, loctx *task.LocContext, key string, val any) error {
	if loctx.IID == "" {
		return fmt.Errorf("eval: cannot set a property outside an instance")
	}
	return ctx.writeProp(worlddb.PropKey{Store: worlddb.InstanceProp, ID1: string(loctx.IID), ID2: "", Name: key}, val)
}

func (p RealmProxy) DeleteProp(ctx *Context, loctx *task.LocContext, key string) error {
	if loctx.IID == "" {
		return fmt.Errorf("eval: cannot delete a property outside an instance")
	}
	return ctx.deleteProp(worlddb.PropKey{Store: worlddb.InstanceProp, ID1: string(loctx.IID), ID2: "", Name: key})
}

// WorldLocationsProxy represents the collection of locations in the
// current world, indexed by their keys. Read-only; locations cannot be
// invented or destroyed on the fly.
type WorldLocationsProxy struct{}

func (p WorldLocationsProxy) GetProp(ctx *Context, loctx *task.LocContext, key string) (any, error) {
	loc, err := ctx.Task.Store().LocationByKey(loctx.WID, key)
	if err != nil {
		if errors.Is(err, worlddb.ErrNotFound) {
			return nil, fmt.Errorf("%w: no such location: %s", ErrSymbolNotFound, key)
		}
		return nil, err
	}
	return LocationProxy{LocID: loc.LocID}, nil
}

func (p WorldLocationsProxy) SetProp(ctx *Context, loctx *task.LocContext, key string, val any) error {
	return fmt.Errorf("%w: locations cannot be assigned", ErrSandbox)
}

func (p WorldLocationsProxy) DeleteProp(ctx *Context, loctx *task.LocContext, key string) error {
	return fmt.Errorf("%w: locations cannot be deleted", ErrSandbox)
}

// assignTarget is what an assignment or del statement resolves its
// left side to: a handle with load, store, and delete behavior.
type assignTarget interface {
	load(ctx *Context, loctx *task.LocContext) (any, error)
	store(ctx *Context, loctx *task.LocContext, val any) error
	remove(ctx *Context, loctx *task.LocContext) error
}

// boundName is an assignTarget for a bare symbol. It respects the
// wacky rules: "_" swallows stores silently, builtin names are
// immutable, and writes land in the instance properties of the current
// location.
type boundName struct {
	key string
}

func (b boundName) load(ctx *Context, loctx *task.LocContext) (any, error) {
	return ctx.FindSymbol(loctx, b.key, ctx.frameLocals())
}

func (b boundName) store(ctx *Context, loctx *task.LocContext, val any) error {
	if b.key == "_" {
		return nil
	}
	if IsBuiltin(b.key) {
		return fmt.Errorf("%w: cannot assign to keyword %q", ErrSandbox, b.key)
	}
	if loctx.IID == "" {
		return fmt.Errorf("eval: cannot set a property outside an instance")
	}
	return ctx.writeProp(worlddb.PropKey{Store: worlddb.InstanceProp, ID1: string(loctx.IID), ID2: string(loctx.LocID), Name: b.key}, val)
}

func (b boundName) remove(ctx *Context, loctx *task.LocContext) error {
	if b.key == "_" || IsBuiltin(b.key) {
		return fmt.Errorf("%w: cannot delete keyword %q", ErrSandbox, b.key)
	}
	if loctx.IID == "" {
		return fmt.Errorf("eval: cannot delete a property outside an instance")
	}
	return ctx.deleteProp(worlddb.PropKey{Store: worlddb.InstanceProp, ID1: string(loctx.IID), ID2: string(loctx.LocID), Name: b.key})
}

// boundProp is an assignTarget for proxy.key.
type boundProp struct {
	proxy PropertyProxy
	key   string
}

func (b boundProp) load(ctx *Context, loctx *task.LocContext) (any, error) {
	return b.proxy.GetProp(ctx, loctx, b.key)
}

func (b boundProp) store(ctx *Context, loctx *task.LocContext, val any) error {
	return b.proxy.SetProp(ctx, loctx, b.key, val)
}

func (b boundProp) remove(ctx *Context, loctx *task.LocContext) error {
	return b.proxy.DeleteProp(ctx, loctx, b.key)
}
