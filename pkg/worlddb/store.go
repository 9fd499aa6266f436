package worlddb

import "errors"

// ErrNotFound is returned by store lookups for missing documents.
// Property misses are not errors; PropStore.GetProp reports them with
// its found flag.
var ErrNotFound = errors.New("worlddb: not found")

// ErrNotWritable is returned when a write targets a read-only store.
var ErrNotWritable = errors.New("worlddb: store is not script-writable")

// PropStore is the interface the resolver and property cache sit on:
// the four property collections, addressed by PropKey. Implementations
// must reject SetProp/DeleteProp on non-writable stores with
// ErrNotWritable.
type PropStore interface {
	// GetProp fetches one property value. found is false on a miss.
	GetProp(key PropKey) (val any, found bool, err error)
	// SetProp upserts one property value.
	SetProp(key PropKey, val any) error
	// DeleteProp removes one property, if present.
	DeleteProp(key PropKey) error
}

// WorldStore is the full backing store: properties plus the supporting
// documents the evaluator and renderer consult.
type WorldStore interface {
	PropStore

	World(wid WorldID) (*World, error)
	Location(locid LocID) (*Location, error)
	// LocationByKey resolves a location slug within a world.
	LocationByKey(wid WorldID, key string) (*Location, error)

	Player(uid PlayerID) (*Player, error)
	SetPlayer(p *Player) error

	PlayState(uid PlayerID) (*PlayState, error)
	SetPlayState(ps *PlayState) error
	// PlayersInLocation lists the uids present at (iid, locid).
	PlayersInLocation(iid InstanceID, locid LocID) ([]PlayerID, error)

	Instance(iid InstanceID) (*Instance, error)
	// InstanceForScope finds the instance of a world within a scope.
	InstanceForScope(wid WorldID, sid ScopeID) (*Instance, error)
	// CreateInstance stores a new instance document. Portin is the only
	// caller; instances are never created anywhere else.
	CreateInstance(inst *Instance) error
	Scope(sid ScopeID) (*Scope, error)

	Portal(portid PortalID) (*Portal, error)
	// CreatePortal stores a new portal document.
	CreatePortal(p *Portal) error
	SetPortal(p *Portal) error
	DeletePortal(portid PortalID) error
	PortList(plistid PortListID) (*PortList, error)
	// PortalsInList returns the portals of a list ordered by ListPos.
	PortalsInList(plistid PortListID) ([]*Portal, error)
}
