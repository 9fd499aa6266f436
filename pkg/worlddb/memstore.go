package worlddb

import (
	"sort"
	"sync"
)

// MemStore is an in-memory WorldStore. It backs the evaltest tool and
// the unit tests; the production store is pkg/boltstore.
type MemStore struct {
	mu         sync.RWMutex
	props      map[PropKey]any
	worlds     map[WorldID]*World
	locations  map[LocID]*Location
	players    map[PlayerID]*Player
	playstates map[PlayerID]*PlayState
	instances  map[InstanceID]*Instance
	scopes     map[ScopeID]*Scope
	portals    map[PortalID]*Portal
	portlists  map[PortListID]*PortList
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		props:      make(map[PropKey]any),
		worlds:     make(map[WorldID]*World),
		locations:  make(map[LocID]*Location),
		players:    make(map[PlayerID]*Player),
		playstates: make(map[PlayerID]*PlayState),
		instances:  make(map[InstanceID]*Instance),
		scopes:     make(map[ScopeID]*Scope),
		portals:    make(map[PortalID]*Portal),
		portlists:  make(map[PortListID]*PortList),
	}
}

// GetProp implements PropStore. The stored value is deep-copied on the
// way out so callers cannot mutate the store behind its back, matching
// the document-store behavior the cache layers expect.
func (m *MemStore) GetProp(key PropKey) (any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.props[key]
	if !ok {
		return nil, false, nil
	}
	return DeepCopy(val), true, nil
}

// SetProp implements PropStore.
func (m *MemStore) SetProp(key PropKey, val any) error {
	if !key.Store.Writable() {
		return ErrNotWritable
	}
	if err := CheckStorable(val); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.props[key] = DeepCopy(val)
	return nil
}

// DeleteProp implements PropStore.
func (m *MemStore) DeleteProp(key PropKey) error {
	if !key.Store.Writable() {
		return ErrNotWritable
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.props, key)
	return nil
}

// SeedProp installs a property without the writability check. Loader and
// test fixture use only.
func (m *MemStore) SeedProp(key PropKey, val any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.props[key] = DeepCopy(val)
}

func (m *MemStore) World(wid WorldID) (*World, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.worlds[wid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *MemStore) AddWorld(w *World) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.worlds[w.WID] = &cp
}

func (m *MemStore) Location(locid LocID) (*Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.locations[locid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *loc
	return &cp, nil
}

func (m *MemStore) LocationByKey(wid WorldID, key string) (*Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, loc := range m.locations {
		if loc.WID == wid && loc.Key == key {
			cp := *loc
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) AddLocation(loc *Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *loc
	m.locations[loc.LocID] = &cp
}

func (m *MemStore) Player(uid PlayerID) (*Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[uid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemStore) SetPlayer(p *Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.players[p.UID] = &cp
	return nil
}

func (m *MemStore) PlayState(uid PlayerID) (*PlayState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ps, ok := m.playstates[uid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ps
	if ps.PortTo != nil {
		dest := *ps.PortTo
		cp.PortTo = &dest
	}
	return &cp, nil
}

func (m *MemStore) SetPlayState(ps *PlayState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ps
	if ps.PortTo != nil {
		dest := *ps.PortTo
		cp.PortTo = &dest
	}
	m.playstates[ps.UID] = &cp
	return nil
}

func (m *MemStore) PlayersInLocation(iid InstanceID, locid LocID) ([]PlayerID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var uids []PlayerID
	for uid, ps := range m.playstates {
		if ps.IID == iid && ps.LocID == locid {
			uids = append(uids, uid)
		}
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

func (m *MemStore) Instance(iid InstanceID) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[iid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

func (m *MemStore) InstanceForScope(wid WorldID, sid ScopeID) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, inst := range m.instances {
		if inst.WID == wid && inst.SID == sid {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemStore) CreateInstance(inst *Instance) error {
	m.AddInstance(inst)
	return nil
}

func (m *MemStore) AddInstance(inst *Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inst
	m.instances[inst.IID] = &cp
}

func (m *MemStore) Scope(sid ScopeID) (*Scope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc, ok := m.scopes[sid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sc
	return &cp, nil
}

func (m *MemStore) AddScope(sc *Scope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sc
	m.scopes[sc.SID] = &cp
}

func (m *MemStore) Portal(portid PortalID) (*Portal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.portals[portid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemStore) CreatePortal(p *Portal) error {
	m.AddPortal(p)
	return nil
}

func (m *MemStore) SetPortal(p *Portal) error {
	m.AddPortal(p)
	return nil
}

func (m *MemStore) DeletePortal(portid PortalID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.portals, portid)
	return nil
}

func (m *MemStore) AddPortal(p *Portal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.portals[p.PortID] = &cp
}

func (m *MemStore) PortList(plistid PortListID) (*PortList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pl, ok := m.portlists[plistid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *pl
	return &cp, nil
}

func (m *MemStore) AddPortList(pl *PortList) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pl
	m.portlists[pl.PListID] = &cp
}

func (m *MemStore) PortalsInList(plistid PortListID) ([]*Portal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Portal
	for _, p := range m.portals {
		if p.PListID == plistid {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ListPos < out[j].ListPos })
	return out, nil
}
