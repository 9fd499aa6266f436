package worldfile

import (
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/weaveworld/goweave/pkg/worlddb"
)

// Store is the store surface the loader writes through.
// *boltstore.Store implements it.
type Store interface {
	World(wid worlddb.WorldID) (*worlddb.World, error)
	WorldByName(name string) (*worlddb.World, error)
	PutWorld(w *worlddb.World) error

	PlayerByName(name string) (*worlddb.Player, error)

	LocationByKey(wid worlddb.WorldID, key string) (*worlddb.Location, error)
	PutLocation(loc *worlddb.Location) error

	SeedProp(key worlddb.PropKey, val any) error
	DropProp(key worlddb.PropKey) error
	ClearProps(kind worlddb.StoreKind, id1, id2 string) error

	PortList(plistid worlddb.PortListID) (*worlddb.PortList, error)
	PutPortList(pl *worlddb.PortList) error
	PortalsInList(plistid worlddb.PortListID) ([]*worlddb.Portal, error)
	CreatePortal(p *worlddb.Portal) error
	DeletePortal(portid worlddb.PortalID) error
}

// Apply writes a parsed definition into the store: the world document,
// its locations, portlists and portals, and every property. Properties
// are upserted by key; properties the file does not mention are left
// alone. The definition must have parsed without errors.
func Apply(store Store, def *WorldDef) (*worlddb.World, error) {
	if len(def.Errors) > 0 {
		return nil, fmt.Errorf("worldfile: definition has %d errors", len(def.Errors))
	}

	creator, err := store.PlayerByName(def.Creator)
	if err != nil {
		if errors.Is(err, worlddb.ErrNotFound) {
			return nil, fmt.Errorf("worldfile: creator %q not found", def.Creator)
		}
		return nil, err
	}

	w, err := resolveWorld(store, def, creator)
	if err != nil {
		return nil, err
	}

	ap := &applier{
		store:     store,
		def:       def,
		wid:       w.WID,
		locids:    make(map[string]worlddb.LocID),
		built:     make(map[string]bool),
		firstPort: make(map[string]worlddb.PortalID),
	}

	for _, lockey := range def.LocationList {
		if err := ap.ensureLocation(def.Locations[lockey]); err != nil {
			return nil, err
		}
	}

	if err := ap.writeProps(worlddb.WorldProp, "", def.Props, def.PropList); err != nil {
		return nil, err
	}
	if err := ap.writeProps(worlddb.WPlayerProp, "", def.PlayerProps, def.PlayerPropList); err != nil {
		return nil, err
	}
	for _, lockey := range def.LocationList {
		loc := def.Locations[lockey]
		locid := ap.locids[lockey]
		if err := ap.writeProps(worlddb.WorldProp, string(locid), loc.Props, loc.PropList); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// FindWorld resolves the world a definition refers to without creating
// anything: by $wid when pinned, otherwise by $name and $creator.
func FindWorld(store Store, def *WorldDef) (*worlddb.World, error) {
	if def.WID != "" {
		return store.World(def.WID)
	}
	if def.Name == "" {
		return nil, errors.New("worldfile: definition has no $name")
	}
	w, err := store.WorldByName(def.Name)
	if err != nil {
		return nil, err
	}
	creator, err := store.PlayerByName(def.Creator)
	if err == nil && w.Creator != creator.UID {
		return nil, fmt.Errorf("worldfile: found world %q, but it was not created by %s", def.Name, def.Creator)
	}
	return w, nil
}

func resolveWorld(store Store, def *WorldDef, creator *worlddb.Player) (*worlddb.World, error) {
	if def.WID != "" {
		w, err := store.World(def.WID)
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, worlddb.ErrNotFound) {
			return nil, err
		}
		return createWorld(store, def, creator, def.WID)
	}

	if def.Name == "" {
		return nil, errors.New("worldfile: definition has no $name")
	}
	w, err := store.WorldByName(def.Name)
	if err == nil {
		if w.Creator != creator.UID {
			return nil, fmt.Errorf("worldfile: found world %q, but it was not created by %s", def.Name, def.Creator)
		}
		return w, nil
	}
	if !errors.Is(err, worlddb.ErrNotFound) {
		return nil, err
	}
	return createWorld(store, def, creator, worlddb.WorldID(uuid.NewString()))
}

func createWorld(store Store, def *WorldDef, creator *worlddb.Player, wid worlddb.WorldID) (*worlddb.World, error) {
	if def.Name == "" {
		return nil, errors.New("worldfile: definition has no $name")
	}
	w := &worlddb.World{
		WID:         wid,
		Name:        def.Name,
		Creator:     creator.UID,
		CreatorName: creator.Name,
		Copyable:    def.Copyable,
		Instancing:  def.Instancing,
	}
	if err := store.PutWorld(w); err != nil {
		return nil, err
	}
	log.Printf("worldfile: created world %q (%s)", w.Name, w.WID)
	return w, nil
}

type applier struct {
	store     Store
	def       *WorldDef
	wid       worlddb.WorldID
	locids    map[string]worlddb.LocID
	built     map[string]bool // portlist keys already rebuilt
	firstPort map[string]worlddb.PortalID
}

func (ap *applier) ensureLocation(def *LocationDef) error {
	loc, err := ap.store.LocationByKey(ap.wid, def.Key)
	switch {
	case errors.Is(err, worlddb.ErrNotFound):
		loc = &worlddb.Location{
			LocID: worlddb.LocID(uuid.NewString()),
			WID:   ap.wid,
			Key:   def.Key,
			Name:  def.Name,
		}
		if err := ap.store.PutLocation(loc); err != nil {
			return err
		}
		log.Printf("worldfile: created location %s (%s)", def.Key, loc.LocID)
	case err != nil:
		return err
	case loc.Name != def.Name:
		loc.Name = def.Name
		if err := ap.store.PutLocation(loc); err != nil {
			return err
		}
	}
	ap.locids[def.Key] = loc.LocID
	return nil
}

func (ap *applier) writeProps(kind worlddb.StoreKind, id2 string, props map[string]any, list []string) error {
	for _, key := range list {
		val := props[key]
		if pld, ok := val.(*PortListDef); ok {
			ref, err := ap.portListRef(pld)
			if err != nil {
				return err
			}
			val = ref
		}
		pkey := worlddb.PropKey{Store: kind, ID1: string(ap.wid), ID2: id2, Name: key}
		if err := ap.store.SeedProp(pkey, val); err != nil {
			return fmt.Errorf("worldfile: write %s: %w", pkey, err)
		}
	}
	return nil
}

// portListRef rebuilds the portlist named by def (once per apply, even
// when several properties share it) and returns the stored reference.
func (ap *applier) portListRef(def *PortListDef) (*worlddb.PortListRef, error) {
	plid := worlddb.PortListID(string(ap.wid) + ":" + def.Key)

	if !ap.built[def.Key] {
		if _, err := ap.store.PortList(plid); errors.Is(err, worlddb.ErrNotFound) {
			pl := &worlddb.PortList{PListID: plid, Type: worlddb.PortListWorld, WID: ap.wid}
			if err := ap.store.PutPortList(pl); err != nil {
				return nil, err
			}
			log.Printf("worldfile: created portlist %s (%s)", def.Key, plid)
		} else if err != nil {
			return nil, err
		}

		old, err := ap.store.PortalsInList(plid)
		if err != nil {
			return nil, err
		}
		for _, p := range old {
			if err := ap.store.DeletePortal(p.PortID); err != nil {
				return nil, err
			}
		}
		for i, quad := range def.Portals {
			port, err := ap.resolvePortal(plid, quad, float64(i))
			if err != nil {
				return nil, err
			}
			if err := ap.store.CreatePortal(port); err != nil {
				return nil, err
			}
			if i == 0 {
				ap.firstPort[def.Key] = port.PortID
			}
			log.Printf("worldfile: created portal to %s, %s (%s)", quad.World, quad.LocKey, port.PortID)
		}
		ap.built[def.Key] = true
	}

	ref := &worlddb.PortListRef{
		PListID:    plid,
		ReadAccess: def.ReadAccess,
		EditAccess: def.EditAccess,
		Text:       def.Text,
	}
	if def.Single {
		ref.FocusPort = ap.firstPort[def.Key]
	}
	return ref, nil
}

func (ap *applier) resolvePortal(plid worlddb.PortListID, quad PortalDef, listpos float64) (*worlddb.Portal, error) {
	creator, err := ap.store.PlayerByName(quad.Creator)
	if err != nil {
		if errors.Is(err, worlddb.ErrNotFound) {
			return nil, fmt.Errorf("worldfile: creator not found for portal: %s, %s", quad.World, quad.Creator)
		}
		return nil, err
	}
	tow, err := ap.store.WorldByName(quad.World)
	if err != nil {
		if errors.Is(err, worlddb.ErrNotFound) {
			return nil, fmt.Errorf("worldfile: world not found for portal: %s", quad.World)
		}
		return nil, err
	}
	if tow.Creator != creator.UID {
		return nil, fmt.Errorf("worldfile: world %q was not created by %s", quad.World, quad.Creator)
	}
	toloc, err := ap.store.LocationByKey(tow.WID, quad.LocKey)
	if err != nil {
		if errors.Is(err, worlddb.ErrNotFound) {
			return nil, fmt.Errorf("worldfile: location not found for portal: %s, %s", quad.World, quad.LocKey)
		}
		return nil, err
	}

	return &worlddb.Portal{
		PortID:  worlddb.PortalID(uuid.NewString()),
		PListID: plid,
		WID:     tow.WID,
		SID:     quad.Scope,
		LocID:   toloc.LocID,
		ListPos: listpos,
	}, nil
}

// RemoveProps deletes authored properties of one world. lockey selects
// the group: "" for the realm-level world properties, "$player" for the
// world player defaults, anything else a location key. An empty key
// removes the whole group.
func RemoveProps(store Store, wid worlddb.WorldID, lockey, key string) error {
	kind := worlddb.WorldProp
	id2 := ""
	switch lockey {
	case "":
	case "$player":
		kind = worlddb.WPlayerProp
	default:
		loc, err := store.LocationByKey(wid, lockey)
		if err != nil {
			if errors.Is(err, worlddb.ErrNotFound) {
				return fmt.Errorf("worldfile: location not found: %s", lockey)
			}
			return err
		}
		id2 = string(loc.LocID)
	}
	if key == "" {
		return store.ClearProps(kind, string(wid), id2)
	}
	return store.DropProp(worlddb.PropKey{Store: kind, ID1: string(wid), ID2: id2, Name: key})
}
