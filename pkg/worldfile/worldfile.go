// Package worldfile reads the text world-definition format: a header of
// $-directives, world-level properties, then *location blocks each with
// their own key: value properties. Parsed definitions can be checked for
// internal consistency and applied to a store.
//
// This is an administrator tool path; it does no permission checking and
// can modify or overwrite any world.
package worldfile

import (
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// WorldDef is one parsed world definition file.
type WorldDef struct {
	// WID pins the definition to an existing world id. Usually empty;
	// the world is then matched by Name and Creator.
	WID        worlddb.WorldID
	Name       string
	Creator    string // creator player name
	Copyable   bool
	Instancing worlddb.Instancing

	Props    map[string]any
	PropList []string // keys in file order

	PlayerProps    map[string]any
	PlayerPropList []string

	Locations    map[string]*LocationDef
	LocationList []string // keys in file order

	// Errors collects the problems found while parsing, each prefixed
	// with its line number. A definition with errors must not be applied.
	Errors []string
}

// LocationDef is one *location block.
type LocationDef struct {
	Key   string
	Name  string
	Props map[string]any
	PropList []string
}

// PortListDef is the parse-time value of a *portlist property: the
// widget settings plus the portal quads declared on its continuation
// lines. Apply turns it into a portlist document, portal documents, and
// a stored PortListRef.
type PortListDef struct {
	Key        string
	Text       string
	Single     bool // present the list as its single portal
	ReadAccess worlddb.AccessLevel
	EditAccess worlddb.AccessLevel
	Portals    []PortalDef
}

// PortalDef is one portal quad: destination world name, its creator's
// player name, a scope ("personal", "global", "same", or a scope id),
// and a destination location key.
type PortalDef struct {
	World   string
	Creator string
	Scope   string
	LocKey  string
}

func newWorldDef() *WorldDef {
	return &WorldDef{
		Creator:     "Admin",
		Copyable:    true,
		Instancing:  worlddb.InstancingStandard,
		Props:       make(map[string]any),
		PlayerProps: make(map[string]any),
		Locations:   make(map[string]*LocationDef),
	}
}

func newLocationDef(key, name string) *LocationDef {
	return &LocationDef{
		Key:   key,
		Name:  name,
		Props: make(map[string]any),
	}
}
