package worlddb

import "time"

// WorldID identifies a world definition (the authored content).
type WorldID string

// InstanceID identifies a live instance of a world within a scope.
type InstanceID string

// LocID identifies a location within a world.
type LocID string

// PlayerID identifies a player account.
type PlayerID string

// ScopeID identifies a sharing scope (personal, global, group).
type ScopeID string

// PortalID identifies a portal document.
type PortalID string

// PortListID identifies a portal list document.
type PortListID string

// AccessLevel gates who may read or edit instance state.
type AccessLevel int

const (
	AccBanned  AccessLevel = 0
	AccVisitor AccessLevel = 1
	AccMember  AccessLevel = 2
	AccOwner   AccessLevel = 3
	AccCreator AccessLevel = 4
)

var accessNames = map[string]AccessLevel{
	"BANNED":  AccBanned,
	"VISITOR": AccVisitor,
	"MEMBER":  AccMember,
	"OWNER":   AccOwner,
	"CREATOR": AccCreator,
}

// AccessLevelNamed maps a level name ("member", "OWNER", ...) to its value.
func AccessLevelNamed(name string) (AccessLevel, bool) {
	lev, ok := accessNames[upper(name)]
	return lev, ok
}

func upper(s string) string {
	b := []byte(s)
	for i, ch := range b {
		if ch >= 'a' && ch <= 'z' {
			b[i] = ch - 32
		}
	}
	return string(b)
}

// Instancing describes how a world spawns instances.
type Instancing string

const (
	InstancingStandard Instancing = "standard" // one instance per scope
	InstancingSolo     Instancing = "solo"     // always personal
	InstancingShared   Instancing = "shared"   // always global
)

// World is an authored world definition.
type World struct {
	WID        WorldID
	Name       string
	Creator    PlayerID
	CreatorName string
	Copyable   bool
	Instancing Instancing
}

// Location is a room within a world. Key is the slug used by markup
// links and move records; it is unique within the world.
type Location struct {
	LocID LocID
	WID   WorldID
	Key   string
	Name  string
}

// ScopeType discriminates scope documents.
type ScopeType string

const (
	ScopeGlobal   ScopeType = "glob"
	ScopePersonal ScopeType = "pers"
	ScopeGroup    ScopeType = "grp"
)

// Scope is a sharing boundary for instances.
type Scope struct {
	SID   ScopeID
	Type  ScopeType
	UID   PlayerID // owner, for personal scopes
	Group string   // group name, for group scopes
}

// Instance is a live copy of a world within one scope. GenSeed, when
// set, fixes the instance's procedural-text seed; an empty seed falls
// back to the instance and world ids.
type Instance struct {
	IID       InstanceID
	WID       WorldID
	SID       ScopeID
	MinAccess AccessLevel
	GenSeed   []byte
}

// Pronoun is a player's chosen pronoun key: "he", "she", "it", "they",
// or "name" (use the player's name instead of a pronoun).
type Pronoun string

// Player is a player account's world-facing identity.
type Player struct {
	UID     PlayerID
	Name    string
	Pronoun Pronoun
	Desc    string
	SID     ScopeID    // personal scope
	PListID PortListID // personal portal collection
}

// PlayState is a player's mutable position: which instance and location
// they occupy and what they are examining. A player with an empty IID
// is in the void between instances; PortTo then records where the next
// portin lands them.
type PlayState struct {
	UID       PlayerID
	IID       InstanceID
	LocID     LocID
	Focus     any // nil, a symbol name, or a focus array (see eval)
	LastLocID LocID
	LastMoved time.Time
	PortTo    *PortDest
}

// PortDest is a fully resolved portal destination.
type PortDest struct {
	WID   WorldID
	SID   ScopeID
	LocID LocID
}

// Portal is a door from one world to a location in another (or the same)
// world. SID may be one of the special strings "personal", "global",
// "same" rather than a literal scope; PListID links it into a portlist.
type Portal struct {
	PortID    PortalID
	PListID   PortListID
	WID       WorldID
	SID       string
	LocID     LocID
	InWID     WorldID // set when placed directly in a world
	ListPos   float64
	Preferred bool
}

// PortListType discriminates portlist ownership.
type PortListType string

const (
	PortListPersonal PortListType = "pers"
	PortListWorld    PortListType = "world"
)

// PortList is an ordered collection of portals.
type PortList struct {
	PListID PortListID
	Type    PortListType
	UID     PlayerID // for personal lists
	WID     WorldID  // for world lists
}
