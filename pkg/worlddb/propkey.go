package worlddb

import "fmt"

// StoreKind names one of the four property namespaces. The pair of scope
// ids in a PropKey is interpreted per kind; see PropKey.
type StoreKind int

const (
	// WorldProp is authored world state, keyed by (wid, locid).
	WorldProp StoreKind = iota
	// InstanceProp is live instance state, keyed by (iid, locid).
	InstanceProp
	// WPlayerProp is authored per-player state, keyed by (wid, uid).
	WPlayerProp
	// IPlayerProp is live per-player instance state, keyed by (iid, uid).
	IPlayerProp

	// PlayStateField and PlayerField are dependency-only pseudo-stores.
	// They never hold cached property values; they exist so that facts
	// like "player X's location" or "player Y's name" can appear in
	// dependency sets and task changesets with the same key type as
	// real properties. ID1 is the uid, ID2 is empty, Name is the field.
	PlayStateField
	PlayerField
)

func (k StoreKind) String() string {
	switch k {
	case WorldProp:
		return "worldprop"
	case InstanceProp:
		return "instanceprop"
	case WPlayerProp:
		return "wplayerprop"
	case IPlayerProp:
		return "iplayerprop"
	case PlayStateField:
		return "playstate"
	case PlayerField:
		return "players"
	default:
		return fmt.Sprintf("storekind(%d)", int(k))
	}
}

// Writable reports whether script code may write to this store. Only the
// instance-level stores accept writes; world-level stores are authored
// content and read-only at runtime.
func (k StoreKind) Writable() bool {
	return k == InstanceProp || k == IPlayerProp
}

// PropKey is the full address of one property: a 4-tuple of store,
// two scope ids, and a name. The same tuple doubles as the dependency
// key used for cache invalidation, so PropKey is comparable and usable
// as a map key.
//
// ID1 is the wid (world stores) or iid (instance stores). ID2 is the
// locid (location stores) or uid (player stores); an empty ID2 means
// the realm/global level of that store.
type PropKey struct {
	Store StoreKind
	ID1   string
	ID2   string
	Name  string
}

func (k PropKey) String() string {
	return fmt.Sprintf("(%s %s %s %q)", k.Store, k.ID1, k.ID2, k.Name)
}

// KeySet is a set of property keys, used both for dependency tracking
// and for task changesets.
type KeySet map[PropKey]struct{}

// NewKeySet creates an empty key set.
func NewKeySet() KeySet {
	return make(KeySet)
}

// Add inserts a key. Nil-safe so callers can pass an optional set.
func (s KeySet) Add(key PropKey) {
	if s == nil {
		return
	}
	s[key] = struct{}{}
}

// Contains reports whether the key is in the set.
func (s KeySet) Contains(key PropKey) bool {
	_, ok := s[key]
	return ok
}

// Merge adds every key of other into s.
func (s KeySet) Merge(other KeySet) {
	for key := range other {
		s[key] = struct{}{}
	}
}

// Intersects reports whether the two sets share any key. It iterates the
// smaller set.
func (s KeySet) Intersects(other KeySet) bool {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for key := range small {
		if _, ok := large[key]; ok {
			return true
		}
	}
	return false
}

// Clear removes all keys, retaining the allocation.
func (s KeySet) Clear() {
	for key := range s {
		delete(s, key)
	}
}
