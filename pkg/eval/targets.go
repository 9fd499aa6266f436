package eval

import "github.com/weaveworld/goweave/pkg/worlddb"

// Action targets are the values of a context's link-target map. A
// plain string target is a symbol name, executed as code when the
// player triggers the action. The structured types below come from
// widgets and generated display elements rather than description
// links; the connection layer dispatches on them directly.

// EditStrTarget accepts a new string value for the property named Key.
// Text and OText, when set, are markup shown to the editor and to
// bystanders after the edit.
type EditStrTarget struct {
	Key   string
	Text  string
	OText string
}

// PlayerTarget focuses another player (from the populace strip).
type PlayerTarget struct {
	UID worlddb.PlayerID
}

// FocusTarget sets the player's focus to a prebuilt focus object.
type FocusTarget struct {
	Obj any
}

// PortalTarget travels through a portal.
type PortalTarget struct {
	PortID worlddb.PortalID
}

// CopyPortalTarget copies a portal into the player's collection.
type CopyPortalTarget struct {
	PortID worlddb.PortalID
}
