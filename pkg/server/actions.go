package server

import (
	"fmt"

	"github.com/weaveworld/goweave/pkg/eval"
	"github.com/weaveworld/goweave/pkg/events"
	"github.com/weaveworld/goweave/pkg/task"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// MaxDescLineLength caps player-entered description strings.
const MaxDescLineLength = 256

// performAction carries out one triggered action. The target comes
// from the connection's action maps: a structured target type for the
// widget actions, or a string of script code for plain links.
func (app *App) performAction(t *task.Task, conn *PlayerConn, target any, msg ClientMessage) error {
	uid := conn.uid
	loctx, err := t.GetLocContext(uid)
	if err != nil {
		return err
	}
	if loctx.IID == "" {
		// In the void, there should be no actions.
		return &eval.CommandError{Text: "You are between worlds."}
	}

	switch target := target.(type) {
	case *eval.PlayerTarget:
		return app.setFocus(t, uid, []any{"player", string(target.UID)})

	case *eval.FocusTarget:
		return app.setFocus(t, uid, target.Obj)

	case *eval.EditStrTarget:
		return app.performEditStr(t, conn, loctx, target, msg)

	case *eval.CopyPortalTarget:
		return app.performCopyPortal(t, conn, loctx, target.PortID)

	case *eval.PortalTarget:
		return app.performPortal(t, conn, loctx, target.PortID)

	case string:
		ctx := eval.NewContext(t, loctx, eval.LevelExecute)
		newval, err := ctx.Eval(target, eval.TypeCode)
		if err != nil {
			return err
		}
		if newval != nil {
			conn.Receive(events.Event{Type: events.EvEvent, Player: uid, Text: worlddb.Stringify(newval)})
		}
		return nil

	default:
		return &eval.CommandError{Text: fmt.Sprintf("Action not understood: %v", target)}
	}
}

// setFocus updates the player's focus and dirties the facet.
func (app *App) setFocus(t *task.Task, uid worlddb.PlayerID, obj any) error {
	ps, err := app.Store.PlayState(uid)
	if err != nil {
		return fmt.Errorf("server: playstate for %s: %w", uid, err)
	}
	ps.Focus = obj
	if err := app.Store.SetPlayState(ps); err != nil {
		return fmt.Errorf("server: set focus for %s: %w", uid, err)
	}
	t.SetDirty(uid, task.DirtyFocus)
	t.SetDataChange(worlddb.PropKey{Store: worlddb.PlayStateField, ID1: string(uid), Name: "focus"})
	return nil
}

// performEditStr stores a player-entered string into the edit widget's
// instance property and shows the confirmation messages.
func (app *App) performEditStr(t *task.Task, conn *PlayerConn, loctx *task.LocContext, target *eval.EditStrTarget, msg ClientMessage) error {
	if msg.Val == "" {
		return &eval.CommandError{Text: "No value given for editstr."}
	}
	val := msg.Val
	if len(val) > MaxDescLineLength {
		val = val[:MaxDescLineLength]
	}
	key := worlddb.PropKey{Store: worlddb.InstanceProp, ID1: string(loctx.IID), ID2: string(loctx.LocID), Name: target.Key}
	if err := app.Store.SetProp(key, val); err != nil {
		return fmt.Errorf("server: editstr %s: %w", target.Key, err)
	}
	t.SetDataChange(key)

	if target.Text != "" {
		ctx := eval.NewContext(t, loctx, eval.LevelMessage)
		out, err := ctx.Eval(target.Text, eval.TypeText)
		if err != nil {
			return err
		}
		t.WriteEvent(conn.uid, worlddb.Stringify(out))
	}
	if target.OText != "" {
		others, err := t.FindLocalePlayers(loctx, true)
		if err != nil {
			return err
		}
		ctx := eval.NewContext(t, loctx, eval.LevelMessage)
		out, err := ctx.Eval(target.OText, eval.TypeText)
		if err != nil {
			return err
		}
		t.WriteEventMany(others, worlddb.Stringify(out))
	}
	return nil
}

// portalInReach checks that a portal is usable from where the player
// stands: placed in the current world, or in the player's personal
// collection, or in a portlist belonging to the current world. Access
// levels are not checked here.
func (app *App) portalInReach(portal *worlddb.Portal, uid worlddb.PlayerID, wid worlddb.WorldID) error {
	switch {
	case portal.InWID != "":
		if portal.InWID != wid {
			return &eval.CommandError{Text: "You are not in this portal's world."}
		}
		return nil
	case portal.PListID != "":
		plist, err := app.Store.PortList(portal.PListID)
		if err != nil {
			return &eval.CommandError{Text: "Portal does not have a portlist."}
		}
		if plist.Type == worlddb.PortListPersonal {
			if plist.UID != uid {
				return &eval.CommandError{Text: "Portal is not in your personal portlist."}
			}
			return nil
		}
		if plist.WID != wid {
			return &eval.CommandError{Text: "You are not in this portlist's world."}
		}
		return nil
	default:
		return &eval.CommandError{Text: "Portal does not have a placement."}
	}
}

// resolvePortalScope decides which scope a portal sends the player to.
// The portal's scope field may be the special strings "personal",
// "global", or "same"; the destination world's instancing mode
// overrides it.
func (app *App) resolvePortalScope(portal *worlddb.Portal, uid worlddb.PlayerID, cursid worlddb.ScopeID, world *worlddb.World) (worlddb.ScopeID, error) {
	reqsid := portal.SID
	switch world.Instancing {
	case worlddb.InstancingSolo:
		reqsid = "personal"
	case worlddb.InstancingShared:
		reqsid = "global"
	}
	switch reqsid {
	case "personal":
		player, err := app.Store.Player(uid)
		if err != nil || player.SID == "" {
			return "", &eval.CommandError{Text: "You have no personal scope!"}
		}
		return player.SID, nil
	case "global":
		sid := app.Config().GlobalScopeID()
		if sid == "" {
			return "", &eval.CommandError{Text: "There is no global scope!"}
		}
		return sid, nil
	case "same":
		return cursid, nil
	default:
		return worlddb.ScopeID(reqsid), nil
	}
}

// performCopyPortal copies a reachable portal into the player's
// personal collection.
func (app *App) performCopyPortal(t *task.Task, conn *PlayerConn, loctx *task.LocContext, portid worlddb.PortalID) error {
	store := app.Store
	uid := conn.uid

	portal, err := store.Portal(portid)
	if err != nil {
		return &eval.CommandError{Text: "Portal not found."}
	}
	if err := app.portalInReach(portal, uid, loctx.WID); err != nil {
		return err
	}
	world, err := store.World(portal.WID)
	if err != nil {
		return &eval.CommandError{Text: "Destination world not found."}
	}
	location, err := store.Location(portal.LocID)
	if err != nil || location.WID != world.WID {
		return &eval.CommandError{Text: "Destination location not found."}
	}
	newsid, err := app.resolvePortalScope(portal, uid, loctx.SID, world)
	if err != nil {
		return err
	}

	player, err := store.Player(uid)
	if err != nil {
		return fmt.Errorf("server: player %s: %w", uid, err)
	}
	owned, err := store.PortalsInList(player.PListID)
	if err != nil {
		return fmt.Errorf("server: portlist %s: %w", player.PListID, err)
	}
	listpos := 0.0
	for _, p := range owned {
		if p.WID == world.WID && worlddb.ScopeID(p.SID) == newsid && p.LocID == location.LocID {
			return &eval.MessageError{Text: "This portal is already in your collection."}
		}
		if p.ListPos > listpos {
			listpos = p.ListPos
		}
	}

	newportal := &worlddb.Portal{
		PortID:  worlddb.PortalID("port-" + eval.BuildActionKey()),
		PListID: player.PListID,
		WID:     world.WID,
		SID:     string(newsid),
		LocID:   location.LocID,
		ListPos: listpos + 1.0,
	}
	if err := store.CreatePortal(newportal); err != nil {
		return fmt.Errorf("server: create portal: %w", err)
	}

	if desc, err := app.portalDescription(newportal, uid, loctx.IID, true, true); err == nil {
		desc["portid"] = string(newportal.PortID)
		desc["listpos"] = newportal.ListPos
		app.Bus.EmitToPlayer(uid, events.Event{
			Type:   events.EvPortList,
			Player: uid,
			Data:   map[string]any{"map": map[string]any{string(newportal.PortID): desc}},
		})
	}

	conn.Receive(events.Event{Type: events.EvMessage, Player: uid, Text: "You copy the portal to your collection."})
	return nil
}

// performPortal sends the player through a portal: out of the world
// into the void, with a portin scheduled to land them at the resolved
// destination.
func (app *App) performPortal(t *task.Task, conn *PlayerConn, loctx *task.LocContext, portid worlddb.PortalID) error {
	store := app.Store
	uid := conn.uid

	portal, err := store.Portal(portid)
	if err != nil {
		return &eval.CommandError{Text: "Portal not found."}
	}
	if err := app.portalInReach(portal, uid, loctx.WID); err != nil {
		return err
	}
	world, err := store.World(portal.WID)
	if err != nil {
		return &eval.CommandError{Text: "Destination world not found."}
	}
	location, err := store.Location(portal.LocID)
	if err != nil || location.WID != world.WID {
		return &eval.CommandError{Text: "Destination location not found."}
	}
	newsid, err := app.resolvePortalScope(portal, uid, loctx.SID, world)
	if err != nil {
		return err
	}

	player, err := store.Player(uid)
	if err != nil {
		return fmt.Errorf("server: player %s: %w", uid, err)
	}
	others, err := t.FindLocalePlayers(loctx, true)
	if err != nil {
		return err
	}
	if len(others) > 0 {
		// No populace dirty needed; everyone here carries a dependency
		// on this player's locid.
		t.WriteEventMany(others, fmt.Sprintf("%s disappears.", player.Name))
	}
	t.WriteEvent(uid, "The world fades away.")

	ps, err := store.PlayState(uid)
	if err != nil {
		return fmt.Errorf("server: playstate for %s: %w", uid, err)
	}
	ps.IID = ""
	ps.LocID = ""
	ps.Focus = nil
	ps.LastLocID = ""
	ps.LastMoved = t.StartTime
	ps.PortTo = &worlddb.PortDest{WID: world.WID, SID: newsid, LocID: location.LocID}
	if err := store.SetPlayState(ps); err != nil {
		return fmt.Errorf("server: set playstate for %s: %w", uid, err)
	}
	t.SetDirty(uid, task.DirtyFocus|task.DirtyLocale|task.DirtyWorld|task.DirtyPopulace)
	t.SetDataChange(worlddb.PropKey{Store: worlddb.PlayStateField, ID1: string(uid), Name: "iid"})
	t.SetDataChange(worlddb.PropKey{Store: worlddb.PlayStateField, ID1: string(uid), Name: "locid"})
	t.ClearLocContext(uid)

	app.QueueServer("portin", uid, nil, portinDelay)
	return nil
}
