package server

import (
	"fmt"
	"log"
	"sort"

	"github.com/weaveworld/goweave/pkg/eval"
	"github.com/weaveworld/goweave/pkg/events"
	"github.com/weaveworld/goweave/pkg/task"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// generateUpdate builds the update message for one connection,
// re-rendering exactly the dirty facets and rebuilding their action
// maps and dependency sets.
func (app *App) generateUpdate(t *task.Task, conn *PlayerConn, dirty task.DirtyBits) error {
	if dirty == 0 {
		return nil
	}
	store := app.Store
	uid := conn.uid
	msg := map[string]any{}

	// Don't use the task's cached loctx; the player may have moved
	// during this very command.
	ps, err := store.PlayState(uid)
	if err != nil {
		return fmt.Errorf("server: playstate for %s: %w", uid, err)
	}

	if ps.IID == "" {
		// In the void between instances.
		msg["world"] = map[string]any{"world": "(In transition)", "scope": " ", "creator": "..."}
		msg["focus"] = false
		msg["populace"] = false
		msg["locale"] = map[string]any{"desc": "..."}
		conn.Receive(events.Event{Type: events.EvUpdate, Player: uid, Data: msg})
		return nil
	}

	instance, err := store.Instance(ps.IID)
	if err != nil {
		return fmt.Errorf("server: instance %s: %w", ps.IID, err)
	}
	loctx := &task.LocContext{UID: uid, WID: instance.WID, SID: instance.SID, IID: ps.IID, LocID: ps.LocID}

	if dirty&task.DirtyWorld != 0 {
		world, err := store.World(instance.WID)
		if err != nil {
			return fmt.Errorf("server: world %s: %w", instance.WID, err)
		}
		scope, err := store.Scope(instance.SID)
		if err != nil {
			return fmt.Errorf("server: scope %s: %w", instance.SID, err)
		}
		creatorname := world.CreatorName
		if creator, err := store.Player(world.Creator); err == nil {
			creatorname = creator.Name
		}
		msg["world"] = map[string]any{
			"world":   world.Name,
			"scope":   app.scopeLabel(scope, uid),
			"creator": "Created by " + creatorname,
		}
	}

	if dirty&task.DirtyLocale != 0 {
		conn.localeActions = map[string]any{}
		conn.localeDeps = worlddb.NewKeySet()

		ctx := eval.NewContext(t, loctx, eval.LevelDisplay)
		localedesc, err := ctx.Eval("desc", eval.TypeSymbol)
		if err != nil {
			return fmt.Errorf("server: locale desc: %w", err)
		}
		for key, target := range ctx.LinkTargets() {
			conn.localeActions[key] = target
		}
		conn.localeDeps.Merge(ctx.Dependencies())

		locname := "[Location not found]"
		if loc, err := store.Location(ps.LocID); err == nil && loc.WID == instance.WID {
			locname = loc.Name
		}
		msg["locale"] = map[string]any{"name": locname, "desc": localedesc}
	}

	if dirty&task.DirtyPopulace != 0 {
		conn.populaceActions = map[string]any{}
		conn.populaceDeps = worlddb.NewKeySet()

		desc, err := app.renderPopulace(conn, ps.IID, ps.LocID)
		if err != nil {
			return err
		}
		msg["populace"] = desc
	}

	if dirty&task.DirtyFocus != 0 {
		conn.focusActions = map[string]any{}
		conn.focusDeps = worlddb.NewKeySet()

		focusdesc, special, err := app.renderFocus(t, loctx, conn, ps.Focus)
		if err != nil {
			return err
		}
		msg["focus"] = focusdesc
		if special {
			msg["focusspecial"] = true
		}
	}

	conn.Receive(events.Event{Type: events.EvUpdate, Player: uid, Data: msg})
	return nil
}

// renderPopulace lists the other players in the room as a description
// array of linked names, oldest arrival first. false when alone.
func (app *App) renderPopulace(conn *PlayerConn, iid worlddb.InstanceID, locid worlddb.LocID) (any, error) {
	store := app.Store
	uids, err := store.PlayersInLocation(iid, locid)
	if err != nil {
		return nil, fmt.Errorf("server: populace of %s/%s: %w", iid, locid, err)
	}

	type bystander struct {
		ps    *worlddb.PlayState
		name  string
		ackey string
	}
	var people []bystander
	for _, ouid := range uids {
		if ouid == conn.uid {
			continue
		}
		ops, err := store.PlayState(ouid)
		if err != nil {
			continue
		}
		oplayer, err := store.Player(ouid)
		name := "???"
		if err == nil {
			name = oplayer.Name
		}
		ackey := "play" + eval.BuildActionKey()
		conn.populaceActions[ackey] = &eval.PlayerTarget{UID: ouid}
		conn.populaceDeps.Add(worlddb.PropKey{Store: worlddb.PlayStateField, ID1: string(ouid), Name: "locid"})
		people = append(people, bystander{ps: ops, name: name, ackey: ackey})
	}

	if len(people) == 0 {
		return false, nil
	}
	sort.SliceStable(people, func(i, j int) bool {
		return people[i].ps.LastMoved.Before(people[j].ps.LastMoved)
	})

	desc := []any{"You see "}
	for pos, other := range people {
		if pos > 0 {
			switch {
			case len(people) == 2:
				desc = append(desc, " and ")
			case pos >= len(people)-1:
				desc = append(desc, ", and ")
			default:
				desc = append(desc, ", ")
			}
		}
		desc = append(desc, []any{"link", other.ackey}, other.name, []any{"/link"})
	}
	desc = append(desc, " here.")
	return desc, nil
}

// renderFocus produces the focus facet. The second result marks the
// structured focus objects (selfdesc, editstr, portal) that the client
// renders as widgets rather than prose.
func (app *App) renderFocus(t *task.Task, loctx *task.LocContext, conn *PlayerConn, focusobj any) (any, bool, error) {
	if focusobj == nil {
		return false, false, nil
	}
	store := app.Store

	if arr, ok := focusobj.([]any); ok && len(arr) > 0 {
		switch arr[0] {
		case "player":
			ouid, _ := arr[1].(string)
			player, err := store.Player(worlddb.PlayerID(ouid))
			if err != nil {
				return "There is no such person.", false, nil
			}
			conn.focusDeps.Add(worlddb.PropKey{Store: worlddb.PlayerField, ID1: ouid, Name: "name"})
			conn.focusDeps.Add(worlddb.PropKey{Store: worlddb.PlayerField, ID1: ouid, Name: "desc"})
			return fmt.Sprintf("%s is %s", player.Name, player.Desc), false, nil
		case "portal":
			portid, _ := arr[1].(string)
			var backto any
			if len(arr) >= 3 {
				backto = arr[2]
			}
			portal, err := store.Portal(worlddb.PortalID(portid))
			if err != nil {
				return "The portal is gone.", false, nil
			}
			desc, err := app.portalDescription(portal, loctx.UID, loctx.IID, true, false)
			if err != nil {
				log.Printf("server: portal description failed: %v", err)
				return "The portal is dark.", false, nil
			}
			enterkey := "port" + eval.BuildActionKey()
			conn.focusActions[enterkey] = &eval.PortalTarget{PortID: portal.PortID}
			desc["enteraction"] = enterkey
			if desc["copyable"] == true {
				copykey := "copy" + eval.BuildActionKey()
				conn.focusActions[copykey] = &eval.CopyPortalTarget{PortID: portal.PortID}
				desc["copyaction"] = copykey
			}
			return []any{"portal", portid, desc, backto}, true, nil
		case "portlist":
			plistid, _ := arr[1].(string)
			res, err := app.renderPortList(conn, loctx, arr, worlddb.PortListID(plistid))
			if err != nil {
				return nil, false, err
			}
			return res, true, nil
		default:
			return fmt.Sprintf("[Focus: %v]", focusobj), false, nil
		}
	}

	ctx := eval.NewContext(t, loctx, eval.LevelDispSpecial)
	focusdesc, err := ctx.Eval(focusobj, eval.TypeSymbol)
	if err != nil {
		return nil, false, fmt.Errorf("server: focus: %w", err)
	}
	for key, target := range ctx.LinkTargets() {
		conn.focusActions[key] = target
	}
	conn.focusDeps.Merge(ctx.Dependencies())
	return focusdesc, ctx.WasSpecial(), nil
}

// renderPortList produces the focus array for a portlist widget. The
// arr argument is the stored focus value, shaped
// ["portlist", plistid, editable, extratext, withback, focusport].
// Each entry gets a select action that refocuses on that portal.
func (app *App) renderPortList(conn *PlayerConn, loctx *task.LocContext, arr []any, plistid worlddb.PortListID) (any, error) {
	var editable, withback bool
	var extratext, focusport any
	if len(arr) >= 3 {
		editable, _ = arr[2].(bool)
	}
	if len(arr) >= 4 {
		extratext = arr[3]
	}
	if len(arr) >= 5 {
		withback, _ = arr[4].(bool)
	}
	if len(arr) >= 6 {
		focusport = arr[5]
	}

	portals, err := app.Store.PortalsInList(plistid)
	if err != nil {
		return nil, fmt.Errorf("server: portlist %s: %w", plistid, err)
	}

	entries := []any{}
	for _, portal := range portals {
		desc, err := app.portalDescription(portal, loctx.UID, loctx.IID, true, true)
		if err != nil {
			log.Printf("server: portlist entry %s: %v", portal.PortID, err)
			continue
		}
		desc["portid"] = string(portal.PortID)
		desc["listpos"] = portal.ListPos
		selkey := "plist" + eval.BuildActionKey()
		conn.focusActions[selkey] = &eval.FocusTarget{Obj: []any{"portal", string(portal.PortID), arr}}
		desc["selectaction"] = selkey
		entries = append(entries, desc)
	}

	return []any{"portlist", string(plistid), editable, extratext, withback, focusport, entries}, nil
}

// scopeLabel is the parenthesized scope line of the world facet.
func (app *App) scopeLabel(scope *worlddb.Scope, uid worlddb.PlayerID) string {
	switch scope.Type {
	case worlddb.ScopeGlobal:
		return "(Global instance)"
	case worlddb.ScopePersonal:
		if scope.UID == uid {
			return "(Personal instance)"
		}
		name := "???"
		if owner, err := app.Store.Player(scope.UID); err == nil {
			name = owner.Name
		}
		return fmt.Sprintf("(Personal instance: %s)", name)
	case worlddb.ScopeGroup:
		return fmt.Sprintf("(Group: %s)", scope.Group)
	default:
		return "???"
	}
}

// portalDescription describes a portal in human-readable strings for
// the focus widget and the portlist. withLocation includes the
// destination room name; short uses the compact scope label.
func (app *App) portalDescription(portal *worlddb.Portal, uid worlddb.PlayerID, iid worlddb.InstanceID, withLocation, short bool) (map[string]any, error) {
	store := app.Store
	world, err := store.World(portal.WID)
	if err != nil {
		return nil, fmt.Errorf("server: portal world %s: %w", portal.WID, err)
	}
	creatorname := "???"
	if creator, err := store.Player(world.Creator); err == nil {
		creatorname = creator.Name
	} else if world.CreatorName != "" {
		creatorname = world.CreatorName
	}

	sid, err := app.describedScope(portal, uid, iid, world)
	if err != nil {
		return nil, err
	}
	scope, err := store.Scope(sid)
	if err != nil {
		return nil, fmt.Errorf("server: portal scope %s: %w", sid, err)
	}

	var scopename string
	switch {
	case scope.Type == worlddb.ScopeGlobal:
		scopename = pick(short, "global", "Global instance")
	case scope.Type == worlddb.ScopePersonal && scope.UID == uid:
		scopename = pick(short, "personal", "Personal instance")
	case scope.Type == worlddb.ScopePersonal:
		name := "???"
		if owner, err := store.Player(scope.UID); err == nil {
			name = owner.Name
		}
		scopename = fmt.Sprintf(pick(short, "personal: %s", "Personal instance: %s"), name)
	case scope.Type == worlddb.ScopeGroup:
		scopename = fmt.Sprintf(pick(short, "group: %s", "Group instance: %s"), scope.Group)
	default:
		scopename = "???"
	}

	desc := map[string]any{"world": world.Name, "scope": scopename, "creator": creatorname}
	if world.Copyable {
		desc["copyable"] = true
	}
	if portal.Preferred {
		desc["preferred"] = true
	}
	if withLocation {
		locname := "???"
		if loc, err := store.Location(portal.LocID); err == nil {
			locname = loc.Name
		}
		desc["location"] = locname
	}
	return desc, nil
}

// describedScope resolves the scope a portal would send this player
// to, for description purposes. Parallel to resolvePortalScope but
// reads the player's current instance rather than requiring a loctx.
func (app *App) describedScope(portal *worlddb.Portal, uid worlddb.PlayerID, iid worlddb.InstanceID, world *worlddb.World) (worlddb.ScopeID, error) {
	store := app.Store
	reqsid := portal.SID
	switch world.Instancing {
	case worlddb.InstancingSolo:
		reqsid = "personal"
	case worlddb.InstancingShared:
		reqsid = "global"
	}
	switch reqsid {
	case "personal":
		player, err := store.Player(uid)
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
		if iid == "" {
			return "", &eval.CommandError{Text: "You are between worlds."}
		}
		instance, err := store.Instance(iid)
		if err != nil {
			return "", fmt.Errorf("server: instance %s: %w", iid, err)
		}
		return instance.SID, nil
	default:
		return worlddb.ScopeID(reqsid), nil
	}
}

func pick(short bool, s, long string) string {
	if short {
		return s
	}
	return long
}
