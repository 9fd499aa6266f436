package server

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/weaveworld/goweave/pkg/eval"
	"github.com/weaveworld/goweave/pkg/events"
	"github.com/weaveworld/goweave/pkg/task"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// commandDef describes one dispatchable command. Commands marked
// writes run on a writable task; commands marked server may not be
// sent by clients.
type commandDef struct {
	writes bool
	server bool
	fn     func(app *App, t *task.Task, entry queued) error
}

var commandTable = map[string]commandDef{
	"say":                {fn: cmdSay},
	"pose":               {fn: cmdPose},
	"refresh":            {fn: cmdRefresh},
	"action":             {writes: true, fn: cmdAction},
	"dropfocus":          {writes: true, fn: cmdDropFocus},
	"selfdesc":           {writes: true, fn: cmdSelfDesc},
	"portstart":          {writes: true, fn: cmdPortStart},
	"plistselect":        {writes: true, fn: cmdPListSelect},
	"setpreferredportal": {fn: cmdSetPreferredPortal},
	"deleteownportal":    {writes: true, fn: cmdDeleteOwnPortal},
	"tovoid":             {writes: true, server: true, fn: cmdToVoid},
	"portin":             {writes: true, server: true, fn: cmdPortIn},
}

func cmdSay(app *App, t *task.Task, entry queued) error {
	uid := entry.uid
	player, err := app.Store.Player(uid)
	if err != nil {
		return fmt.Errorf("server: player %s: %w", uid, err)
	}
	text := entry.msg.Text
	say, says := "say", "says"
	switch {
	case strings.HasSuffix(text, "?"):
		say, says = "ask", "asks"
	case strings.HasSuffix(text, "!"):
		say, says = "exclaim", "exclaims"
	}
	t.WriteEvent(uid, fmt.Sprintf("You %s, “%s”", say, text))
	loctx, err := t.GetLocContext(uid)
	if err != nil {
		return err
	}
	others, err := t.FindLocalePlayers(loctx, true)
	if err != nil {
		return err
	}
	if len(others) > 0 {
		t.WriteEventMany(others, fmt.Sprintf("%s %s, “%s”", player.Name, says, text))
	}
	return nil
}

func cmdPose(app *App, t *task.Task, entry queued) error {
	uid := entry.uid
	player, err := app.Store.Player(uid)
	if err != nil {
		return fmt.Errorf("server: player %s: %w", uid, err)
	}
	loctx, err := t.GetLocContext(uid)
	if err != nil {
		return err
	}
	everyone, err := t.FindLocalePlayers(loctx, false)
	if err != nil {
		return err
	}
	t.WriteEventMany(everyone, fmt.Sprintf("%s %s", player.Name, entry.msg.Text))
	return nil
}

// cmdRefresh re-renders every facet of the player's view. Queued on
// connect and available to clients that lost sync.
func cmdRefresh(app *App, t *task.Task, entry queued) error {
	t.SetDirty(entry.uid, task.DirtyAll)
	return nil
}

func cmdAction(app *App, t *task.Task, entry queued) error {
	conn := entry.conn
	target, ok := conn.FindAction(entry.msg.Action)
	if !ok {
		return &eval.CommandError{Text: "Action is not available."}
	}
	return app.performAction(t, conn, target, entry.msg)
}

func cmdDropFocus(app *App, t *task.Task, entry queued) error {
	return app.setFocus(t, entry.uid, nil)
}

func cmdSelfDesc(app *App, t *task.Task, entry queued) error {
	uid := entry.uid
	player, err := app.Store.Player(uid)
	if err != nil {
		return fmt.Errorf("server: player %s: %w", uid, err)
	}
	if entry.msg.Pronoun != "" {
		switch entry.msg.Pronoun {
		case "he", "she", "it", "they", "name":
		default:
			return &eval.CommandError{Text: fmt.Sprintf("Invalid pronoun: %s", entry.msg.Pronoun)}
		}
		player.Pronoun = worlddb.Pronoun(entry.msg.Pronoun)
		t.SetDataChange(worlddb.PropKey{Store: worlddb.PlayerField, ID1: string(uid), Name: "pronoun"})
	}
	if entry.msg.Desc != "" {
		val := entry.msg.Desc
		if len(val) > MaxDescLineLength {
			val = val[:MaxDescLineLength]
		}
		player.Desc = val
		t.SetDataChange(worlddb.PropKey{Store: worlddb.PlayerField, ID1: string(uid), Name: "desc"})
	}
	return app.Store.SetPlayer(player)
}

// cmdPortStart flings the player back to the start world.
func cmdPortStart(app *App, t *task.Task, entry queued) error {
	uid := entry.uid
	conf := app.Config()
	if conf.StartWorld == "" || conf.StartLocation == "" {
		return &eval.CommandError{Text: "No start world is configured."}
	}
	player, err := app.Store.Player(uid)
	if err != nil {
		return fmt.Errorf("server: player %s: %w", uid, err)
	}
	loc, err := app.Store.LocationByKey(worlddb.WorldID(conf.StartWorld), conf.StartLocation)
	if err != nil {
		return &eval.CommandError{Text: "The start world is missing."}
	}
	app.QueueServer("tovoid", uid, map[string]any{
		"portin": true,
		"portto": map[string]any{
			"wid":   conf.StartWorld,
			"sid":   string(player.SID),
			"locid": string(loc.LocID),
		},
	}, 0)
	return nil
}

// ownPortal looks a portal up in the player's personal collection.
func ownPortal(app *App, uid worlddb.PlayerID, portid string) (*worlddb.Portal, error) {
	player, err := app.Store.Player(uid)
	if err != nil {
		return nil, fmt.Errorf("server: player %s: %w", uid, err)
	}
	portal, err := app.Store.Portal(worlddb.PortalID(portid))
	if err != nil || portal.PListID != player.PListID {
		return nil, &eval.CommandError{Text: "No such portal in your collection."}
	}
	return portal, nil
}

func cmdPListSelect(app *App, t *task.Task, entry queued) error {
	portal, err := ownPortal(app, entry.uid, entry.msg.Val)
	if err != nil {
		return err
	}
	return app.setFocus(t, entry.uid, []any{"portal", string(portal.PortID), nil, nil})
}

func cmdSetPreferredPortal(app *App, t *task.Task, entry queued) error {
	uid := entry.uid
	portal, err := ownPortal(app, uid, entry.msg.Val)
	if err != nil {
		return err
	}
	owned, err := app.Store.PortalsInList(portal.PListID)
	if err != nil {
		return fmt.Errorf("server: portlist %s: %w", portal.PListID, err)
	}
	for _, p := range owned {
		if p.Preferred {
			p.Preferred = false
			if err := app.Store.SetPortal(p); err != nil {
				return err
			}
		}
	}
	portal.Preferred = true
	if err := app.Store.SetPortal(portal); err != nil {
		return err
	}
	loctx, err := t.GetLocContext(uid)
	if err != nil {
		return err
	}
	desc, err := app.portalDescription(portal, uid, loctx.IID, true, false)
	if err != nil {
		return err
	}
	return &eval.MessageError{Text: fmt.Sprintf("Panic portal set to %s, %s.", desc["world"], desc["location"])}
}

func cmdDeleteOwnPortal(app *App, t *task.Task, entry queued) error {
	uid := entry.uid
	portal, err := ownPortal(app, uid, entry.msg.Val)
	if err != nil {
		return err
	}
	if err := app.Store.DeletePortal(portal.PortID); err != nil {
		return fmt.Errorf("server: delete portal %s: %w", portal.PortID, err)
	}
	entry.conn.Receive(events.Event{Type: events.EvPortList, Player: uid,
		Data: map[string]any{"map": map[string]any{string(portal.PortID): false}}})
	entry.conn.Receive(events.Event{Type: events.EvMessage, Player: uid,
		Text: "You remove the portal from your collection."})
	return app.setFocus(t, uid, nil)
}

// cmdToVoid moves a player out of the world. If the queued data asks
// for a portin, one is scheduled after the customary beat.
func cmdToVoid(app *App, t *task.Task, entry queued) error {
	uid := entry.uid
	store := app.Store

	t.WriteEvent(uid, "The world fades away.")
	loctx, err := t.GetLocContext(uid)
	if err != nil {
		return err
	}
	if loctx.IID != "" {
		others, err := t.FindLocalePlayers(loctx, true)
		if err != nil {
			return err
		}
		if len(others) > 0 {
			player, err := store.Player(uid)
			if err != nil {
				return err
			}
			t.WriteEventMany(others, fmt.Sprintf("%s disappears.", player.Name))
		}
	}

	ps, err := store.PlayState(uid)
	if err != nil {
		return fmt.Errorf("server: playstate for %s: %w", uid, err)
	}
	ps.IID = ""
	ps.LocID = ""
	ps.Focus = nil
	ps.LastLocID = ""
	ps.LastMoved = t.StartTime
	ps.PortTo = portDestFromData(entry.data)
	if err := store.SetPlayState(ps); err != nil {
		return fmt.Errorf("server: set playstate for %s: %w", uid, err)
	}
	t.SetDirty(uid, task.DirtyFocus|task.DirtyLocale|task.DirtyWorld|task.DirtyPopulace)
	t.SetDataChange(worlddb.PropKey{Store: worlddb.PlayStateField, ID1: string(uid), Name: "iid"})
	t.SetDataChange(worlddb.PropKey{Store: worlddb.PlayStateField, ID1: string(uid), Name: "locid"})
	t.ClearLocContext(uid)

	if wantsPortin(entry.data) {
		app.QueueServer("portin", uid, nil, portinDelay)
	}
	return nil
}

// cmdPortIn lands a voidbound player at their destination: the pending
// portto if set, else their preferred portal, else the start world.
// This is the one and only place where instances are created.
func cmdPortIn(app *App, t *task.Task, entry queued) error {
	uid := entry.uid
	store := app.Store

	player, err := store.Player(uid)
	if err != nil {
		return &eval.CommandError{Text: fmt.Sprintf("Portin: no such player: %s", uid)}
	}
	ps, err := store.PlayState(uid)
	if err != nil {
		return &eval.CommandError{Text: fmt.Sprintf("Portin: no such player: %s", uid)}
	}
	if ps.IID != "" && ps.LocID != "" {
		log.Printf("server: player %s is already in the world", player.Name)
		return nil
	}

	var dest worlddb.PortDest
	switch {
	case ps.PortTo != nil:
		dest = *ps.PortTo
	default:
		dest, err = app.fallbackDest(player)
		if err != nil {
			return err
		}
	}

	instance, err := store.InstanceForScope(dest.WID, dest.SID)
	if err != nil {
		instance = &worlddb.Instance{
			IID: worlddb.InstanceID("inst-" + uuid.NewString()),
			WID: dest.WID,
			SID: dest.SID,
		}
		if err := store.CreateInstance(instance); err != nil {
			return fmt.Errorf("server: create instance: %w", err)
		}
		log.Printf("server: created instance %s (world %s, scope %s)", instance.IID, dest.WID, dest.SID)
		app.runInstanceHook(t, instance, "on_init")
	}

	ps.IID = instance.IID
	ps.LocID = dest.LocID
	ps.Focus = nil
	ps.LastLocID = ""
	ps.LastMoved = t.StartTime
	ps.PortTo = nil
	if err := store.SetPlayState(ps); err != nil {
		return fmt.Errorf("server: set playstate for %s: %w", uid, err)
	}
	t.SetDirty(uid, task.DirtyFocus|task.DirtyLocale|task.DirtyWorld|task.DirtyPopulace)
	t.SetDataChange(worlddb.PropKey{Store: worlddb.PlayStateField, ID1: string(uid), Name: "iid"})
	t.SetDataChange(worlddb.PropKey{Store: worlddb.PlayStateField, ID1: string(uid), Name: "locid"})
	t.ClearLocContext(uid)

	loctx, err := t.GetLocContext(uid)
	if err != nil {
		return err
	}
	others, err := t.FindLocalePlayers(loctx, true)
	if err != nil {
		return err
	}
	if len(others) > 0 {
		t.SetDirtyMany(others, task.DirtyPopulace)
		t.WriteEventMany(others, fmt.Sprintf("%s appears.", player.Name))
	}
	t.WriteEvent(uid, "You are somewhere new.")
	return nil
}

// fallbackDest picks where a player with no pending destination lands:
// the preferred portal of their collection, or the start world.
func (app *App) fallbackDest(player *worlddb.Player) (worlddb.PortDest, error) {
	conf := app.Config()
	owned, err := app.Store.PortalsInList(player.PListID)
	if err == nil {
		for _, p := range owned {
			if p.Preferred {
				sid, err := app.resolvePortalScope(p, player.UID, player.SID, mustWorld(app.Store, p.WID))
				if err == nil {
					return worlddb.PortDest{WID: p.WID, SID: sid, LocID: p.LocID}, nil
				}
			}
		}
	}
	if conf.StartWorld == "" || conf.StartLocation == "" {
		return worlddb.PortDest{}, &eval.CommandError{Text: "No start world is configured."}
	}
	loc, err := app.Store.LocationByKey(worlddb.WorldID(conf.StartWorld), conf.StartLocation)
	if err != nil {
		return worlddb.PortDest{}, &eval.CommandError{Text: "The start world is missing."}
	}
	return worlddb.PortDest{WID: worlddb.WorldID(conf.StartWorld), SID: player.SID, LocID: loc.LocID}, nil
}

// runInstanceHook executes a named code property of a fresh instance.
// Hook failures are logged, never fatal.
func (app *App) runInstanceHook(t *task.Task, instance *worlddb.Instance, hook string) {
	loctx := &task.LocContext{WID: instance.WID, SID: instance.SID, IID: instance.IID}
	ctx := eval.NewContext(t, loctx, eval.LevelExecute)
	if _, err := ctx.Eval(hook, eval.TypeSymbol); err != nil && !errors.Is(err, eval.ErrSymbolNotFound) {
		log.Printf("server: caught exception (initing instance): %v", err)
	}
}

func portDestFromData(data map[string]any) *worlddb.PortDest {
	portto, ok := data["portto"].(map[string]any)
	if !ok {
		return nil
	}
	wid, _ := portto["wid"].(string)
	sid, _ := portto["sid"].(string)
	locid, _ := portto["locid"].(string)
	if wid == "" || locid == "" {
		return nil
	}
	return &worlddb.PortDest{WID: worlddb.WorldID(wid), SID: worlddb.ScopeID(sid), LocID: worlddb.LocID(locid)}
}

func wantsPortin(data map[string]any) bool {
	want, _ := data["portin"].(bool)
	return want
}

func mustWorld(store worlddb.WorldStore, wid worlddb.WorldID) *worlddb.World {
	w, err := store.World(wid)
	if err != nil {
		return &worlddb.World{WID: wid}
	}
	return w
}
