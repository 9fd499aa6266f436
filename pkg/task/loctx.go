package task

import (
	"fmt"

	"github.com/weaveworld/goweave/pkg/worlddb"
)

// LocContext is the identity and position of the player at the center
// of an evaluation: who, which world, which scope, which instance,
// which location. IID and LocID may be empty for a player who is not
// in the world (in the void between instances).
type LocContext struct {
	UID   worlddb.PlayerID
	WID   worlddb.WorldID
	SID   worlddb.ScopeID
	IID   worlddb.InstanceID
	LocID worlddb.LocID
}

// GetLocContext resolves a player's current location context from
// playstate and instance documents. Resolved contexts are cached for
// the task's lifetime; a move clears the cached entry.
func (t *Task) GetLocContext(uid worlddb.PlayerID) (*LocContext, error) {
	if loctx, ok := t.loctxs[uid]; ok {
		return loctx, nil
	}
	ps, err := t.store.PlayState(uid)
	if err != nil {
		return nil, fmt.Errorf("task: playstate for %s: %w", uid, err)
	}
	loctx := &LocContext{UID: uid, LocID: ps.LocID}
	if ps.IID != "" {
		inst, err := t.store.Instance(ps.IID)
		if err != nil {
			return nil, fmt.Errorf("task: instance %s: %w", ps.IID, err)
		}
		loctx.IID = inst.IID
		loctx.WID = inst.WID
		loctx.SID = inst.SID
	}
	t.loctxs[uid] = loctx
	return loctx, nil
}

// ClearLocContext drops a cached location context after a move.
func (t *Task) ClearLocContext(uid worlddb.PlayerID) {
	delete(t.loctxs, uid)
}
