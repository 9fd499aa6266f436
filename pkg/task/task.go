// Package task wraps the execution of one queued command: the tick
// budget, the write-permission flag, the per-task property cache, the
// changeset of written keys, and the dirty-bit propagation that decides
// which connections get a refreshed view afterward.
package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/weaveworld/goweave/pkg/events"
	"github.com/weaveworld/goweave/pkg/propcache"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// ErrRunaway is returned by Tick when the instruction budget runs out.
var ErrRunaway = errors.New("task: script ran too long; aborting")

// ErrNotWritable is returned when script code tries to change the world
// during a read-only command.
var ErrNotWritable = errors.New("task: world may not be changed by this command")

const (
	// DefaultTickLimit bounds node visits across the whole context
	// stack of one command.
	DefaultTickLimit = 10000
	// DefaultStackLimit bounds nested text/code re-entrance.
	DefaultStackLimit = 32
)

// DirtyBits flags the view facets of one connection that must be
// re-rendered before the next flush.
type DirtyBits int

const (
	DirtyWorld DirtyBits = 1 << iota
	DirtyLocale
	DirtyFocus
	DirtyPopulace
	DirtyTool

	DirtyAll = DirtyWorld | DirtyLocale | DirtyFocus | DirtyPopulace | DirtyTool
)

// Command is a follow-up command queued by script execution (a panic
// record queues the "tovoid" relocation, for example). The server
// drains these after the task resolves.
type Command struct {
	Cmd  string
	UID  worlddb.PlayerID
	Data map[string]any
}

// Task is one command's execution context. It is created when the
// command is dequeued and closed after resolution; nothing in it
// survives across commands.
type Task struct {
	store worlddb.WorldStore
	cache *propcache.Cache
	bus   *events.Bus

	// StartTime is when work on the command began; moves stamp it
	// into playstate.lastmoved.
	StartTime time.Time

	TickLimit  int
	StackLimit int

	ticks    int
	writable bool

	changeset worlddb.KeySet
	dirty     map[worlddb.PlayerID]DirtyBits
	loctxs    map[worlddb.PlayerID]*LocContext
	commands  []Command

	// Procedural text state: one counter and parameter map per task,
	// so repeated renders within a command stay coherent.
	gencount  int
	genparams map[string]any
}

// New creates a task over a store and an event bus. The task starts
// non-writable; the command dispatcher promotes it for commands flagged
// as state-mutating.
func New(store worlddb.WorldStore, bus *events.Bus) *Task {
	return &Task{
		store:      store,
		cache:      propcache.New(store),
		bus:        bus,
		StartTime:  time.Now(),
		TickLimit:  DefaultTickLimit,
		StackLimit: DefaultStackLimit,
		changeset:  worlddb.NewKeySet(),
		dirty:      map[worlddb.PlayerID]DirtyBits{},
		loctxs:     map[worlddb.PlayerID]*LocContext{},
		genparams:  map[string]any{},
	}
}

// Store returns the backing world store.
func (t *Task) Store() worlddb.WorldStore { return t.store }

// Cache returns the per-task property cache.
func (t *Task) Cache() *propcache.Cache { return t.cache }

// Tick consumes one instruction tick. Every evaluator node visit calls
// this; the budget is shared by the whole context stack.
func (t *Task) Tick() error {
	t.ticks++
	if t.ticks > t.TickLimit {
		return fmt.Errorf("%w (limit %d)", ErrRunaway, t.TickLimit)
	}
	return nil
}

// Ticks returns the ticks consumed so far.
func (t *Task) Ticks() int { return t.ticks }

// SetWritable promotes the task to write-permitted.
func (t *Task) SetWritable() { t.writable = true }

// Writable reports whether world mutation is permitted.
func (t *Task) Writable() bool { return t.writable }

// SetDataChange records a written key into the changeset.
func (t *Task) SetDataChange(key worlddb.PropKey) {
	t.changeset.Add(key)
}

// Changeset returns the keys written so far.
func (t *Task) Changeset() worlddb.KeySet { return t.changeset }

// SetDirty ORs facet bits into one player's dirty mask.
func (t *Task) SetDirty(uid worlddb.PlayerID, bits DirtyBits) {
	t.dirty[uid] |= bits
}

// SetDirtyMany ORs facet bits for several players at once.
func (t *Task) SetDirtyMany(uids []worlddb.PlayerID, bits DirtyBits) {
	for _, uid := range uids {
		t.dirty[uid] |= bits
	}
}

// DirtyFor returns the explicit dirty mask of one player.
func (t *Task) DirtyFor(uid worlddb.PlayerID) DirtyBits {
	return t.dirty[uid]
}

// WriteEvent sends a narrative event line to one player.
func (t *Task) WriteEvent(uid worlddb.PlayerID, text string) {
	if t.bus != nil {
		t.bus.EmitToPlayer(uid, events.Event{Type: events.EvEvent, Text: text})
	}
}

// WriteEventMany sends a narrative event line to several players.
func (t *Task) WriteEventMany(uids []worlddb.PlayerID, text string) {
	if t.bus != nil {
		t.bus.EmitToMany(uids, events.Event{Type: events.EvEvent, Text: text})
	}
}

// QueueCommand schedules a follow-up command to run after this task.
func (t *Task) QueueCommand(cmd Command) {
	t.commands = append(t.commands, cmd)
}

// DrainCommands returns and clears the queued follow-up commands.
func (t *Task) DrainCommands() []Command {
	cmds := t.commands
	t.commands = nil
	return cmds
}

// NextGenCount returns an increasing counter for procedural text
// generation within this task.
func (t *Task) NextGenCount() int {
	n := t.gencount
	t.gencount++
	return n
}

// GenParams returns the procedural text parameter map of this task.
func (t *Task) GenParams() map[string]any { return t.genparams }

// FindLocalePlayers lists the players at the context's location,
// optionally excluding the acting player.
func (t *Task) FindLocalePlayers(loctx *LocContext, notself bool) ([]worlddb.PlayerID, error) {
	if loctx.IID == "" || loctx.LocID == "" {
		return nil, nil
	}
	uids, err := t.store.PlayersInLocation(loctx.IID, loctx.LocID)
	if err != nil {
		return nil, fmt.Errorf("task: players in location: %w", err)
	}
	if !notself {
		return uids, nil
	}
	out := uids[:0]
	for _, uid := range uids {
		if uid != loctx.UID {
			out = append(out, uid)
		}
	}
	return out, nil
}
