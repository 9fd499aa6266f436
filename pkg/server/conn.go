package server

import (
	"sync"

	"github.com/weaveworld/goweave/pkg/events"
	"github.com/weaveworld/goweave/pkg/task"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// PlayerConn is one live client connection. It remembers, per rendered
// facet, which property keys the last render depended on and which
// action keys it handed to the client. The task layer consults the
// dependency sets to decide what to re-render; the action maps are the
// only targets a client may trigger.
//
// All fields past the transport are owned by the command loop; no lock
// is needed for them. The write path is guarded by the transport.
type PlayerConn struct {
	id  int
	uid worlddb.PlayerID

	// send pushes one event to the client. Set by the transport.
	send func(ev events.Event)

	localeDeps   worlddb.KeySet
	focusDeps    worlddb.KeySet
	populaceDeps worlddb.KeySet

	localeActions   map[string]any
	focusActions    map[string]any
	populaceActions map[string]any

	mu     sync.Mutex
	closed bool
}

// NewPlayerConn creates a connection for a player. send is called for
// every event addressed to the connection, from the command loop and
// from the bus.
func NewPlayerConn(id int, uid worlddb.PlayerID, send func(ev events.Event)) *PlayerConn {
	return &PlayerConn{
		id:              id,
		uid:             uid,
		send:            send,
		localeDeps:      worlddb.NewKeySet(),
		focusDeps:       worlddb.NewKeySet(),
		populaceDeps:    worlddb.NewKeySet(),
		localeActions:   map[string]any{},
		focusActions:    map[string]any{},
		populaceActions: map[string]any{},
	}
}

// ID returns the connection's serial number.
func (c *PlayerConn) ID() int { return c.id }

// UID implements task.Conn.
func (c *PlayerConn) UID() worlddb.PlayerID { return c.uid }

// FacetDeps implements task.Conn.
func (c *PlayerConn) FacetDeps(f task.Facet) worlddb.KeySet {
	switch f {
	case task.FacetLocale:
		return c.localeDeps
	case task.FacetFocus:
		return c.focusDeps
	case task.FacetPopulace:
		return c.populaceDeps
	default:
		// The world facet is refreshed only by explicit dirty bits.
		return nil
	}
}

// FindAction looks an action key up across the three action maps.
// Only keys from the most recent renders are present, so a stale
// client click simply misses.
func (c *PlayerConn) FindAction(key string) (any, bool) {
	if target, ok := c.localeActions[key]; ok {
		return target, true
	}
	if target, ok := c.focusActions[key]; ok {
		return target, true
	}
	if target, ok := c.populaceActions[key]; ok {
		return target, true
	}
	return nil, false
}

// Receive implements events.Subscriber.
func (c *PlayerConn) Receive(ev events.Event) {
	c.send(ev)
}

// Closed implements events.Subscriber.
func (c *PlayerConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close marks the connection dead so the bus stops delivering to it.
func (c *PlayerConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// connTable tracks the live connections. The command loop iterates it
// at resolve time; transports add and remove entries.
type connTable struct {
	mu     sync.Mutex
	nextID int
	conns  map[int]*PlayerConn
}

func newConnTable() *connTable {
	return &connTable{conns: map[int]*PlayerConn{}}
}

// NextID allocates a connection serial number.
func (ct *connTable) NextID() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.nextID++
	return ct.nextID
}

func (ct *connTable) Add(c *PlayerConn) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.conns[c.id] = c
}

func (ct *connTable) Remove(c *PlayerConn) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	delete(ct.conns, c.id)
}

// All snapshots the live connections.
func (ct *connTable) All() []*PlayerConn {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	out := make([]*PlayerConn, 0, len(ct.conns))
	for _, c := range ct.conns {
		out = append(out, c)
	}
	return out
}

// ForUID snapshots the connections of one player. A player may be
// connected from several clients at once.
func (ct *connTable) ForUID(uid worlddb.PlayerID) []*PlayerConn {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	var out []*PlayerConn
	for _, c := range ct.conns {
		if c.uid == uid {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the number of live connections.
func (ct *connTable) Count() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.conns)
}
