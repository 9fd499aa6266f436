package events

import (
	"sync"

	"github.com/weaveworld/goweave/pkg/worlddb"
)

// Subscriber receives events from the bus.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// Bus is a per-player pub/sub event bus with support for global
// subscribers. Game code emits structured events; each subscriber
// (player connection, journal writer, logger) encodes them
// per-transport.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[worlddb.PlayerID][]Subscriber
	global      []Subscriber
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[worlddb.PlayerID][]Subscriber),
	}
}

// Subscribe registers a subscriber for one player's events.
func (b *Bus) Subscribe(player worlddb.PlayerID, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[player] = append(b.subscribers[player], sub)
}

// Unsubscribe removes a subscriber for one player.
func (b *Bus) Unsubscribe(player worlddb.PlayerID, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[player]
	for i, s := range subs {
		if s == sub {
			b.subscribers[player] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[player]) == 0 {
		delete(b.subscribers, player)
	}
}

// SubscribeGlobal registers a subscriber that receives all events.
func (b *Bus) SubscribeGlobal(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, sub)
}

// Emit sends an event to the player named in ev.Player and to all
// global subscribers.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	subs := b.subscribers[ev.Player]
	globals := b.global
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
	for _, s := range globals {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// EmitToPlayer sends an event to one player (overriding ev.Player).
func (b *Bus) EmitToPlayer(player worlddb.PlayerID, ev Event) {
	ev.Player = player
	b.Emit(ev)
}

// EmitToMany sends a copy of the event to each listed player. Used for
// locale-wide messages; the caller resolves occupancy.
func (b *Bus) EmitToMany(players []worlddb.PlayerID, ev Event) {
	for _, uid := range players {
		playerEv := ev
		playerEv.Player = uid
		b.Emit(playerEv)
	}
}

// PlayerSubscribers returns the number of subscribers for a player.
func (b *Bus) PlayerSubscribers(player worlddb.PlayerID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[player])
}

// Cleanup removes closed subscribers from all lists.
func (b *Bus) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for player, subs := range b.subscribers {
		var active []Subscriber
		for _, s := range subs {
			if !s.Closed() {
				active = append(active, s)
			}
		}
		if len(active) == 0 {
			delete(b.subscribers, player)
		} else {
			b.subscribers[player] = active
		}
	}

	var activeGlobal []Subscriber
	for _, s := range b.global {
		if !s.Closed() {
			activeGlobal = append(activeGlobal, s)
		}
	}
	b.global = activeGlobal
}
