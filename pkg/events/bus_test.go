package events

import (
	"sync"
	"testing"

	"github.com/weaveworld/goweave/pkg/worlddb"
)

// mockSubscriber implements Subscriber for testing.
type mockSubscriber struct {
	mu       sync.Mutex
	events   []Event
	isClosed bool
}

func (m *mockSubscriber) Receive(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockSubscriber) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isClosed
}

func (m *mockSubscriber) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Event, len(m.events))
	copy(cp, m.events)
	return cp
}

func TestBusEmitToPlayer(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}

	player := worlddb.PlayerID("u1")
	bus.Subscribe(player, sub)

	ev := Event{
		Type:   EvEvent,
		Player: player,
		Text:   "You pick up the bottle.",
	}
	bus.Emit(ev)

	events := sub.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Text != "You pick up the bottle." {
		t.Errorf("expected text %q, got %q", "You pick up the bottle.", events[0].Text)
	}
	if events[0].Type != EvEvent {
		t.Errorf("expected type EvEvent, got %v", events[0].Type)
	}
}

func TestBusGlobalSubscriber(t *testing.T) {
	bus := NewBus()
	global := &mockSubscriber{}
	bus.SubscribeGlobal(global)

	player := worlddb.PlayerID("u5")
	ev := Event{Type: EvMessage, Player: player, Text: "test msg"}
	bus.Emit(ev)

	events := global.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 global event, got %d", len(events))
	}
	if events[0].Player != player {
		t.Errorf("expected player %q, got %q", player, events[0].Player)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}
	player := worlddb.PlayerID("u1")

	bus.Subscribe(player, sub)
	bus.Unsubscribe(player, sub)

	bus.Emit(Event{Type: EvEvent, Player: player, Text: "should not arrive"})

	if len(sub.Events()) != 0 {
		t.Error("expected no events after unsubscribe")
	}
}

func TestBusClosedSubscriberSkipped(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{isClosed: true}
	player := worlddb.PlayerID("u1")

	bus.Subscribe(player, sub)
	bus.Emit(Event{Type: EvEvent, Player: player, Text: "no delivery"})

	if len(sub.Events()) != 0 {
		t.Error("closed subscriber should not receive events")
	}
}

func TestBusEmitToMany(t *testing.T) {
	bus := NewBus()
	sub1 := &mockSubscriber{}
	sub2 := &mockSubscriber{}
	p1 := worlddb.PlayerID("u1")
	p2 := worlddb.PlayerID("u2")
	bus.Subscribe(p1, sub1)
	bus.Subscribe(p2, sub2)

	ev := Event{Type: EvEvent, Text: "Someone arrives."}
	bus.EmitToMany([]worlddb.PlayerID{p1, p2}, ev)

	if len(sub1.Events()) != 1 {
		t.Errorf("player 1: expected 1 event, got %d", len(sub1.Events()))
	}
	if len(sub2.Events()) != 1 {
		t.Errorf("player 2: expected 1 event, got %d", len(sub2.Events()))
	}
	if got := sub2.Events()[0].Player; got != p2 {
		t.Errorf("player 2 event addressed to %q", got)
	}
}

func TestBusCleanup(t *testing.T) {
	bus := NewBus()
	active := &mockSubscriber{}
	closed := &mockSubscriber{isClosed: true}
	player := worlddb.PlayerID("u1")

	bus.Subscribe(player, active)
	bus.Subscribe(player, closed)
	bus.SubscribeGlobal(&mockSubscriber{isClosed: true})

	bus.Cleanup()

	if bus.PlayerSubscribers(player) != 1 {
		t.Errorf("expected 1 active subscriber, got %d", bus.PlayerSubscribers(player))
	}
}

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		t    EventType
		want string
	}{
		{EvEvent, "event"},
		{EvMessage, "message"},
		{EvError, "error"},
		{EvUpdate, "update"},
		{EventType(999), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("EventType(%d).String() = %q, want %q", tt.t, got, tt.want)
		}
	}
}
