package task

import (
	"errors"
	"testing"

	"github.com/weaveworld/goweave/pkg/events"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

type fakeConn struct {
	uid      worlddb.PlayerID
	deps     map[Facet]worlddb.KeySet
	rendered []DirtyBits
}

func (c *fakeConn) UID() worlddb.PlayerID { return c.uid }

func (c *fakeConn) FacetDeps(f Facet) worlddb.KeySet {
	return c.deps[f]
}

func seedTask(t *testing.T) (*Task, *worlddb.MemStore) {
	t.Helper()
	store := worlddb.NewMemStore()
	store.AddWorld(&worlddb.World{WID: "w1", Name: "Testworld"})
	store.AddScope(&worlddb.Scope{SID: "s1", Type: worlddb.ScopeGlobal})
	store.AddInstance(&worlddb.Instance{IID: "i1", WID: "w1", SID: "s1"})
	store.AddLocation(&worlddb.Location{LocID: "l1", WID: "w1", Key: "start", Name: "Start"})
	for _, uid := range []worlddb.PlayerID{"u1", "u2", "u3"} {
		if err := store.SetPlayState(&worlddb.PlayState{UID: uid, IID: "i1", LocID: "l1"}); err != nil {
			t.Fatalf("SetPlayState %s: %v", uid, err)
		}
	}
	return New(store, events.NewBus()), store
}

func TestResolveExplicitDirty(t *testing.T) {
	tk, _ := seedTask(t)
	c1 := &fakeConn{uid: "u1"}
	c2 := &fakeConn{uid: "u2"}
	tk.SetDirty("u1", DirtyFocus|DirtyLocale)

	err := tk.Resolve([]Conn{c1, c2}, func(conn Conn, dirty DirtyBits) error {
		conn.(*fakeConn).rendered = append(conn.(*fakeConn).rendered, dirty)
		return nil
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(c1.rendered) != 1 || c1.rendered[0] != DirtyFocus|DirtyLocale {
		t.Errorf("u1 rendered %v", c1.rendered)
	}
	if len(c2.rendered) != 0 {
		t.Errorf("u2 rendered %v, want nothing", c2.rendered)
	}
}

func TestResolveChangesetPropagation(t *testing.T) {
	tk, _ := seedTask(t)
	key := worlddb.PropKey{Store: worlddb.InstanceProp, ID1: "i1", ID2: "l1", Name: "desc"}
	other := worlddb.PropKey{Store: worlddb.InstanceProp, ID1: "i1", ID2: "l1", Name: "mood"}

	// u1's locale depended on the written key; u2's did not.
	c1 := &fakeConn{uid: "u1", deps: map[Facet]worlddb.KeySet{
		FacetLocale: {key: struct{}{}},
		FacetFocus:  {other: struct{}{}},
	}}
	c2 := &fakeConn{uid: "u2", deps: map[Facet]worlddb.KeySet{
		FacetLocale: {other: struct{}{}},
	}}
	tk.SetDataChange(key)

	err := tk.Resolve([]Conn{c1, c2}, func(conn Conn, dirty DirtyBits) error {
		conn.(*fakeConn).rendered = append(conn.(*fakeConn).rendered, dirty)
		return nil
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(c1.rendered) != 1 || c1.rendered[0] != DirtyLocale {
		t.Errorf("u1 rendered %v, want just the locale", c1.rendered)
	}
	if len(c2.rendered) != 0 {
		t.Errorf("u2 rendered %v, want nothing", c2.rendered)
	}
}

func TestResolveMergesExplicitAndPropagated(t *testing.T) {
	tk, _ := seedTask(t)
	key := worlddb.PropKey{Store: worlddb.WorldProp, ID1: "w1", Name: "desc"}
	c1 := &fakeConn{uid: "u1", deps: map[Facet]worlddb.KeySet{
		FacetLocale: {key: struct{}{}},
	}}
	tk.SetDirty("u1", DirtyFocus)
	tk.SetDataChange(key)

	err := tk.Resolve([]Conn{c1}, func(conn Conn, dirty DirtyBits) error {
		conn.(*fakeConn).rendered = append(conn.(*fakeConn).rendered, dirty)
		return nil
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(c1.rendered) != 1 || c1.rendered[0] != DirtyFocus|DirtyLocale {
		t.Errorf("rendered %v, want focus plus locale", c1.rendered)
	}
}

func TestResolveRenderErrorDoesNotStopOthers(t *testing.T) {
	tk, _ := seedTask(t)
	c1 := &fakeConn{uid: "u1"}
	c2 := &fakeConn{uid: "u2"}
	tk.SetDirtyMany([]worlddb.PlayerID{"u1", "u2"}, DirtyWorld)

	err := tk.Resolve([]Conn{c1, c2}, func(conn Conn, dirty DirtyBits) error {
		conn.(*fakeConn).rendered = append(conn.(*fakeConn).rendered, dirty)
		if conn.UID() == "u1" {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(c2.rendered) != 1 {
		t.Errorf("u2 not rendered after u1's failure")
	}
}

func TestTickLimit(t *testing.T) {
	tk, _ := seedTask(t)
	tk.TickLimit = 3
	for i := 0; i < 3; i++ {
		if err := tk.Tick(); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if err := tk.Tick(); !errors.Is(err, ErrRunaway) {
		t.Errorf("over-budget tick: err = %v, want ErrRunaway", err)
	}
	if tk.Ticks() != 4 {
		t.Errorf("ticks = %d", tk.Ticks())
	}
}

func TestLocContextCaching(t *testing.T) {
	tk, store := seedTask(t)
	loctx, err := tk.GetLocContext("u1")
	if err != nil {
		t.Fatalf("GetLocContext: %v", err)
	}
	if loctx.WID != "w1" || loctx.IID != "i1" || loctx.LocID != "l1" {
		t.Errorf("loctx = %+v", loctx)
	}

	// The cached context survives a playstate change until cleared.
	if err := store.SetPlayState(&worlddb.PlayState{UID: "u1"}); err != nil {
		t.Fatalf("SetPlayState: %v", err)
	}
	again, err := tk.GetLocContext("u1")
	if err != nil {
		t.Fatalf("GetLocContext: %v", err)
	}
	if again != loctx {
		t.Errorf("cached loctx not reused")
	}
	tk.ClearLocContext("u1")
	fresh, err := tk.GetLocContext("u1")
	if err != nil {
		t.Fatalf("GetLocContext: %v", err)
	}
	if fresh.IID != "" {
		t.Errorf("fresh loctx = %+v, want the void", fresh)
	}
}

func TestFindLocalePlayers(t *testing.T) {
	tk, _ := seedTask(t)
	loctx, err := tk.GetLocContext("u1")
	if err != nil {
		t.Fatalf("GetLocContext: %v", err)
	}
	all, err := tk.FindLocalePlayers(loctx, false)
	if err != nil {
		t.Fatalf("FindLocalePlayers: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("everyone = %v", all)
	}
	others, err := tk.FindLocalePlayers(loctx, true)
	if err != nil {
		t.Fatalf("FindLocalePlayers: %v", err)
	}
	if len(others) != 2 {
		t.Errorf("others = %v", others)
	}
	for _, uid := range others {
		if uid == "u1" {
			t.Errorf("self in others: %v", others)
		}
	}

	void := &LocContext{UID: "u1"}
	none, err := tk.FindLocalePlayers(void, false)
	if err != nil || none != nil {
		t.Errorf("void locale = %v, %v", none, err)
	}
}

func TestDrainCommands(t *testing.T) {
	tk, _ := seedTask(t)
	tk.QueueCommand(Command{Cmd: "tovoid", UID: "u1"})
	tk.QueueCommand(Command{Cmd: "portin", UID: "u1"})

	cmds := tk.DrainCommands()
	if len(cmds) != 2 || cmds[0].Cmd != "tovoid" || cmds[1].Cmd != "portin" {
		t.Errorf("drained %v", cmds)
	}
	if again := tk.DrainCommands(); again != nil {
		t.Errorf("second drain = %v, want empty", again)
	}
}
