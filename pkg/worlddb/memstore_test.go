package worlddb

import (
	"errors"
	"testing"
)

func TestPropWritability(t *testing.T) {
	store := NewMemStore()
	worldKey := PropKey{Store: WorldProp, ID1: "w1", ID2: "l1", Name: "desc"}
	instKey := PropKey{Store: InstanceProp, ID1: "i1", ID2: "l1", Name: "desc"}

	if err := store.SetProp(worldKey, "x"); !errors.Is(err, ErrNotWritable) {
		t.Errorf("world prop write: err = %v, want ErrNotWritable", err)
	}
	if err := store.SetProp(instKey, "x"); err != nil {
		t.Errorf("instance prop write: %v", err)
	}
	val, found, err := store.GetProp(instKey)
	if err != nil || !found || val != "x" {
		t.Errorf("GetProp = %v %v %v", val, found, err)
	}
	if err := store.DeleteProp(instKey); err != nil {
		t.Errorf("DeleteProp: %v", err)
	}
	if _, found, _ := store.GetProp(instKey); found {
		t.Errorf("prop survived delete")
	}

	// SeedProp bypasses the writability check for authored content.
	store.SeedProp(worldKey, &Text{Text: "seeded"})
	if val, found, _ := store.GetProp(worldKey); !found || val.(*Text).Text != "seeded" {
		t.Errorf("seeded prop = %v %v", val, found)
	}
}

func TestPlayStateCopyIsolation(t *testing.T) {
	store := NewMemStore()
	if err := store.SetPlayState(&PlayState{UID: "u1", IID: "i1", LocID: "l1",
		PortTo: &PortDest{WID: "w1", SID: "s1", LocID: "l2"}}); err != nil {
		t.Fatalf("SetPlayState: %v", err)
	}

	ps, err := store.PlayState("u1")
	if err != nil {
		t.Fatalf("PlayState: %v", err)
	}
	ps.IID = "changed"
	ps.PortTo.WID = "changed"

	again, err := store.PlayState("u1")
	if err != nil {
		t.Fatalf("PlayState: %v", err)
	}
	if again.IID != "i1" || again.PortTo.WID != "w1" {
		t.Errorf("stored playstate aliased the returned copy: %+v", again)
	}
}

func TestInstanceForScope(t *testing.T) {
	store := NewMemStore()
	store.AddInstance(&Instance{IID: "i1", WID: "w1", SID: "s1"})

	inst, err := store.InstanceForScope("w1", "s1")
	if err != nil {
		t.Fatalf("InstanceForScope: %v", err)
	}
	if inst.IID != "i1" {
		t.Errorf("instance = %+v", inst)
	}
	if _, err := store.InstanceForScope("w1", "s9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing scope: err = %v, want ErrNotFound", err)
	}

	if err := store.CreateInstance(&Instance{IID: "i2", WID: "w1", SID: "s9"}); err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	if inst, err = store.InstanceForScope("w1", "s9"); err != nil || inst.IID != "i2" {
		t.Errorf("created instance = %v, %v", inst, err)
	}
}

func TestPortalsInListOrdering(t *testing.T) {
	store := NewMemStore()
	store.AddPortal(&Portal{PortID: "p2", PListID: "pl1", ListPos: 2})
	store.AddPortal(&Portal{PortID: "p1", PListID: "pl1", ListPos: 1})
	store.AddPortal(&Portal{PortID: "p9", PListID: "other", ListPos: 0.5})

	out, err := store.PortalsInList("pl1")
	if err != nil {
		t.Fatalf("PortalsInList: %v", err)
	}
	if len(out) != 2 || out[0].PortID != "p1" || out[1].PortID != "p2" {
		t.Errorf("portals = %v", out)
	}

	if err := store.DeletePortal("p1"); err != nil {
		t.Fatalf("DeletePortal: %v", err)
	}
	if _, err := store.Portal("p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted portal lookup: err = %v", err)
	}
}

func TestPlayersInLocation(t *testing.T) {
	store := NewMemStore()
	seed := []PlayState{
		{UID: "u1", IID: "i1", LocID: "l1"},
		{UID: "u2", IID: "i1", LocID: "l1"},
		{UID: "u3", IID: "i1", LocID: "l2"},
		{UID: "u4", IID: "i2", LocID: "l1"},
		{UID: "u5"},
	}
	for i := range seed {
		if err := store.SetPlayState(&seed[i]); err != nil {
			t.Fatalf("SetPlayState: %v", err)
		}
	}
	uids, err := store.PlayersInLocation("i1", "l1")
	if err != nil {
		t.Fatalf("PlayersInLocation: %v", err)
	}
	if len(uids) != 2 {
		t.Errorf("players = %v", uids)
	}
}
