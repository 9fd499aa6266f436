package eval

import (
	"errors"
	"reflect"
	"testing"

	"github.com/weaveworld/goweave/pkg/events"
	"github.com/weaveworld/goweave/pkg/task"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

func instKey(name string) worlddb.PropKey {
	return worlddb.PropKey{Store: worlddb.InstanceProp, ID1: "i1", ID2: "l1", Name: name}
}

func worldKey(name string) worlddb.PropKey {
	return worlddb.PropKey{Store: worlddb.WorldProp, ID1: "w1", ID2: "l1", Name: name}
}

// seedStore builds a two-room world with one player standing in the
// first room.
func seedStore(t *testing.T) *worlddb.MemStore {
	t.Helper()
	store := worlddb.NewMemStore()
	store.AddWorld(&worlddb.World{WID: "w1", Name: "Testworld", Creator: "pc"})
	store.AddScope(&worlddb.Scope{SID: "s1", Type: worlddb.ScopeGlobal})
	store.AddInstance(&worlddb.Instance{IID: "i1", WID: "w1", SID: "s1"})
	store.AddLocation(&worlddb.Location{LocID: "l1", WID: "w1", Key: "start", Name: "Start"})
	store.AddLocation(&worlddb.Location{LocID: "l2", WID: "w1", Key: "cellar", Name: "Cellar"})
	if err := store.SetPlayer(&worlddb.Player{UID: "u1", Name: "Alice", Pronoun: "she", Desc: "a tall explorer"}); err != nil {
		t.Fatalf("SetPlayer: %v", err)
	}
	if err := store.SetPlayState(&worlddb.PlayState{UID: "u1", IID: "i1", LocID: "l1"}); err != nil {
		t.Fatalf("SetPlayState: %v", err)
	}
	return store
}

func testWorld(t *testing.T) (*task.Task, *task.LocContext, *worlddb.MemStore) {
	t.Helper()
	store := seedStore(t)
	tk := task.New(store, events.NewBus())
	loctx, err := tk.GetLocContext("u1")
	if err != nil {
		t.Fatalf("GetLocContext: %v", err)
	}
	return tk, loctx, store
}

func TestSymbolCascade(t *testing.T) {
	tk, loctx, store := testWorld(t)
	store.SeedProp(worldKey("color"), "red")
	store.SeedProp(instKey("color"), "blue")
	store.SeedProp(worlddb.PropKey{Store: worlddb.WorldProp, ID1: "w1", Name: "size"}, "big")

	ctx := NewContext(tk, loctx, LevelFlat)
	res, err := ctx.Eval("color", TypeSymbol)
	if err != nil {
		t.Fatalf("eval color: %v", err)
	}
	if res != "blue" {
		t.Errorf("color = %v, want instance override blue", res)
	}
	if !ctx.Dependencies().Contains(instKey("color")) {
		t.Errorf("dependencies missing the matched tier")
	}

	ctx = NewContext(tk, loctx, LevelFlat)
	res, err = ctx.Eval("size", TypeSymbol)
	if err != nil {
		t.Fatalf("eval size: %v", err)
	}
	if res != "big" {
		t.Errorf("size = %v, want realm-level big", res)
	}
	// The cascade probed the location tiers first; those misses are
	// dependencies too.
	if !ctx.Dependencies().Contains(instKey("size")) || !ctx.Dependencies().Contains(worldKey("size")) {
		t.Errorf("dependencies missing the probed tiers: %v", ctx.Dependencies())
	}

	ctx = NewContext(tk, loctx, LevelFlat)
	if _, err = ctx.Eval("nosuch", TypeSymbol); !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("missing symbol: err = %v, want ErrSymbolNotFound", err)
	}
}

func TestTextRendering(t *testing.T) {
	tk, loctx, store := testWorld(t)
	store.SeedProp(worldKey("desc"), &worlddb.Text{Text: "You see a [lever|pull].\n\nDusty."})

	ctx := NewContext(tk, loctx, LevelDisplay)
	res, err := ctx.Eval("desc", TypeSymbol)
	if err != nil {
		t.Fatalf("eval desc: %v", err)
	}
	accum, ok := res.([]any)
	if !ok {
		t.Fatalf("display result is %T, want description list", res)
	}
	if len(accum) != 6 {
		t.Fatalf("description has %d elements: %v", len(accum), accum)
	}
	if accum[0] != "You see a " || accum[2] != "lever" || accum[4] != "." {
		t.Errorf("unexpected text runs: %v", accum)
	}
	link, ok := accum[1].([]any)
	if !ok || len(link) != 2 || link[0] != "link" {
		t.Fatalf("accum[1] = %v, want a link tag", accum[1])
	}
	ackey := link[1].(string)
	if target := ctx.LinkTargets()[ackey]; target != "pull" {
		t.Errorf("link target = %v, want pull", target)
	}
	if !reflect.DeepEqual(accum[3], []any{"/link"}) {
		t.Errorf("accum[3] = %v, want /link", accum[3])
	}
	if !reflect.DeepEqual(accum[5], []any{"para"}) {
		t.Errorf("accum[5] = %v, want para", accum[5])
	}

	ctx = NewContext(tk, loctx, LevelMessage)
	res, err = ctx.Eval("desc", TypeSymbol)
	if err != nil {
		t.Fatalf("eval desc (message): %v", err)
	}
	if res != "You see a lever.Dusty." {
		t.Errorf("message = %q", res)
	}
}

func TestInterpolationConditionals(t *testing.T) {
	tk, loctx, store := testWorld(t)
	store.SeedProp(instKey("dooropen"), true)
	store.SeedProp(instKey("count"), int64(2))

	tests := []struct {
		text string
		want string
	}{
		{"a[[$if dooropen]]b[[$else]]c[[$end]]d", "abd"},
		{"a[[$if nosuch]]b[[$else]]c[[$end]]d", "acd"},
		{"[[$if count == 2]]two[[$elif count == 3]]three[[$end]]", "two"},
		{"[[$if count == 3]]three[[$elif count == 2]]two[[$else]]other[[$end]]", "two"},
		{"[[$if 0]]x[[$if 1]]y[[$end]]z[[$end]]w", "w"},
		{"[[$end]]tail", "[$end without matching $if]tail"},
		{"[[$else]]tail", "[$else without matching $if]tail"},
		{"[[$if 1]]open", "open[$if without matching $end]"},
		{"n is [[count + 1]].", "n is 3."},
		{"gone: [[nosuch]].", "gone: ."},
	}
	for _, test := range tests {
		ctx := NewContext(tk, loctx, LevelMessage)
		res, err := ctx.Eval(test.text, TypeText)
		if err != nil {
			t.Errorf("%q: %v", test.text, err)
			continue
		}
		if res != test.want {
			t.Errorf("%q = %q, want %q", test.text, res, test.want)
		}
	}
}

func TestPronounTokens(t *testing.T) {
	tk, loctx, _ := testWorld(t)

	ctx := NewContext(tk, loctx, LevelMessage)
	res, err := ctx.Eval("[$We] saw [$name] fix [$our] lamp [$ourself].", TypeText)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if res != "She saw Alice fix her lamp herself." {
		t.Errorf("rendered %q", res)
	}
	if !ctx.Dependencies().Contains(worlddb.PropKey{Store: worlddb.PlayerField, ID1: "u1", Name: "pronoun"}) {
		t.Errorf("dependencies missing the pronoun field")
	}
}

func TestCodeExpressions(t *testing.T) {
	tk, loctx, store := testWorld(t)
	store.SeedProp(instKey("n"), int64(7))
	store.SeedProp(instKey("ls"), []any{int64(1), int64(2), int64(3)})

	tests := []struct {
		src  string
		want any
	}{
		{"1 + 2", int64(3)},
		{"1.5 + 2", float64(3.5)},
		{"7 / 2", float64(3.5)},
		{"7 % 3", int64(1)},
		{"-7 % 3", int64(2)},
		{"'ab' + 'cd'", "abcd"},
		{"'x' * 3", "xxx"},
		{"[1] + [2, 3]", []any{int64(1), int64(2), int64(3)}},
		{"1 < 2 < 3", true},
		{"3 < 2", false},
		{"1 == 1.0", true},
		{"'a' in 'cat'", true},
		{"4 in ls", false},
		{"2 in ls", true},
		{"not 0", true},
		{"0 or 'fallback'", "fallback"},
		{"'first' and 'second'", "second"},
		{"ls[1]", int64(2)},
		{"ls[-1]", int64(3)},
		{"n is 7", true},
		{"n is None", false},
		{"len('abc')", int64(3)},
		{"len(ls)", int64(3)},
		{"str(42)", "42"},
		{"int('12')", int64(12)},
		{"bool([])", false},
		{"min(3, 1, 2)", int64(1)},
		{"max(ls)", int64(3)},
		{"'%s has %d' % ['Alice', 5]", "Alice has 5"},
		{"(n, 1)", []any{int64(7), int64(1)}},
		{"None", nil},
	}
	for _, test := range tests {
		ctx := NewContext(tk, loctx, LevelExecute)
		res, err := ctx.Eval(test.src, TypeCode)
		if err != nil {
			t.Errorf("%q: %v", test.src, err)
			continue
		}
		if !reflect.DeepEqual(res, test.want) {
			t.Errorf("%q = %#v, want %#v", test.src, res, test.want)
		}
	}
}

func TestCodeStatements(t *testing.T) {
	tk, loctx, store := testWorld(t)
	store.SeedProp(instKey("n"), int64(7))

	tests := []struct {
		src  string
		want any
	}{
		{"pass", nil},
		{"return 5\n'unreached'", int64(5)},
		{"return", nil},
		{"if n == 7:\n    'yes'\nelse:\n    'no'", "yes"},
		{"if n == 8:\n    'yes'\nelif n == 7:\n    'seven'\nelse:\n    'no'", "seven"},
		{"1; 2; 3", int64(3)},
	}
	for _, test := range tests {
		ctx := NewContext(tk, loctx, LevelExecute)
		res, err := ctx.Eval(test.src, TypeCode)
		if err != nil {
			t.Errorf("%q: %v", test.src, err)
			continue
		}
		if !reflect.DeepEqual(res, test.want) {
			t.Errorf("%q = %#v, want %#v", test.src, res, test.want)
		}
	}
}

func TestPropertyWrites(t *testing.T) {
	tk, loctx, store := testWorld(t)
	tk.SetWritable()

	ctx := NewContext(tk, loctx, LevelExecute)
	if _, err := ctx.Eval("x = 7", TypeCode); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !tk.Changeset().Contains(instKey("x")) {
		t.Errorf("changeset missing the written key: %v", tk.Changeset())
	}
	ctx = NewContext(tk, loctx, LevelExecute)
	res, err := ctx.Eval("x", TypeCode)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if res != int64(7) {
		t.Errorf("x = %v, want 7", res)
	}

	// Writes through proxies land in the player and realm stores.
	ctx = NewContext(tk, loctx, LevelExecute)
	if _, err := ctx.Eval("player.hat = 'red'", TypeCode); err != nil {
		t.Fatalf("player assign: %v", err)
	}
	pkey := worlddb.PropKey{Store: worlddb.IPlayerProp, ID1: "i1", ID2: "u1", Name: "hat"}
	if !tk.Changeset().Contains(pkey) {
		t.Errorf("changeset missing player key")
	}
	ctx = NewContext(tk, loctx, LevelExecute)
	res, err = ctx.Eval("player.hat", TypeCode)
	if err != nil {
		t.Fatalf("player read: %v", err)
	}
	if res != "red" {
		t.Errorf("player.hat = %v, want red", res)
	}

	ctx = NewContext(tk, loctx, LevelExecute)
	if _, err := ctx.Eval("del x", TypeCode); err != nil {
		t.Fatalf("del: %v", err)
	}
	ctx = NewContext(tk, loctx, LevelExecute)
	if _, err := ctx.Eval("x", TypeCode); !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("deleted symbol: err = %v, want ErrSymbolNotFound", err)
	}

	if err := tk.Cache().WriteAllDirty(); err != nil {
		t.Fatalf("WriteAllDirty: %v", err)
	}
	if val, found, _ := store.GetProp(pkey); !found || val != "red" {
		t.Errorf("store player.hat = %v found=%v", val, found)
	}
	if _, found, _ := store.GetProp(instKey("x")); found {
		t.Errorf("deleted x survived the flush")
	}
}

func TestWriteGuards(t *testing.T) {
	tk, loctx, _ := testWorld(t)

	// The task has not been promoted to writable.
	ctx := NewContext(tk, loctx, LevelExecute)
	if _, err := ctx.Eval("x = 1", TypeCode); !errors.Is(err, task.ErrNotWritable) {
		t.Errorf("non-writable task: err = %v, want ErrNotWritable", err)
	}

	tk.SetWritable()

	// Writes outside action code are sandbox violations.
	ctx = NewContext(tk, loctx, LevelDisplay)
	if _, err := ctx.Eval("x = 1", TypeCode); !errors.Is(err, ErrSandbox) {
		t.Errorf("display-level write: err = %v, want ErrSandbox", err)
	}

	// Builtin names are immutable.
	ctx = NewContext(tk, loctx, LevelExecute)
	if _, err := ctx.Eval("player = 1", TypeCode); !errors.Is(err, ErrSandbox) {
		t.Errorf("assign to builtin: err = %v, want ErrSandbox", err)
	}
	ctx = NewContext(tk, loctx, LevelExecute)
	if _, err := ctx.Eval("locations.start = 1", TypeCode); !errors.Is(err, ErrSandbox) {
		t.Errorf("assign to location: err = %v, want ErrSandbox", err)
	}

	// Assignment to _ is silently dropped.
	ctx = NewContext(tk, loctx, LevelExecute)
	if _, err := ctx.Eval("_ = 9", TypeCode); err != nil {
		t.Errorf("assign to _: %v", err)
	}
	if len(tk.Changeset()) != 0 {
		t.Errorf("changeset not empty after dropped assignment: %v", tk.Changeset())
	}
}

func TestProxyReads(t *testing.T) {
	tk, loctx, store := testWorld(t)
	store.SeedProp(worldKey("color"), "red")
	store.SeedProp(worlddb.PropKey{Store: worlddb.InstanceProp, ID1: "i1", Name: "counter"}, int64(4))
	store.SeedProp(worlddb.PropKey{Store: worlddb.WorldProp, ID1: "w1", ID2: "l2", Name: "smell"}, "damp")

	tests := []struct {
		src  string
		want any
	}{
		{"location.color", "red"},
		{"location['color']", "red"},
		{"realm.counter", int64(4)},
		{"locations.cellar.smell", "damp"},
		{"locations.cellar is not None", true},
		{"location == locations.start", true},
		{"location == locations.cellar", false},
		{"player == player", true},
	}
	for _, test := range tests {
		ctx := NewContext(tk, loctx, LevelExecute)
		res, err := ctx.Eval(test.src, TypeCode)
		if err != nil {
			t.Errorf("%q: %v", test.src, err)
			continue
		}
		if !reflect.DeepEqual(res, test.want) {
			t.Errorf("%q = %#v, want %#v", test.src, res, test.want)
		}
	}

	ctx := NewContext(tk, loctx, LevelExecute)
	if _, err := ctx.Eval("locations.attic", TypeCode); !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("unknown location: err = %v, want ErrSymbolNotFound", err)
	}
}

type recordingSub struct {
	events []events.Event
}

func (s *recordingSub) Receive(ev events.Event) { s.events = append(s.events, ev) }
func (s *recordingSub) Closed() bool            { return false }

func TestBareEventDispatch(t *testing.T) {
	store := seedStore(t)
	if err := store.SetPlayer(&worlddb.Player{UID: "u2", Name: "Bob", Pronoun: "he"}); err != nil {
		t.Fatalf("SetPlayer: %v", err)
	}
	if err := store.SetPlayState(&worlddb.PlayState{UID: "u2", IID: "i1", LocID: "l1"}); err != nil {
		t.Fatalf("SetPlayState: %v", err)
	}
	store.SeedProp(worldKey("shout"), &worlddb.Event{Text: "You shout.", OText: "[$name] shouts."})

	bus := events.NewBus()
	self := &recordingSub{}
	other := &recordingSub{}
	bus.Subscribe("u1", self)
	bus.Subscribe("u2", other)
	tk := task.New(store, bus)
	loctx, err := tk.GetLocContext("u1")
	if err != nil {
		t.Fatalf("GetLocContext: %v", err)
	}
	tk.SetWritable()

	ctx := NewContext(tk, loctx, LevelExecute)
	if _, err := ctx.Eval("shout", TypeCode); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(self.events) != 1 || self.events[0].Text != "You shout." {
		t.Errorf("actor events = %v", self.events)
	}
	if len(other.events) != 1 || other.events[0].Text != "Alice shouts." {
		t.Errorf("bystander events = %v", other.events)
	}
}

func TestBareFocusDispatch(t *testing.T) {
	tk, loctx, store := testWorld(t)
	store.SeedProp(worldKey("lever"), &worlddb.Text{Text: "A rusty lever."})
	tk.SetWritable()

	ctx := NewContext(tk, loctx, LevelExecute)
	if _, err := ctx.Eval("lever", TypeCode); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	ps, err := store.PlayState("u1")
	if err != nil {
		t.Fatalf("PlayState: %v", err)
	}
	if ps.Focus != "lever" {
		t.Errorf("focus = %v, want lever", ps.Focus)
	}
	if tk.DirtyFor("u1")&task.DirtyFocus == 0 {
		t.Errorf("focus facet not marked dirty")
	}
}

func TestBareMoveDispatch(t *testing.T) {
	tk, loctx, store := testWorld(t)
	store.SeedProp(worldKey("south"), &worlddb.Move{Loc: "cellar"})
	tk.SetWritable()

	ctx := NewContext(tk, loctx, LevelExecute)
	if _, err := ctx.Eval("south", TypeCode); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	ps, err := store.PlayState("u1")
	if err != nil {
		t.Fatalf("PlayState: %v", err)
	}
	if ps.LocID != "l2" {
		t.Errorf("locid = %v, want l2", ps.LocID)
	}
	if ps.LastLocID != "l1" {
		t.Errorf("lastlocid = %v, want l1", ps.LastLocID)
	}
	if ps.Focus != nil {
		t.Errorf("focus = %v, want cleared", ps.Focus)
	}
	want := task.DirtyFocus | task.DirtyLocale | task.DirtyPopulace
	if bits := tk.DirtyFor("u1"); bits&want != want {
		t.Errorf("dirty bits = %v, want focus+locale+populace", bits)
	}
	if !tk.Changeset().Contains(worlddb.PropKey{Store: worlddb.PlayStateField, ID1: "u1", Name: "locid"}) {
		t.Errorf("changeset missing the locid change")
	}
}

func TestRunawayScripts(t *testing.T) {
	tk, loctx, store := testWorld(t)
	store.SeedProp(worldKey("loop"), &worlddb.Code{Text: "loop"})
	tk.SetWritable()

	ctx := NewContext(tk, loctx, LevelExecute)
	_, err := ctx.Eval("loop", TypeCode)
	if !errors.Is(err, ErrStackDepth) && !errors.Is(err, task.ErrRunaway) {
		t.Fatalf("self-invoking code: err = %v, want a runaway error", err)
	}
}

func TestSelfDescSpecial(t *testing.T) {
	tk, loctx, store := testWorld(t)
	store.SeedProp(worldKey("me"), &worlddb.SelfDesc{})

	ctx := NewContext(tk, loctx, LevelDispSpecial)
	res, err := ctx.Eval("me", TypeSymbol)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !ctx.WasSpecial() {
		t.Fatalf("selfdesc did not mark the result special")
	}
	want := []any{"selfdesc", "Alice", "she", "a tall explorer", nil}
	if !reflect.DeepEqual(res, want) {
		t.Errorf("selfdesc = %#v, want %#v", res, want)
	}
}

func TestEditStrSpecial(t *testing.T) {
	tk, loctx, store := testWorld(t)
	store.SeedProp(worldKey("plaque"), &worlddb.EditStr{
		Key:        "plaquetext",
		Text:       "You engrave it.",
		EditAccess: worlddb.AccMember,
	})
	store.SeedProp(instKey("plaquetext"), "WELCOME")

	ctx := NewContext(tk, loctx, LevelDispSpecial)
	res, err := ctx.Eval("plaque", TypeSymbol)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !ctx.WasSpecial() {
		t.Fatalf("editstr did not mark the result special")
	}
	arr, ok := res.([]any)
	if !ok || len(arr) != 4 || arr[0] != "editstr" {
		t.Fatalf("editstr shape = %#v", res)
	}
	if arr[2] != "WELCOME" {
		t.Errorf("current value = %v, want WELCOME", arr[2])
	}
	ackey := arr[1].(string)
	target, ok := ctx.LinkTargets()[ackey].(*EditStrTarget)
	if !ok {
		t.Fatalf("link target = %#v, want *EditStrTarget", ctx.LinkTargets()[ackey])
	}
	if target.Key != "plaquetext" || target.Text != "You engrave it." {
		t.Errorf("target = %+v", target)
	}
}

func TestEditStrAccessDenied(t *testing.T) {
	tk, loctx, store := testWorld(t)
	store.SeedProp(worldKey("plaque"), &worlddb.EditStr{
		Key:        "plaquetext",
		EditAccess: worlddb.AccOwner,
	})

	ctx := NewContext(tk, loctx, LevelDispSpecial)
	res, err := ctx.Eval("plaque", TypeSymbol)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if res != "You do not have access to this widget." {
		t.Errorf("res = %v, want the access message", res)
	}
}

func TestGenTextRendering(t *testing.T) {
	tk, loctx, store := testWorld(t)
	store.SeedProp(worldKey("mural"), &worlddb.GenText{Text: "['the mural shows a battle', STOP, 'worth seeing']"})

	ctx := NewContext(tk, loctx, LevelMessage)
	res, err := ctx.Eval("mural", TypeSymbol)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if res != "The mural shows a battle. Worth seeing." {
		t.Errorf("rendered %q", res)
	}
}

func TestGenTextSymbolEmbedding(t *testing.T) {
	tk, loctx, store := testWorld(t)
	store.SeedProp(worldKey("metal"), "brass")
	store.SeedProp(worldKey("plate"), &worlddb.GenText{Text: "['the plate is', metal]"})

	ctx := NewContext(tk, loctx, LevelMessage)
	res, err := ctx.Eval("plate", TypeSymbol)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if res != "The plate is brass." {
		t.Errorf("rendered %q", res)
	}
	if !ctx.Dependencies().Contains(worldKey("metal")) {
		t.Errorf("dependencies missing the embedded symbol")
	}
}
