package worldfile

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/weaveworld/goweave/pkg/boltstore"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

const sampleFile = `# A sample world definition.
$name: Shoreline
$creator: Plotter
$copyable: no
$instancing: solo

$player.desc: a wind-blown traveler
$player.pronoun: 'she'

ldesc: The tide is low.
count: 17
ratio: 2.5
flag: True
blank: None
colors: [1, 'two', 3.0]
greet: *event A bell rings.
  - otext: A bell rings somewhere.

* start: The Jetty

  Weathered planks stretch over gray water toward the [shed].

  Gulls wheel overhead.

shed: *text A tin shed, padlocked.
lever: *code
  if player.name == 'Alice':
    'Clunk.'
  'Nothing happens.'
walk: *move shed_interior
  - oleave: [[player.name]] walks away.
portals: *portlist main
  - text: Travel from here.
  - portal: Shoreline, Plotter, global, start

*shed_interior: Inside the Shed

  Dark and smelling of rope.
`

func parseSample(t *testing.T) *WorldDef {
	t.Helper()
	def, err := Parse(strings.NewReader(sampleFile))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(def.Errors) > 0 {
		t.Fatalf("parse errors: %v", def.Errors)
	}
	return def
}

func TestParseHeader(t *testing.T) {
	def := parseSample(t)

	if def.Name != "Shoreline" || def.Creator != "Plotter" {
		t.Errorf("name/creator = %q/%q", def.Name, def.Creator)
	}
	if def.Copyable {
		t.Error("Copyable = true, want false")
	}
	if def.Instancing != worlddb.InstancingSolo {
		t.Errorf("Instancing = %q", def.Instancing)
	}
	if !reflect.DeepEqual(def.PlayerPropList, []string{"desc", "pronoun"}) {
		t.Errorf("PlayerPropList = %v", def.PlayerPropList)
	}
	if got := def.PlayerProps["pronoun"]; got != "she" {
		t.Errorf("pronoun = %v (%T)", got, got)
	}
	if rec, ok := def.PlayerProps["desc"].(*worlddb.Text); !ok || rec.Text != "a wind-blown traveler" {
		t.Errorf("desc = %#v", def.PlayerProps["desc"])
	}
}

func TestParseWorldProps(t *testing.T) {
	def := parseSample(t)

	want := []string{"ldesc", "count", "ratio", "flag", "blank", "colors", "greet"}
	if !reflect.DeepEqual(def.PropList, want) {
		t.Fatalf("PropList = %v", def.PropList)
	}
	if def.Props["count"] != int64(17) {
		t.Errorf("count = %v (%T)", def.Props["count"], def.Props["count"])
	}
	if def.Props["ratio"] != 2.5 {
		t.Errorf("ratio = %v", def.Props["ratio"])
	}
	if def.Props["flag"] != true {
		t.Errorf("flag = %v", def.Props["flag"])
	}
	if def.Props["blank"] != nil {
		t.Errorf("blank = %v", def.Props["blank"])
	}
	if !reflect.DeepEqual(def.Props["colors"], []any{int64(1), "two", 3.0}) {
		t.Errorf("colors = %#v", def.Props["colors"])
	}
	ev, ok := def.Props["greet"].(*worlddb.Event)
	if !ok || ev.Text != "A bell rings." || ev.OText != "A bell rings somewhere." {
		t.Errorf("greet = %#v", def.Props["greet"])
	}
}

func TestParseLocations(t *testing.T) {
	def := parseSample(t)

	if !reflect.DeepEqual(def.LocationList, []string{"start", "shed_interior"}) {
		t.Fatalf("LocationList = %v", def.LocationList)
	}
	start := def.Locations["start"]
	if start.Name != "The Jetty" {
		t.Errorf("start name = %q", start.Name)
	}
	desc, ok := start.Props["desc"].(*worlddb.Text)
	if !ok {
		t.Fatalf("desc = %#v", start.Props["desc"])
	}
	wantDesc := "Weathered planks stretch over gray water toward the [shed].\n\nGulls wheel overhead."
	if desc.Text != wantDesc {
		t.Errorf("desc = %q", desc.Text)
	}
	if !reflect.DeepEqual(start.PropList, []string{"desc", "shed", "lever", "walk", "portals"}) {
		t.Errorf("PropList = %v", start.PropList)
	}

	code, ok := start.Props["lever"].(*worlddb.Code)
	if !ok {
		t.Fatalf("lever = %#v", start.Props["lever"])
	}
	wantCode := "if player.name == 'Alice':\n    'Clunk.'\n'Nothing happens.'"
	if code.Text != wantCode {
		t.Errorf("lever code = %q", code.Text)
	}

	mv, ok := start.Props["walk"].(*worlddb.Move)
	if !ok || mv.Loc != "shed_interior" || mv.OLeave != "[[player.name]] walks away." {
		t.Errorf("walk = %#v", start.Props["walk"])
	}

	pl, ok := start.Props["portals"].(*PortListDef)
	if !ok {
		t.Fatalf("portals = %#v", start.Props["portals"])
	}
	if pl.Key != "main" || pl.Text != "Travel from here." {
		t.Errorf("portlist = %#v", pl)
	}
	if pl.ReadAccess != worlddb.AccVisitor || pl.EditAccess != worlddb.AccMember {
		t.Errorf("portlist access = %v/%v", pl.ReadAccess, pl.EditAccess)
	}
	wantQuad := PortalDef{World: "Shoreline", Creator: "Plotter", Scope: "global", LocKey: "start"}
	if !reflect.DeepEqual(pl.Portals, []PortalDef{wantQuad}) {
		t.Errorf("portals = %#v", pl.Portals)
	}

	inner := def.Locations["shed_interior"]
	if inner.Name != "Inside the Shed" {
		t.Errorf("inner name = %q", inner.Name)
	}
	if rec, ok := inner.Props["desc"].(*worlddb.Text); !ok || rec.Text != "Dark and smelling of rope." {
		t.Errorf("inner desc = %#v", inner.Props["desc"])
	}
}

func TestParseLiterals(t *testing.T) {
	cases := []struct {
		in   string
		want any
		ok   bool
	}{
		{"None", nil, true},
		{"True", true, true},
		{"False", false, true},
		{"42", int64(42), true},
		{"-3", int64(-3), true},
		{"2.5", 2.5, true},
		{`"quoted"`, "quoted", true},
		{`'single'`, "single", true},
		{`'don\'t'`, "don't", true},
		{`"a\nb"`, "a\nb", true},
		{"[]", []any{}, true},
		{"[1, [2, 3]]", []any{int64(1), []any{int64(2), int64(3)}}, true},
		{`['a,b', 'c']`, []any{"a,b", "c"}, true},
		{"bare words", nil, false},
		{"[1, bare]", nil, false},
		{"[unclosed", nil, false},
		{"12 monkeys", nil, false},
	}
	for _, tc := range cases {
		got, ok := parseLiteral(tc.in)
		if ok != tc.ok {
			t.Errorf("parseLiteral(%q): ok = %v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && !reflect.DeepEqual(got, tc.want) {
			t.Errorf("parseLiteral(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestParseStopsAtTerminator(t *testing.T) {
	src := "$name: Tiny\nalpha: 1\n***\nbeta: 2\n"
	def, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := def.Props["beta"]; ok {
		t.Error("property after *** was parsed")
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		src  string
		want string
	}{
		{"* foo: One\n* foo: Two\n", "location defined twice"},
		{"$instancing: wild\n", "must be shared, solo, or standard"},
		{"not a property\n", "does not define a property"},
		{"thing: *wobble hello\n", "unknown special property type"},
		{"9lives: 1\n", "property key is not valid"},
		{"$bogus: 1\n", "unknown $key"},
		{"x: *event hi\n  - tone: loud\n", "does not accept subkey"},
		{"x: *portlist p\n  - portal: a, b, c\n", "must have four fields"},
	}
	for _, tc := range cases {
		def, err := Parse(strings.NewReader(tc.src))
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.src, err)
		}
		found := false
		for _, msg := range def.Errors {
			if strings.Contains(msg, tc.want) {
				found = true
			}
		}
		if !found {
			t.Errorf("Parse(%q): errors %v, want one containing %q", tc.src, def.Errors, tc.want)
		}
	}
}

func TestCheckClean(t *testing.T) {
	def := parseSample(t)
	if warns := def.Check(); len(warns) != 0 {
		t.Errorf("warnings = %v", warns)
	}
}

func TestCheckWarnings(t *testing.T) {
	src := strings.Join([]string{
		"$name: Flawed",
		"if: 1",
		"broken: *code 1 +",
		"* here: Here",
		"  A [missing link|nowhere] and [[3 +]] trouble.",
		"go: *move gone",
		"",
	}, "\n")
	def, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	warns := def.Check()

	wants := []string{
		"is a reserved word",
		`code prop "broken" in (world) does not parse`,
		`symbol "nowhere" in here is not defined`,
		`code snippet "3 +" in here does not parse`,
		`move prop "go" in here goes to undefined location: gone`,
	}
	for _, want := range wants {
		found := false
		for _, w := range warns {
			if strings.Contains(w, want) {
				found = true
			}
		}
		if !found {
			t.Errorf("warnings %v missing %q", warns, want)
		}
	}
}

func TestCheckBuiltinSymbols(t *testing.T) {
	src := "$name: T\n* spot: Spot\n  You see [[player.name]] and [[location]].\n"
	def, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if warns := def.Check(); len(warns) != 0 {
		t.Errorf("warnings = %v", warns)
	}
}

func openTestStore(t *testing.T) *boltstore.Store {
	t.Helper()
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "world.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedCreator(t *testing.T, s *boltstore.Store) {
	t.Helper()
	err := s.SetPlayer(&worlddb.Player{UID: "u1", Name: "Plotter", Pronoun: "they", SID: "s1"})
	if err != nil {
		t.Fatalf("SetPlayer: %v", err)
	}
}

func TestApply(t *testing.T) {
	s := openTestStore(t)
	seedCreator(t, s)
	def := parseSample(t)

	w, err := Apply(s, def)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if w.Name != "Shoreline" || w.Creator != "u1" || w.CreatorName != "Plotter" {
		t.Errorf("world = %+v", w)
	}
	if w.Copyable || w.Instancing != worlddb.InstancingSolo {
		t.Errorf("world = %+v", w)
	}

	start, err := s.LocationByKey(w.WID, "start")
	if err != nil {
		t.Fatalf("LocationByKey: %v", err)
	}
	if start.Name != "The Jetty" {
		t.Errorf("start = %+v", start)
	}

	val, found, err := s.GetProp(worlddb.PropKey{Store: worlddb.WorldProp, ID1: string(w.WID), Name: "count"})
	if err != nil || !found {
		t.Fatalf("count: found %v, err %v", found, err)
	}
	if val != int64(17) {
		t.Errorf("count = %v", val)
	}

	val, found, err = s.GetProp(worlddb.PropKey{Store: worlddb.WPlayerProp, ID1: string(w.WID), Name: "desc"})
	if err != nil || !found {
		t.Fatalf("player desc: found %v, err %v", found, err)
	}
	if rec, ok := val.(*worlddb.Text); !ok || rec.Text != "a wind-blown traveler" {
		t.Errorf("player desc = %#v", val)
	}

	val, found, err = s.GetProp(worlddb.PropKey{Store: worlddb.WorldProp, ID1: string(w.WID), ID2: string(start.LocID), Name: "portals"})
	if err != nil || !found {
		t.Fatalf("portals: found %v, err %v", found, err)
	}
	ref, ok := val.(*worlddb.PortListRef)
	if !ok {
		t.Fatalf("portals = %#v", val)
	}
	if ref.Text != "Travel from here." || ref.ReadAccess != worlddb.AccVisitor || ref.EditAccess != worlddb.AccMember {
		t.Errorf("ref = %+v", ref)
	}

	ports, err := s.PortalsInList(ref.PListID)
	if err != nil {
		t.Fatalf("PortalsInList: %v", err)
	}
	if len(ports) != 1 {
		t.Fatalf("ports = %v", ports)
	}
	if ports[0].WID != w.WID || ports[0].SID != "global" || ports[0].LocID != start.LocID {
		t.Errorf("port = %+v", ports[0])
	}
}

func TestApplyTwiceRebuildsPortals(t *testing.T) {
	s := openTestStore(t)
	seedCreator(t, s)

	def := parseSample(t)
	w, err := Apply(s, def)
	if err != nil {
		t.Fatalf("first Apply: %v", err)
	}

	def2 := parseSample(t)
	w2, err := Apply(s, def2)
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if w2.WID != w.WID {
		t.Errorf("world recreated: %s then %s", w.WID, w2.WID)
	}

	plid := worlddb.PortListID(string(w.WID) + ":main")
	ports, err := s.PortalsInList(plid)
	if err != nil {
		t.Fatalf("PortalsInList: %v", err)
	}
	if len(ports) != 1 {
		t.Errorf("ports after reload = %d, want 1", len(ports))
	}
}

func TestApplyUnknownCreator(t *testing.T) {
	s := openTestStore(t)
	def := parseSample(t)
	if _, err := Apply(s, def); err == nil || !strings.Contains(err.Error(), "creator") {
		t.Errorf("Apply = %v", err)
	}
}

func TestApplyRefusesErrors(t *testing.T) {
	s := openTestStore(t)
	seedCreator(t, s)
	def, err := Parse(strings.NewReader("$name: Bad\n$bogus: 1\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Apply(s, def); err == nil {
		t.Error("Apply accepted a definition with errors")
	}
}

func TestRemoveProps(t *testing.T) {
	s := openTestStore(t)
	seedCreator(t, s)
	def := parseSample(t)
	w, err := Apply(s, def)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	start, err := s.LocationByKey(w.WID, "start")
	if err != nil {
		t.Fatalf("LocationByKey: %v", err)
	}

	if err := RemoveProps(s, w.WID, "", "count"); err != nil {
		t.Fatalf("RemoveProps: %v", err)
	}
	if _, found, _ := s.GetProp(worlddb.PropKey{Store: worlddb.WorldProp, ID1: string(w.WID), Name: "count"}); found {
		t.Error("count still present")
	}
	if _, found, _ := s.GetProp(worlddb.PropKey{Store: worlddb.WorldProp, ID1: string(w.WID), Name: "ldesc"}); !found {
		t.Error("ldesc removed along with count")
	}

	if err := RemoveProps(s, w.WID, "start", ""); err != nil {
		t.Fatalf("RemoveProps loc: %v", err)
	}
	if _, found, _ := s.GetProp(worlddb.PropKey{Store: worlddb.WorldProp, ID1: string(w.WID), ID2: string(start.LocID), Name: "desc"}); found {
		t.Error("location props still present")
	}

	err = RemoveProps(s, w.WID, "elsewhere", "")
	if err == nil || !strings.Contains(err.Error(), "location not found") {
		t.Errorf("RemoveProps = %v", err)
	}
}

func TestFormatProp(t *testing.T) {
	cases := []struct {
		val  any
		want string
	}{
		{&worlddb.Text{Text: "one\n\ntwo"}, "one\n\ttwo"},
		{&worlddb.Code{Text: "x + 1"}, "*code x + 1"},
		{&worlddb.Code{Text: "if x:\n  1"}, "*code\n  if x:\n    1"},
		{&worlddb.Move{Loc: "cellar"}, "*move cellar"},
		{&worlddb.Event{Text: "Ding.", OText: "A ding."}, "*event Ding.\n\t- otext: A ding."},
		{int64(5), "5"},
		{true, "True"},
	}
	for _, tc := range cases {
		if got := FormatProp(tc.val); got != tc.want {
			t.Errorf("FormatProp(%#v) = %q, want %q", tc.val, got, tc.want)
		}
	}
}
