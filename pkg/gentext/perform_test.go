package gentext

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"testing"
)

// genCtx is a minimal Context for exercising templates directly.
type genCtx struct {
	seed    []byte
	count   int
	params  map[string]any
	accum   []any
	symbols map[string]any
	ticks   int
	budget  int
}

var errTickBudget = errors.New("tick budget exhausted")

func newGenCtx(seed string) *genCtx {
	return &genCtx{
		seed:    []byte(seed),
		params:  map[string]any{},
		symbols: map[string]any{},
		budget:  10000,
	}
}

func (c *genCtx) Tick() error {
	c.ticks++
	if c.ticks > c.budget {
		return errTickBudget
	}
	return nil
}

func (c *genCtx) EvalSymbol(name string) (any, error) {
	val, ok := c.symbols[name]
	if !ok {
		return nil, errors.New("symbol not found: " + name)
	}
	return val, nil
}

func (c *genCtx) Append(val any)           { c.accum = append(c.accum, val) }
func (c *genCtx) GenSeed() []byte          { return c.seed }
func (c *genCtx) GenParams() map[string]any { return c.params }

func (c *genCtx) NextGenCount() int {
	n := c.count
	c.count++
	return n
}

// render performs a template and cooks the accumulator to a string.
func render(t *testing.T, tmpl *Template, ctx *genCtx) string {
	t.Helper()
	if err := tmpl.Perform(ctx, "prop"); err != nil {
		t.Fatalf("Perform failed: %v", err)
	}
	var sb strings.Builder
	cook := NewCooker(stringSink{&sb})
	for _, val := range ctx.accum {
		cook.Append(val)
	}
	cook.Finish()
	return sb.String()
}

type stringSink struct{ sb *strings.Builder }

func (s stringSink) WriteString(v string) { s.sb.WriteString(v) }
func (s stringSink) WritePara()           { s.sb.WriteString("\n\n") }

func TestPerformSequence(t *testing.T) {
	tmpl := mustTemplate(t, `['the', 'wide', 'river']`)
	got := render(t, tmpl, newGenCtx("s"))
	if got != "The wide river." {
		t.Errorf("got %q", got)
	}
}

func TestPerformLiteralTypes(t *testing.T) {
	tmpl := mustTemplate(t, `[7, 'stones', None, True]`)
	got := render(t, tmpl, newGenCtx("s"))
	if got != "7 stones True." {
		t.Errorf("got %q", got)
	}
}

func TestPerformAltMembership(t *testing.T) {
	tmpl := mustTemplate(t, `('oak', 'elm', 'ash')`)
	got := render(t, tmpl, newGenCtx("seed-1"))
	switch got {
	case "Oak.", "Elm.", "Ash.":
	default:
		t.Errorf("got %q, want one of the three alternatives", got)
	}
}

func TestPerformDeterministic(t *testing.T) {
	src := `[('oak', 'elm', 'ash'), Comma, ('tall', 'short'), Opt(0.5, 'maybe'), Weight(1, 'x', 2, 'y')]`
	tmpl := mustTemplate(t, src)
	first := render(t, tmpl, newGenCtx("fixed-seed"))
	for i := 0; i < 5; i++ {
		again := render(t, tmpl, newGenCtx("fixed-seed"))
		if again != first {
			t.Fatalf("render %d: got %q, first was %q", i, again, first)
		}
	}
}

func TestPerformShuffleCyclesWithoutRepeat(t *testing.T) {
	tmpl := mustTemplate(t, `Shuffle('red', 'green', 'blue')`)
	ctx := newGenCtx("s")
	var got []string
	for i := 0; i < 3; i++ {
		start := len(ctx.accum)
		if err := tmpl.Perform(ctx, "prop"); err != nil {
			t.Fatalf("Perform failed: %v", err)
		}
		if len(ctx.accum) != start+1 {
			t.Fatalf("pass %d appended %d items", i, len(ctx.accum)-start)
		}
		got = append(got, ctx.accum[start].(string))
	}
	sort.Strings(got)
	want := []string{"blue", "green", "red"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("three picks = %v, want a permutation of %v", got, want)
	}
}

func TestPerformWeightEdges(t *testing.T) {
	tmpl := mustTemplate(t, `Weight(1, 'always', 0, 'never')`)
	if got := render(t, tmpl, newGenCtx("s")); got != "Always." {
		t.Errorf("got %q", got)
	}
	tmpl = mustTemplate(t, `Weight(0, 'never', 1, 'always')`)
	if got := render(t, tmpl, newGenCtx("s")); got != "Always." {
		t.Errorf("got %q", got)
	}
}

func TestPerformOptEdges(t *testing.T) {
	tmpl := mustTemplate(t, `['x', Opt(1.0, 'always'), Opt(0.0, 'never')]`)
	if got := render(t, tmpl, newGenCtx("s")); got != "X always." {
		t.Errorf("got %q", got)
	}
}

func TestPerformKeys(t *testing.T) {
	src := `[SetKey('mood', 'dark'), IfKey('mood', 'dark', 'gloom', 'cheer'),
		SwitchKey('mood', 'light', 'lamps', 'dark', 'shadows', 'nothing')]`
	tmpl := mustTemplate(t, src)
	if got := render(t, tmpl, newGenCtx("s")); got != "Gloom shadows." {
		t.Errorf("got %q", got)
	}
}

func TestPerformSwitchKeyElse(t *testing.T) {
	src := `[SetKey('mood', 'odd'), SwitchKey('mood', 'light', 'lamps', 'fallback')]`
	tmpl := mustTemplate(t, src)
	if got := render(t, tmpl, newGenCtx("s")); got != "Fallback." {
		t.Errorf("got %q", got)
	}
}

func TestPerformSetKeyFromSymbol(t *testing.T) {
	tmpl := mustTemplate(t, `[SetKey('mood', room_mood), IfKey('mood', 'dark', 'gloom', 'cheer')]`)
	ctx := newGenCtx("s")
	ctx.symbols["room_mood"] = "dark"
	if got := render(t, tmpl, ctx); got != "Gloom." {
		t.Errorf("got %q", got)
	}
}

func TestPerformSymbolLookup(t *testing.T) {
	tmpl := mustTemplate(t, `['beside the', lake_name]`)
	ctx := newGenCtx("s")
	ctx.symbols["lake_name"] = "mirror lake"
	if got := render(t, tmpl, ctx); got != "Beside the mirror lake." {
		t.Errorf("got %q", got)
	}

	// Empty and nil lookups contribute nothing.
	tmpl = mustTemplate(t, `['shore', lake_name]`)
	ctx = newGenCtx("s")
	ctx.symbols["lake_name"] = ""
	if got := render(t, tmpl, ctx); got != "Shore." {
		t.Errorf("got %q", got)
	}
}

func TestPerformSymbolError(t *testing.T) {
	tmpl := mustTemplate(t, `[missing_prop]`)
	ctx := newGenCtx("s")
	if err := tmpl.Perform(ctx, "prop"); err == nil {
		t.Fatal("expected lookup error")
	}
}

func TestPerformTickBudget(t *testing.T) {
	tmpl := mustTemplate(t, `['a', 'b', 'c', 'd']`)
	ctx := newGenCtx("s")
	ctx.budget = 2
	if err := tmpl.Perform(ctx, "prop"); !errors.Is(err, errTickBudget) {
		t.Fatalf("err = %v, want tick budget error", err)
	}
}

func TestPerformDistinctPropertiesShareSeed(t *testing.T) {
	// Selections hash the property name, so two properties rendered in
	// one pass use independent choices while staying deterministic.
	tmpl := mustTemplate(t, `('a', 'b', 'c', 'd', 'e', 'f', 'g', 'h')`)
	pick := func(propname string) string {
		ctx := newGenCtx("shared")
		if err := tmpl.Perform(ctx, propname); err != nil {
			t.Fatalf("Perform failed: %v", err)
		}
		return ctx.accum[0].(string)
	}
	if pick("first") != pick("first") {
		t.Error("same property must repeat its choice")
	}
	if pick("second") != pick("second") {
		t.Error("same property must repeat its choice")
	}
}
