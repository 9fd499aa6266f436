package gentext

import (
	"errors"
	"testing"
)

func mustTemplate(t *testing.T, src string) *Template {
	t.Helper()
	tmpl, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", src, err)
	}
	return tmpl
}

func TestParseLiterals(t *testing.T) {
	cases := []struct {
		src string
		val any
	}{
		{`'hello'`, "hello"},
		{`"double"`, "double"},
		{`'esc\'aped\n'`, "esc'aped\n"},
		{`42`, int64(42)},
		{`2.5`, 2.5},
		{`True`, true},
		{`False`, false},
		{`None`, nil},
	}
	for _, tc := range cases {
		tmpl := mustTemplate(t, tc.src)
		lit, ok := tmpl.Root.(*Literal)
		if !ok {
			t.Errorf("Parse(%q): root is %T, want *Literal", tc.src, tmpl.Root)
			continue
		}
		if lit.Val != tc.val {
			t.Errorf("Parse(%q) = %#v, want %#v", tc.src, lit.Val, tc.val)
		}
	}
}

func TestParseEmpty(t *testing.T) {
	for _, src := range []string{"", "\n\n", "# just a comment\n"} {
		tmpl := mustTemplate(t, src)
		if tmpl.Root != nil {
			t.Errorf("Parse(%q): root = %#v, want nil", src, tmpl.Root)
		}
	}
}

func TestParseStructure(t *testing.T) {
	tmpl := mustTemplate(t, `[('x', 'y'), 'z']`)
	seq, ok := tmpl.Root.(*Seq)
	if !ok {
		t.Fatalf("root is %T, want *Seq", tmpl.Root)
	}
	if seq.Prefix != "" || len(seq.Nodes) != 2 {
		t.Fatalf("Seq = %+v", seq)
	}
	alt, ok := seq.Nodes[0].(*Alt)
	if !ok {
		t.Fatalf("first child is %T, want *Alt", seq.Nodes[0])
	}
	if alt.Prefix != ":seq_0" {
		t.Errorf("Alt prefix = %q, want %q", alt.Prefix, ":seq_0")
	}
	if len(alt.Nodes) != 2 {
		t.Errorf("Alt has %d children, want 2", len(alt.Nodes))
	}
}

func TestParseStatementsFormSequence(t *testing.T) {
	tmpl := mustTemplate(t, "'one'\n'two'; 'three'")
	seq, ok := tmpl.Root.(*Seq)
	if !ok {
		t.Fatalf("root is %T, want *Seq", tmpl.Root)
	}
	if len(seq.Nodes) != 3 {
		t.Fatalf("Seq has %d children, want 3", len(seq.Nodes))
	}
}

func TestParseGroupingVersusTuple(t *testing.T) {
	tmpl := mustTemplate(t, `('solo')`)
	if _, ok := tmpl.Root.(*Literal); !ok {
		t.Errorf("('solo'): root is %T, want *Literal", tmpl.Root)
	}
	tmpl = mustTemplate(t, `('solo',)`)
	if alt, ok := tmpl.Root.(*Alt); !ok || len(alt.Nodes) != 1 {
		t.Errorf("('solo',): root = %#v, want one-child *Alt", tmpl.Root)
	}
}

func TestParseNames(t *testing.T) {
	tmpl := mustTemplate(t, `window_view`)
	if sym, ok := tmpl.Root.(*Symbol); !ok || sym.Name != "window_view" {
		t.Errorf("root = %#v, want Symbol window_view", tmpl.Root)
	}
	tmpl = mustTemplate(t, `Comma`)
	if m, ok := tmpl.Root.(*Marker); !ok || m.Kind != MarkerComma {
		t.Errorf("root = %#v, want Comma marker", tmpl.Root)
	}
	tmpl = mustTemplate(t, `_`)
	if m, ok := tmpl.Root.(*Marker); !ok || m.Kind != MarkerRunOn {
		t.Errorf("root = %#v, want run-on marker", tmpl.Root)
	}
}

func TestParseCalls(t *testing.T) {
	tmpl := mustTemplate(t, `Opt(0.5, nod='maybe')`)
	opt, ok := tmpl.Root.(*Opt)
	if !ok {
		t.Fatalf("root is %T, want *Opt", tmpl.Root)
	}
	if opt.Chance != 0.5 {
		t.Errorf("chance = %v, want 0.5", opt.Chance)
	}

	tmpl = mustTemplate(t, `Weight(3, 'often', 1, 'rarely')`)
	wgt, ok := tmpl.Root.(*Weight)
	if !ok {
		t.Fatalf("root is %T, want *Weight", tmpl.Root)
	}
	if len(wgt.Entries) != 2 || wgt.Total != 4 {
		t.Errorf("Weight = %+v", wgt)
	}

	tmpl = mustTemplate(t, `SwitchKey('mood', 'dark', 'gloom', 'light', 'cheer', 'neither')`)
	sw, ok := tmpl.Root.(*SwitchKey)
	if !ok {
		t.Fatalf("root is %T, want *SwitchKey", tmpl.Root)
	}
	if len(sw.Cases) != 2 || sw.Else == nil {
		t.Errorf("SwitchKey = %+v", sw)
	}

	tmpl = mustTemplate(t, `IfKey('mood', 'dark', 'gloom')`)
	ik, ok := tmpl.Root.(*IfKey)
	if !ok {
		t.Fatalf("root is %T, want *IfKey", tmpl.Root)
	}
	if ik.Key != "mood" || ik.Value != "dark" || ik.False != nil {
		t.Errorf("IfKey = %+v", ik)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		`Seq`,                   // constructor without arguments
		`CamelName`,             // neither marker nor symbol
		`Bogus('x')`,            // unknown call
		`x = 5`,                 // statements not permitted
		`'unterminated`,         // bad string
		`Weight(-1, 'x')`,       // negative weight
		`Weight('x')`,           // odd arguments
		`Opt('high', 'x')`,      // chance must be a number
		`SetKey(5, 'v')`,        // key must be a string
		`Opt(0.5, 'x', zz='y')`, // unknown keyword
		`[`,                     // unterminated bracket
	}
	for _, src := range cases {
		if _, err := Parse(src); !errors.Is(err, ErrSyntax) {
			t.Errorf("Parse(%q): err = %v, want ErrSyntax", src, err)
		}
	}
}
