package markup

import (
	"errors"
	"reflect"
	"testing"
)

func mustParse(t *testing.T, text string) []Node {
	t.Helper()
	ls, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", text, err)
	}
	return ls
}

func TestParse(t *testing.T) {
	cases := []struct {
		text string
		want []Node
	}{
		{"hello", []Node{Str("hello")}},
		{"[[hello]]", []Node{Interpolate{"hello"}}},
		{"One [[two]] three[[four]][[five]].",
			[]Node{Str("One "), Interpolate{"two"}, Str(" three"), Interpolate{"four"}, Interpolate{"five"}, Str(".")}},
		{"[[ x = [] ]]", []Node{Interpolate{"x = []"}}},
		{"[hello]", []Node{Link{Target: "hello"}, Str("hello"), EndLink{}}},
		{"[Go to sleep.]", []Node{Link{Target: "go_to_sleep"}, Str("Go to sleep."), EndLink{}}},
		{"One [two] three[FOUR|half][FIVE].",
			[]Node{Str("One "), Link{Target: "two"}, Str("two"), EndLink{}, Str(" three"),
				Link{Target: "half"}, Str("FOUR"), EndLink{}, Link{Target: "five"}, Str("FIVE"), EndLink{}, Str(".")}},
		{"[One [[two]] three[[four]][[five]].| foobar ]",
			[]Node{Link{Target: "foobar"}, Str("One "), Interpolate{"two"}, Str(" three"),
				Interpolate{"four"}, Interpolate{"five"}, Str("."), EndLink{}}},
		{"[hello||world]", []Node{Link{Target: "world"}, Str("hello"), Str(" world"), EndLink{}}},
		{"[Bottle of || red wine].",
			[]Node{Link{Target: "red_wine"}, Str("Bottle of "), Str("  red wine"), EndLink{}, Str(".")}},
		{"One.\nTwo.", []Node{Str("One.\nTwo.")}},
		{"One.\n\nTwo.[[$para]]Three.",
			[]Node{Str("One."), ParaBreak{}, Str("Two."), ParaBreak{}, Str("Three.")}},
		{"\nOne. \n \n Two.\n\n\nThree. \n\t\n  ",
			[]Node{Str("\nOne."), ParaBreak{}, Str("Two."), ParaBreak{}, Str("Three."), ParaBreak{}}},
		{"[||Link] to [this||and\n\nthat].",
			[]Node{Link{Target: "link"}, Str(" Link"), EndLink{}, Str(" to "),
				Link{Target: "and_that"}, Str("this"), Str(" and"), ParaBreak{}, Str("that"), EndLink{}, Str(".")}},
		{"[foo|http://eblong.com/]",
			[]Node{Link{Target: "http://eblong.com/", External: true}, Str("foo"), EndLink{External: true}}},
		{"One [foo| http://eblong.com/ ] two.",
			[]Node{Str("One "), Link{Target: "http://eblong.com/", External: true}, Str("foo"), EndLink{External: true}, Str(" two.")}},
		{"[[name]] [[$name]] [[ $name ]].",
			[]Node{Interpolate{"name"}, Str(" "), PlayerRef{Key: "name"}, Str(" "), PlayerRef{Key: "name"}, Str(".")}},
		{"This is an [[$em]]italic[[$/em]] word.",
			[]Node{Str("This is an "), Style{Key: "emph"}, Str("italic"), EndStyle{Key: "emph"}, Str(" word.")}},
		{"An [$em]italic[ $/em ] word.[$para]Yeah.",
			[]Node{Str("An "), Style{Key: "emph"}, Str("italic"), EndStyle{Key: "emph"}, Str(" word."), ParaBreak{}, Str("Yeah.")}},
		{"[[$if x]]yes[[$else]]no[[$end]]",
			[]Node{If{"x"}, Str("yes"), Else{}, Str("no"), End{}}},
		{"[[$bogus]]", []Node{Str("[Unknown key: $bogus]")}},
		{"[[$openbracket]]x[[$closebracket]]",
			[]Node{OpenBracket{}, Str("x"), CloseBracket{}}},
	}

	for _, tc := range cases {
		got := mustParse(t, tc.text)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Parse(%q)\n got: %#v\nwant: %#v", tc.text, got, tc.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		text string
		want error
	}{
		{"[bar", ErrUnterminatedLink},
		{"[[bar", ErrUnterminatedInterp},
		{"[ [x] ]", ErrNestedLink},
	}
	for _, tc := range cases {
		if _, err := Parse(tc.text); !errors.Is(err, tc.want) {
			t.Errorf("Parse(%q): err = %v, want %v", tc.text, err, tc.want)
		}
	}
}

func TestFlattenPreservesLiterals(t *testing.T) {
	// Tags dropped, every literal character kept in order.
	texts := []string{
		"hello",
		"One [[two]] three",
		"[One [[two]].|target] after",
		"This is an [[$em]]italic[[$/em]] word.",
	}
	wants := []string{
		"hello",
		"One  three",
		"One . after",
		"This is an italic word.",
	}
	for i, text := range texts {
		got := Flatten(mustParse(t, text))
		if got != wants[i] {
			t.Errorf("Flatten(Parse(%q)) = %q, want %q", text, got, wants[i])
		}
	}
}
