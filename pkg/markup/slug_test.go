package markup

import "testing"

func TestSlug(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", "_"},
		{" ", "_"},
		{"!!!", "_"},
		{"hello", "hello"},
		{"Hello", "hello"},
		{"  hello  ", "hello"},
		{"Go to sleep.", "go_to_sleep"},
		{"Bottle of red wine", "bottle_of_red_wine"},
		{"snake_case_name", "snake_case_name"},
		{"tab\tand\nnewline", "tab_and_newline"},
		{"mixed -- punctuation!", "mixed_punctuation"},
		{"café au lait", "cafe_au_lait"},
		{"naïve", "naive"},
		{"42nd street", "_42nd_street"},
		{"7", "_7"},
		{"_7", "_7"},
		{"__doubled__", "__doubled__"},
		{"日本語", "_"},
	}
	for _, tc := range cases {
		if got := Slug(tc.in); got != tc.want {
			t.Errorf("Slug(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSlugIdempotent(t *testing.T) {
	inputs := []string{
		"", "Go to sleep.", "42nd street", "café au lait",
		"  spaces   everywhere  ", "already_a_slug", "_7", "!!!",
	}
	for _, in := range inputs {
		once := Slug(in)
		if twice := Slug(once); twice != once {
			t.Errorf("Slug(Slug(%q)): %q != %q", in, twice, once)
		}
	}
}
