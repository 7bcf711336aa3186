package sanitize

import "testing"

func TestText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"plain", "Instagram", 0, "Instagram"},
		{"tags", "<p>Friend <b>referral</b></p>", 0, "Friend referral"},
		{"encoded tags", "&lt;script&gt;x&lt;/script&gt;ok", 0, "xok"},
		{"whitespace", "  walk \n\n in\t ", 0, "walk in"},
		{"nbsp", "Google&nbsp;Maps", 0, "Google Maps"},
		{"truncate", "abcdef", 3, "abc"},
		{"truncate runes", "crème brûlée", 5, "crème"},
	}

	for _, tc := range cases {
		if got := Text(tc.in, tc.max); got != tc.want {
			t.Errorf("%s: Text(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestOptional(t *testing.T) {
	if got := Optional("<br/>  ", 0); got != nil {
		t.Fatalf("expected nil for markup-only input, got %q", *got)
	}
	got := Optional(" <i>Yelp</i> ", 0)
	if got == nil || *got != "Yelp" {
		t.Fatalf("unexpected result %v", got)
	}
}
