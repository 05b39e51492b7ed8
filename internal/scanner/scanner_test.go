package scanner

import "testing"

var tokens = []string{"!kudos", "&#8710;"}

func TestContainsToken(t *testing.T) {
	cases := []struct {
		name string
		body string
		want bool
	}{
		{"plain match", "Great point, !kudos to you", true},
		{"no token", "I disagree entirely", false},
		{"entity token", "you changed my view &#8710;", true},
		{"token only in blockquote", "&gt; he said !kudos\n\nbut I disagree", false},
		{"token only in angle quote", "> !kudos\nnope", false},
		{"token only in code block", "    !kudos in code", false},
		{"token after quote ends", "&gt; quoted !kudos\n\n!kudos for real though", true},
		{"continuation line of quote skipped", "&gt; first quoted line\nstill the same quote !kudos", false},
		{"indented quote marker", "   &gt; nested quote !kudos\n\nplain text", false},
		{"empty body", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ContainsToken(tc.body, tokens); got != tc.want {
				t.Fatalf("ContainsToken(%q) = %v, want %v", tc.body, got, tc.want)
			}
		})
	}
}

func TestContainsTokenEmptyTokens(t *testing.T) {
	if ContainsToken("anything at all", nil) {
		t.Fatal("no tokens configured should never match")
	}
}
