package extract

import "testing"

func TestCleanCollapsesWhitespace(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "runs of spaces and tabs",
			in:   "Players  take \t turns   drawing cards.",
			want: "Players take turns drawing cards.",
		},
		{
			name: "trims ends",
			in:   "  \n  4 players maximum  \n ",
			want: "4 players maximum",
		},
		{
			name: "paragraph breaks survive",
			in:   "Setup:\nShuffle the deck.\n\nScoring:\nCount the points.",
			want: "Setup:\nShuffle the deck.\n\nScoring:\nCount the points.",
		},
		{
			name: "three or more newlines collapse to two",
			in:   "First section.\n\n\n\n\nSecond section.",
			want: "First section.\n\nSecond section.",
		},
		{
			name: "blank lines with stray spaces",
			in:   "a\n   \n \t \nb",
			want: "a\n\nb",
		},
		{
			name: "windows line endings",
			in:   "one\r\n\r\n\r\ntwo",
			want: "one\n\ntwo",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clean(tc.in); got != tc.want {
				t.Fatalf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"single line",
		"a  b\tc",
		"a\n\n\n\nb\n\nc",
		"  mixed \t content\n\nwith\n\n\n\nbreaks  ",
		"unicode spaces here",
		"\x00null\x00bytes\x00",
	}
	for _, in := range inputs {
		once := Clean(in)
		twice := Clean(once)
		if once != twice {
			t.Fatalf("Clean not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestExtractFileMissing(t *testing.T) {
	e := New()
	if _, err := e.ExtractFile("testdata/does-not-exist.pdf"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
