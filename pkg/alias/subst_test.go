package alias

import (
	"strings"
	"testing"
)

// fixed returns a deterministic "random" source for tests.
func fixed(v int) func(int) int {
	return func(n int) int { return v % n }
}

// TestSubstitute tests each escape and their fixed application order.
func TestSubstitute(t *testing.T) {
	// Setup test cases
	tests := []struct {
		name       string
		repl       string
		query      string
		sender     string
		expected   string
		wantNotice bool
	}{
		{
			name:     "PlainText",
			repl:     "hello there",
			sender:   "alice!u@h",
			expected: "hello there",
		},
		{
			name:     "QueryRemainder",
			repl:     "you said: %q",
			query:    "2d6 please",
			sender:   "alice!u@h",
			expected: "you said: 2d6 please",
		},
		{
			name:     "QueryFallsBackToNick",
			repl:     "hi %q",
			query:    "",
			sender:   "alice!u@h",
			expected: "hi alice",
		},
		{
			name:     "NickEscape",
			repl:     "%u rolls the dice",
			sender:   "alice!u@h",
			expected: "alice rolls the dice",
		},
		{
			name:     "NickWithoutBang",
			repl:     "%u!",
			sender:   "console",
			expected: "console!",
		},
		{
			name:     "RandomInteger",
			repl:     "lucky number %R",
			sender:   "alice!u@h",
			expected: "lucky number 42",
		},
		{
			name:       "NoticeFlagStripped",
			repl:       "%npsst %u",
			sender:     "alice!u@h",
			expected:   "psst alice",
			wantNotice: true,
		},
		{
			name:     "ActionWrap",
			repl:     "%m waves at %u",
			sender:   "alice!u@h",
			expected: "\001ACTION waves at alice\001",
		},
		{
			name:       "ActionAndNotice",
			repl:       "%n%m hugs %q",
			query:      "bob",
			sender:     "alice!u@h",
			expected:   "\001ACTION hugs bob\001",
			wantNotice: true,
		},
	}
	// Run test cases
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, notice := Substitute(test.repl, test.query, test.sender, fixed(42))
			if got != test.expected {
				t.Errorf("expected %q, got %q", test.expected, got)
			}
			if notice != test.wantNotice {
				t.Errorf("expected notice=%v, got %v", test.wantNotice, notice)
			}
		})
	}
}

// TestSubstituteRandomRange tests that %R stays within [0, 100] with
// the real source.
func TestSubstituteRandomRange(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		got, _ := Substitute("%R", "", "a!b@c", nil)
		seen[got] = true
		n := 0
		for _, r := range got {
			if r < '0' || r > '9' {
				t.Fatalf("non-digit output %q", got)
			}
			n = n*10 + int(r-'0')
		}
		if n < 0 || n > 100 {
			t.Fatalf("out of range: %d", n)
		}
	}
	if len(seen) < 2 {
		t.Fatal("random source looks constant")
	}
}

// TestSubstituteMultipleRandoms tests that each %R draws independently.
func TestSubstituteMultipleRandoms(t *testing.T) {
	draws := []int{7, 13}
	i := 0
	intn := func(n int) int { v := draws[i%len(draws)]; i++; return v % n }
	got, _ := Substitute("%R and %R", "", "a!b@c", intn)
	if got != "7 and 13" {
		t.Errorf("expected independent draws, got %q", got)
	}
}

func TestSubstituteOutbound(t *testing.T) {
	got := SubstituteOutbound("%m says %R", fixed(5))
	if !strings.HasPrefix(got, "\001ACTION") || !strings.Contains(got, "5") {
		t.Errorf("unexpected output %q", got)
	}
	if got := SubstituteOutbound("plain", nil); got != "plain" {
		t.Errorf("plain text must pass through, got %q", got)
	}
}
