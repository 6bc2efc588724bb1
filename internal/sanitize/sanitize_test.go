package sanitize

import (
	"regexp"
	"testing"
)

var validPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func TestNameIdempotent(t *testing.T) {
	cases := []string{"echo.text", "weird name!", "already_fine-1", "多字节"}
	for _, c := range cases {
		once := Name(c)
		twice := Name(once)
		if once != twice {
			t.Fatalf("Name not idempotent for %q: %q vs %q", c, once, twice)
		}
		if !validPattern.MatchString(once) {
			t.Fatalf("Name(%q) = %q does not match allowed alphabet", c, once)
		}
	}
}

func TestNameMapRoundTrip(t *testing.T) {
	m := NewNameMap()
	s := m.Add("echo.text")
	if m.Original(s) != "echo.text" {
		t.Fatalf("expected round-trip, got %q", m.Original(s))
	}
}
