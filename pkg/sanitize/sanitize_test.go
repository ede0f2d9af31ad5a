package sanitize

import (
	"strings"
	"testing"
)

func Test_RedactPII(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"mail me at jane.doe@example.com today", "mail me at [redacted email] today"},
		{"call (555) 123-4567 please", "call [redacted phone] please"},
		{"call +62 812 3456 7890", "call [redacted phone]"},
		{"deposit of 1200 in 2023", "deposit of 1200 in 2023"},
	}
	for _, c := range cases {
		if got := RedactPII(c.in); got != c.want {
			t.Fatalf("RedactPII(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func Test_Summary(t *testing.T) {
	if got := Summary("short text", 240); got != "short text" {
		t.Fatalf("unexpected %q", got)
	}

	got := Summary("the landlord kept the whole deposit", 20)
	if got != "the landlord kept…" {
		t.Fatalf("want cut at word boundary, got %q", got)
	}

	long := strings.Repeat("x", 50)
	if got := Summary(long, 10); got != strings.Repeat("x", 10)+"…" {
		t.Fatalf("want hard cut, got %q", got)
	}
}
