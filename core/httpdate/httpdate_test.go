package httpdate

import (
	"testing"
	"time"
)

func TestRefreshUpdatesBothStrings(t *testing.T) {
	c := New()
	t1 := time.Date(2024, time.March, 2, 10, 0, 0, 0, time.UTC)
	c.Refresh(t1)

	wantDate := "Sat, 02 Mar 2024 10:00:00 GMT"
	if c.Date() != wantDate {
		t.Fatalf("Date() = %q, want %q", c.Date(), wantDate)
	}

	wantExpires := "Sat, 02 Mar 2024 10:10:00 GMT"
	if c.Expires() != wantExpires {
		t.Fatalf("Expires() = %q, want %q", c.Expires(), wantExpires)
	}
}

func TestParseIfModifiedSince(t *testing.T) {
	cases := []struct {
		name string
		in   string
		ok   bool
	}{
		{"empty", "", false},
		{"garbage", "not-a-date", false},
		{"valid", "Sat, 02 Mar 2024 10:00:00 GMT", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := ParseIfModifiedSince(tc.in)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
		})
	}
}

func TestFormatModTimeRoundTrip(t *testing.T) {
	t1 := time.Date(2024, time.March, 2, 10, 0, 0, 0, time.UTC)
	s := FormatModTime(t1)

	parsed, ok := ParseIfModifiedSince(s)
	if !ok {
		t.Fatalf("ParseIfModifiedSince(%q) failed", s)
	}
	if !parsed.Equal(t1) {
		t.Fatalf("round-trip = %v, want %v", parsed, t1)
	}
}
