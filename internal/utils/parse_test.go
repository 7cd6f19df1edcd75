package utils

import (
	"errors"
	"testing"
	"time"
)

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"x", 5, 5},
		{" 42", 7, 7},
		{"999999999999999999999999", -1, -1},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestClampInt(t *testing.T) {
	if got := ClampInt(0, 1, 10); got != 1 {
		t.Fatalf("low: %d", got)
	}
	if got := ClampInt(50, 1, 10); got != 10 {
		t.Fatalf("high: %d", got)
	}
	if got := ClampInt(5, 1, 10); got != 5 {
		t.Fatalf("mid: %d", got)
	}
}

func TestParseTimeParam(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	got, err := ParseTimeParam("2024-03-01T12:00:00Z")
	if err != nil || !got.Equal(want) {
		t.Fatalf("rfc3339: got %v err %v", got, err)
	}
	got, err = ParseTimeParam(" 1709294400 ")
	if err != nil || !got.Equal(want) {
		t.Fatalf("unix: got %v err %v", got, err)
	}
	for _, bad := range []string{"", "yesterday", "2024-03-01"} {
		if _, err := ParseTimeParam(bad); !errors.Is(err, ErrBadTime) {
			t.Fatalf("ParseTimeParam(%q) err = %v", bad, err)
		}
	}
}
