package ids

import (
	"errors"
	"sort"
	"strings"
	"testing"
	"time"
)

func TestNewCarriesKindAndTime(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	id := NewAt(User, at)
	if !strings.HasPrefix(id, "usr_") {
		t.Fatalf("unexpected prefix: %s", id)
	}
	kind, _, err := Parse(id)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if kind != User {
		t.Fatalf("unexpected kind %q", kind)
	}
	got, err := Time(id)
	if err != nil {
		t.Fatalf("time: %v", err)
	}
	if !got.Equal(at) {
		t.Fatalf("time = %v, want %v", got, at)
	}
}

func TestNewIsMonotonic(t *testing.T) {
	out := make([]string, 100)
	for i := range out {
		out[i] = New(Credential)
	}
	if !sort.StringsAreSorted(out) {
		t.Fatal("identifiers are not sorted")
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "usr", "_01J0000000000000000000USER", "usr_nope"} {
		if _, _, err := Parse(id); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Parse(%q) err = %v", id, err)
		}
	}
}
