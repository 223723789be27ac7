package ids

import (
	"testing"
	"time"
)

func TestNewIsSortableAndCarriesTime(t *testing.T) {
	before := time.Now().Add(-time.Second)
	a := New()
	b := New()
	if a == b {
		t.Fatalf("expected unique ids, got %s twice", a)
	}
	if a > b {
		t.Fatalf("expected monotonic ids: %s > %s", a, b)
	}
	ts, err := Time(a)
	if err != nil {
		t.Fatalf("Time: %v", err)
	}
	if ts.Before(before) || ts.After(time.Now().Add(time.Second)) {
		t.Fatalf("unexpected embedded time %v", ts)
	}
	if _, err := Time("not-an-id"); err == nil {
		t.Fatal("expected parse error")
	}
}
