package registry

import (
	"errors"
	"testing"
)

type name string

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := New[name, int](nil)

	if err := r.Register("Transfer", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := r.Register("Transfer", 2)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	rec, ok := r.Get("Transfer")
	if !ok || rec != 1 {
		t.Errorf("expected original record 1, got %d (found=%v)", rec, ok)
	}
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := New[name, int](nil)
	r.Register("a", 1)

	if _, ok := r.Remove("a"); !ok {
		t.Fatalf("expected first remove to find the record")
	}
	if _, ok := r.Remove("a"); ok {
		t.Errorf("expected second remove to report absence")
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistry_NamesKeepInsertionOrder(t *testing.T) {
	r := New[name, int](nil)
	for i, n := range []name{"c", "a", "b"} {
		r.Register(n, i)
	}
	r.Remove("a")
	r.Register("a", 9)

	got := r.Names()
	want := []name{"c", "b", "a"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	// Mutating the returned slice must not affect the registry.
	got[0] = "z"
	if r.Names()[0] != "c" {
		t.Errorf("Names should return a copy")
	}
}

func TestRegistry_GetMissing(t *testing.T) {
	r := New[name, *int](nil)
	if rec, ok := r.Get("missing"); ok || rec != nil {
		t.Errorf("expected no record, got %v", rec)
	}
	if r.Has("missing") {
		t.Errorf("Has should be false for missing name")
	}
}
