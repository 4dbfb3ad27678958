package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestRegistry(t *testing.T) (*Registry, *time.Time) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	r := New(log)
	now := time.Unix(10000, 0)
	r.now = func() time.Time { return now }
	return r, &now
}

// TestRegister tests announcement parsing and upserting.
func TestRegister(t *testing.T) {
	r, _ := newTestRegistry(t)

	err := r.Register("cmd=weather|descr=Weather report|agrp=games|athr=bob|loc=vps1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	e, ok := r.Lookup("weather")
	if !ok {
		t.Fatal("weather not found after registration")
	}
	if e.Description != "Weather report" || e.Group != "games" || e.Author != "bob" || e.Location != "vps1" {
		t.Errorf("entry mismatch: %+v", e)
	}
	if e.Hardcoded {
		t.Error("external registration must not be hardcoded")
	}
}

func TestRegisterMissingCmd(t *testing.T) {
	r, _ := newTestRegistry(t)
	if err := r.Register("descr=no command here"); !errors.Is(err, ErrMissingCommand) {
		t.Fatalf("expected ErrMissingCommand, got %v", err)
	}
}

// TestRegisterCannotOverrideHardcoded tests that built-ins win over
// plugin announcements.
func TestRegisterCannotOverrideHardcoded(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.AddHardcoded("help", "Help for commands", "")

	if err := r.Register("cmd=help|descr=evil override"); !errors.Is(err, ErrHardcoded) {
		t.Fatalf("expected ErrHardcoded, got %v", err)
	}
	e, _ := r.Lookup("help")
	if e.Description != "Help for commands" || !e.Hardcoded {
		t.Errorf("hardcoded entry was modified: %+v", e)
	}
}

// TestEviction tests the janitor step: stale externals go to the gone
// table, hardcoded entries survive.
func TestEviction(t *testing.T) {
	r, now := newTestRegistry(t)
	r.AddHardcoded("help", "Help", "")
	if err := r.Register("cmd=weather|descr=w"); err != nil {
		t.Fatal(err)
	}

	// Not yet stale.
	r.evict(now.Add(9 * time.Second))
	if _, ok := r.Lookup("weather"); !ok {
		t.Fatal("weather evicted before TTL")
	}

	// Stale now.
	evictedAt := now.Add(11 * time.Second)
	r.evict(evictedAt)
	if _, ok := r.Lookup("weather"); ok {
		t.Fatal("weather should be evicted after TTL")
	}
	if _, ok := r.Lookup("help"); !ok {
		t.Fatal("hardcoded entry must never be evicted")
	}
	when, ok := r.Gone("weather")
	if !ok || !when.Equal(evictedAt) {
		t.Errorf("gone table: ok=%v when=%v, expected %v", ok, when, evictedAt)
	}
}

// TestReRegistrationClearsGone tests that a fresh announcement removes
// the eviction record.
func TestReRegistrationClearsGone(t *testing.T) {
	r, now := newTestRegistry(t)
	if err := r.Register("cmd=weather|descr=w"); err != nil {
		t.Fatal(err)
	}
	r.evict(now.Add(11 * time.Second))
	if _, ok := r.Gone("weather"); !ok {
		t.Fatal("expected eviction record")
	}
	if err := r.Register("cmd=weather|descr=w"); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Gone("weather"); ok {
		t.Fatal("eviction record must be cleared on re-registration")
	}
}

func TestCommandsSorted(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.AddHardcoded("more", "", "")
	r.AddHardcoded("alias", "", "")
	r.AddHardcoded("help", "", "")
	got := r.Commands()
	expected := []string{"alias", "help", "more"}
	for i, cmd := range expected {
		if got[i] != cmd {
			t.Fatalf("expected %v, got %v", expected, got)
		}
	}
}
