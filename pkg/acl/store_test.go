package acl

import (
	"database/sql"
	"errors"
	"testing"
)

// fakeDB records Exec calls and returns a scripted affected-row count.
// QueryRow/Query are not used by the statements under test.
type fakeDB struct {
	execQuery string
	execArgs  []any
	affected  int64
	err       error
}

type fakeResult struct{ n int64 }

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.n, nil }

func (f *fakeDB) Exec(query string, args ...any) (sql.Result, error) {
	f.execQuery = query
	f.execArgs = args
	return fakeResult{n: f.affected}, f.err
}

func (f *fakeDB) QueryRow(query string, args ...any) *sql.Row {
	panic("unexpected QueryRow")
}

func (f *fakeDB) Query(query string, args ...any) (*sql.Rows, error) {
	panic("unexpected Query")
}

// TestForgetRejectsWildcard tests the guard against '%' in nicks; the
// statement must never reach the database.
func TestForgetRejectsWildcard(t *testing.T) {
	s := NewStore(&fakeDB{})
	if err := s.Forget("al%ce"); !errors.Is(err, ErrWildcard) {
		t.Fatalf("expected ErrWildcard, got %v", err)
	}
}

func TestUpdateRejectsWildcard(t *testing.T) {
	s := NewStore(&fakeDB{})
	if err := s.Update("al%ce", "alice!u@h"); !errors.Is(err, ErrWildcard) {
		t.Fatalf("expected ErrWildcard, got %v", err)
	}
}

// TestAddLowercases tests that both sides of a grant are stored in
// lowercase form.
func TestAddLowercases(t *testing.T) {
	db := &fakeDB{affected: 1}
	s := NewStore(db)
	if err := s.Add("Alice!U@H", "Roll"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if db.execArgs[0] != "roll" || db.execArgs[1] != "alice!u@h" {
		t.Errorf("args not lowercased: %v", db.execArgs)
	}
}

// TestDelNotFound tests the rowcount check on delete.
func TestDelNotFound(t *testing.T) {
	s := NewStore(&fakeDB{affected: 0})
	if err := s.Del("alice!u@h", "roll"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	s = NewStore(&fakeDB{affected: 1})
	if err := s.Del("alice!u@h", "roll"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGroupDelNotFound(t *testing.T) {
	s := NewStore(&fakeDB{affected: 0})
	if err := s.GroupDel("alice!u@h", "games"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestForgetPattern tests the LIKE pattern used to match any host the
// nick was seen with.
func TestForgetPattern(t *testing.T) {
	db := &fakeDB{affected: 1}
	s := NewStore(db)
	if err := s.Forget("Alice"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	// The second Exec (acl_groups) is recorded last; both use the same
	// pattern.
	if db.execArgs[0] != "alice!%" {
		t.Errorf("expected pattern alice!%%, got %v", db.execArgs[0])
	}
}
