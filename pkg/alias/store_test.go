package alias

import (
	"database/sql"
	"errors"
	"testing"
)

// fakeDB records Exec calls and returns a scripted result. The scan
// paths need real *sql.Rows and are covered elsewhere.
type fakeDB struct {
	execQuery string
	execArgs  []any
	insertID  int64
	affected  int64
	err       error
}

type fakeResult struct {
	id int64
	n  int64
}

func (r fakeResult) LastInsertId() (int64, error) { return r.id, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.n, nil }

func (f *fakeDB) Exec(query string, args ...any) (sql.Result, error) {
	f.execQuery = query
	f.execArgs = args
	return fakeResult{id: f.insertID, n: f.affected}, f.err
}

func (f *fakeDB) QueryRow(query string, args ...any) *sql.Row {
	panic("unexpected QueryRow")
}

func (f *fakeDB) Query(query string, args ...any) (*sql.Rows, error) {
	panic("unexpected Query")
}

// TestAddReturnsNumber tests that Add lowercases the command and hands
// back the generated row number.
func TestAddReturnsNumber(t *testing.T) {
	db := &fakeDB{insertID: 17}
	s := NewStore(db)

	nr, err := s.Add("Roll", true, "dice %q")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if nr != 17 {
		t.Errorf("expected nr 17, got %d", nr)
	}
	if db.execArgs[0] != "roll" {
		t.Errorf("command not lowercased: %v", db.execArgs[0])
	}
	if db.execArgs[1] != 1 {
		t.Errorf("expected is_command=1, got %v", db.execArgs[1])
	}
	if db.execArgs[2] != "dice %q" {
		t.Errorf("replacement text must be stored verbatim: %v", db.execArgs[2])
	}
}

// TestDelNotFound tests the rowcount check on delete.
func TestDelNotFound(t *testing.T) {
	s := NewStore(&fakeDB{affected: 0})
	if err := s.Del(42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	s = NewStore(&fakeDB{affected: 1})
	if err := s.Del(42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAddDefineKind(t *testing.T) {
	db := &fakeDB{insertID: 1}
	s := NewStore(db)
	if _, err := s.Add("greet", false, "%nhello %u"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if db.execArgs[1] != 0 {
		t.Errorf("expected is_command=0, got %v", db.execArgs[1])
	}
}
