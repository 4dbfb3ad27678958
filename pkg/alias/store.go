/*
MIT License

Copyright (c) 2025 Mikael Schultz <mikael@conf-t.se>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

// Package alias manages the aliasses table. An alias (is_command=1)
// rewrites a command line and re-enters dispatch; a define
// (is_command=0) replies with substituted literal text.
package alias

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a delete matched no rows.
var ErrNotFound = errors.New("alias: not known")

// Querier is the slice of the database connection the store needs.
type Querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}

// Row is one entry of the aliasses table.
type Row struct {
	Nr        int64
	Command   string
	IsCommand bool
	Text      string
}

// Store runs the alias/define queries.
type Store struct {
	db Querier
}

// NewStore returns a store over the shared connection.
func NewStore(db Querier) *Store {
	return &Store{db: db}
}

// Add inserts an entry and returns its number.
func (s *Store) Add(command string, isCommand bool, text string) (int64, error) {
	isCmd := 0
	if isCommand {
		isCmd = 1
	}
	res, err := s.db.Exec(
		`INSERT INTO aliasses(command, is_command, replacement_text) VALUES(?, ?, ?)`,
		strings.ToLower(command), isCmd, text)
	if err != nil {
		return 0, fmt.Errorf("alias: add: %w", err)
	}
	nr, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("alias: add id: %w", err)
	}
	return nr, nil
}

// Del removes an entry by number; ErrNotFound when absent.
func (s *Store) Del(nr int64) error {
	res, err := s.db.Exec(`DELETE FROM aliasses WHERE nr=?`, nr)
	if err != nil {
		return fmt.Errorf("alias: del: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Lookup returns every entry registered under a command, oldest first.
func (s *Store) Lookup(command string) ([]Row, error) {
	return s.scan(
		`SELECT nr, command, is_command, replacement_text FROM aliasses
		  WHERE command=? ORDER BY nr`,
		strings.ToLower(command))
}

// Search returns entries of one kind whose command or replacement text
// contains the substring.
func (s *Store) Search(substr string, isCommand bool) ([]Row, error) {
	isCmd := 0
	if isCommand {
		isCmd = 1
	}
	pattern := "%" + strings.ToLower(substr) + "%"
	return s.scan(
		`SELECT nr, command, is_command, replacement_text FROM aliasses
		  WHERE is_command=? AND (command LIKE ? OR LOWER(replacement_text) LIKE ?)
		  ORDER BY nr`,
		isCmd, pattern, pattern)
}

func (s *Store) scan(query string, args ...any) ([]Row, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("alias: query: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var isCmd int
		if err := rows.Scan(&r.Nr, &r.Command, &isCmd, &r.Text); err != nil {
			return nil, fmt.Errorf("alias: scan: %w", err)
		}
		r.IsCommand = isCmd != 0
		out = append(out, r)
	}
	return out, rows.Err()
}
