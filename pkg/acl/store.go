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

// Package acl implements authorization over the acls and acl_groups
// tables. A "who" is either a full nick!user@host identity or a group
// name; comparisons always use the lowercase form of both sides.
package acl

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a delete matched no rows.
var ErrNotFound = errors.New("acl: not known")

// ErrWildcard is returned when a nick contains the SQL wildcard '%'.
var ErrWildcard = errors.New("acl: nick may not contain %")

// Querier is the slice of the database connection the store needs.
type Querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}

// Store runs the authorization queries.
type Store struct {
	db Querier
}

// NewStore returns a store over the shared connection.
func NewStore(db Querier) *Store {
	return &Store{db: db}
}

// Check evaluates whether who may run command, given the ACL group the
// plugin requires. The caller resolves the required group from the
// registry beforehand (and short-circuits when the plugin requires
// none), so no lock is held across these queries.
//
// Grants, in order: a per-user row on the command; a command grant held
// by any group the user belongs to; membership of the required group.
func (s *Store) Check(who, command, requiredGroup string) (bool, error) {
	who = strings.ToLower(who)
	command = strings.ToLower(command)

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM acls WHERE command=? AND who=?`,
		command, who).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("acl: user grant lookup: %w", err)
	}
	if n >= 1 {
		return true, nil
	}

	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM acls, acl_groups
		  WHERE acl_groups.who=? AND acl_groups.group_name=acls.who AND acls.command=?`,
		who, command).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("acl: group grant lookup: %w", err)
	}
	if n >= 1 {
		return true, nil
	}

	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM acl_groups WHERE group_name=? AND who=?`,
		strings.ToLower(requiredGroup), who).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("acl: membership lookup: %w", err)
	}
	return n >= 1, nil
}

// Add inserts a per-user (or per-group) grant on a command.
func (s *Store) Add(who, command string) error {
	_, err := s.db.Exec(
		`INSERT INTO acls(command, who) VALUES(?, ?)`,
		strings.ToLower(command), strings.ToLower(who))
	if err != nil {
		return fmt.Errorf("acl: add: %w", err)
	}
	return nil
}

// Del removes one grant; ErrNotFound when there was none.
func (s *Store) Del(who, command string) error {
	res, err := s.db.Exec(
		`DELETE FROM acls WHERE command=? AND who=? LIMIT 1`,
		strings.ToLower(command), strings.ToLower(who))
	if err != nil {
		return fmt.Errorf("acl: del: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Forget removes every grant and membership for a nick, matching any
// user@host the nick was seen with.
func (s *Store) Forget(nick string) error {
	if strings.Contains(nick, "%") {
		return ErrWildcard
	}
	match := strings.ToLower(nick) + "!%"
	if _, err := s.db.Exec(`DELETE FROM acls WHERE who LIKE ?`, match); err != nil {
		return fmt.Errorf("acl: forget acls: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM acl_groups WHERE who LIKE ?`, match); err != nil {
		return fmt.Errorf("acl: forget groups: %w", err)
	}
	return nil
}

// Clone copies the group memberships of one identity onto another.
// Per-user command grants are deliberately not copied; this mirrors
// the long-standing behavior admins rely on.
func (s *Store) Clone(from, to string) error {
	rows, err := s.db.Query(
		`SELECT group_name FROM acl_groups WHERE who=?`, strings.ToLower(from))
	if err != nil {
		return fmt.Errorf("acl: clone select: %w", err)
	}
	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			rows.Close()
			return fmt.Errorf("acl: clone scan: %w", err)
		}
		groups = append(groups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("acl: clone rows: %w", err)
	}

	for _, g := range groups {
		if _, err := s.db.Exec(
			`INSERT INTO acl_groups(group_name, who) VALUES(?, ?)`,
			g, strings.ToLower(to)); err != nil {
			return fmt.Errorf("acl: clone insert: %w", err)
		}
	}
	return nil
}

// Update rewrites the who column for every row of a nick to the new
// full identity, used when a known user shows up with a new host.
func (s *Store) Update(nick, newIdentity string) error {
	if strings.Contains(nick, "%") {
		return ErrWildcard
	}
	match := strings.ToLower(nick) + "!%"
	newIdentity = strings.ToLower(newIdentity)
	if _, err := s.db.Exec(`UPDATE acls SET who=? WHERE who LIKE ?`, newIdentity, match); err != nil {
		return fmt.Errorf("acl: update acls: %w", err)
	}
	if _, err := s.db.Exec(`UPDATE acl_groups SET who=? WHERE who LIKE ?`, newIdentity, match); err != nil {
		return fmt.Errorf("acl: update groups: %w", err)
	}
	return nil
}

// GroupAdd adds an identity to a group.
func (s *Store) GroupAdd(who, group string) error {
	_, err := s.db.Exec(
		`INSERT INTO acl_groups(who, group_name) VALUES(?, ?)`,
		strings.ToLower(who), strings.ToLower(group))
	if err != nil {
		return fmt.Errorf("acl: group add: %w", err)
	}
	return nil
}

// GroupDel removes an identity from a group; ErrNotFound when the
// membership did not exist.
func (s *Store) GroupDel(who, group string) error {
	res, err := s.db.Exec(
		`DELETE FROM acl_groups WHERE who=? AND group_name=? LIMIT 1`,
		strings.ToLower(who), strings.ToLower(group))
	if err != nil {
		return fmt.Errorf("acl: group del: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns the distinct commands and group names granted to an
// identity, ordered.
func (s *Store) List(who string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT item FROM (
		    SELECT command AS item FROM acls WHERE who=?
		    UNION
		    SELECT group_name AS item FROM acl_groups WHERE who=?
		 ) AS in_ ORDER BY item`,
		strings.ToLower(who), strings.ToLower(who))
	if err != nil {
		return nil, fmt.Errorf("acl: list: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var item string
		if err := rows.Scan(&item); err != nil {
			return nil, fmt.Errorf("acl: list scan: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// IsGroup reports whether a name exists as a group.
func (s *Store) IsGroup(group string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM acl_groups WHERE group_name=? LIMIT 1`,
		strings.ToLower(group)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("acl: is group: %w", err)
	}
	return n >= 1, nil
}

// ListGroups returns all group names, distinct and ordered.
func (s *Store) ListGroups() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT group_name FROM acl_groups ORDER BY group_name`)
	if err != nil {
		return nil, fmt.Errorf("acl: list groups: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("acl: list groups scan: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ShowGroup returns the members of a group, ordered.
func (s *Store) ShowGroup(group string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT who FROM acl_groups WHERE group_name=? ORDER BY who`,
		strings.ToLower(group))
	if err != nil {
		return nil, fmt.Errorf("acl: show group: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var who string
		if err := rows.Scan(&who); err != nil {
			return nil, fmt.Errorf("acl: show group scan: %w", err)
		}
		out = append(out, who)
	}
	return out, rows.Err()
}
