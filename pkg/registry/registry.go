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

// Package registry tracks the commands known to the bridge. Built-in
// commands are hardcoded and never expire; external plugins announce
// themselves over the bus and are soft-state with a liveness timeout.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bitcanon/ircbridge/pkg/metrics"
)

const (
	// TTL is how long an external registration stays valid without a
	// re-announcement.
	TTL = 10 * time.Second

	// janitorInterval is slightly below half the TTL so a plugin that
	// announces on a 5 s cadence survives one missed beat.
	janitorInterval = 4900 * time.Millisecond
)

// ErrMissingCommand is returned for a registration without a cmd field.
var ErrMissingCommand = errors.New("registry: registration without cmd")

// ErrHardcoded is returned when a registration tries to override a
// built-in command.
var ErrHardcoded = errors.New("registry: cannot override hardcoded command")

// Entry describes one known command.
type Entry struct {
	Description string
	// Group is the ACL group required to run the command; empty means
	// everyone may run it.
	Group        string
	RegisteredAt time.Time
	Author       string
	Location     string
	Hardcoded    bool
}

// Registry is the mutex-protected command table.
type Registry struct {
	log *logrus.Entry

	mu      sync.Mutex
	plugins map[string]Entry
	gone    map[string]time.Time

	now func() time.Time // replaceable for tests
}

// New returns an empty registry.
func New(log *logrus.Logger) *Registry {
	return &Registry{
		log:     log.WithField("component", "registry"),
		plugins: make(map[string]Entry),
		gone:    make(map[string]time.Time),
		now:     time.Now,
	}
}

// AddHardcoded seeds a built-in command. Hardcoded entries never expire
// and cannot be overridden by plugin registrations.
func (r *Registry) AddHardcoded(cmd, description, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[cmd] = Entry{
		Description:  description,
		Group:        group,
		RegisteredAt: r.now(),
		Hardcoded:    true,
	}
}

// Register processes a plugin announcement of the form
// "cmd=...|descr=...|agrp=...|athr=...|loc=...".
func (r *Registry) Register(payload string) error {
	var cmd, descr, group, author, location string
	for _, element := range strings.Split(payload, "|") {
		k, v, ok := strings.Cut(element, "=")
		if !ok {
			continue
		}
		switch k {
		case "cmd":
			cmd = v
		case "descr":
			descr = v
		case "agrp":
			group = v
		case "athr":
			author = v
		case "loc":
			location = v
		}
	}

	if cmd == "" {
		return ErrMissingCommand
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.plugins[cmd]; ok && cur.Hardcoded {
		return fmt.Errorf("%w: %s", ErrHardcoded, cmd)
	}
	if _, ok := r.plugins[cmd]; !ok {
		r.log.WithField("command", cmd).Info("first announcement")
	}
	r.plugins[cmd] = Entry{
		Description:  descr,
		Group:        group,
		RegisteredAt: r.now(),
		Author:       author,
		Location:     location,
	}
	delete(r.gone, cmd)
	return nil
}

// Lookup returns the entry for a command.
func (r *Registry) Lookup(cmd string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.plugins[cmd]
	return e, ok
}

// Gone reports when a previously-known command was evicted.
func (r *Registry) Gone(cmd string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.gone[cmd]
	return t, ok
}

// Commands returns all known command names, sorted.
func (r *Registry) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.plugins))
	for cmd := range r.plugins {
		out = append(out, cmd)
	}
	sort.Strings(out)
	return out
}

// Snapshot copies the full table for the HTTP status pages.
func (r *Registry) Snapshot() map[string]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Entry, len(r.plugins))
	for cmd, e := range r.plugins {
		out[cmd] = e
	}
	return out
}

// GoneSnapshot copies the eviction table.
func (r *Registry) GoneSnapshot() map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]time.Time, len(r.gone))
	for cmd, t := range r.gone {
		out[cmd] = t
	}
	return out
}

// evict removes non-hardcoded entries older than the TTL, recording
// the eviction moment in the gone table.
func (r *Registry) evict(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for cmd, e := range r.plugins {
		if e.Hardcoded {
			continue
		}
		if now.Sub(e.RegisteredAt) >= TTL {
			delete(r.plugins, cmd)
			r.gone[cmd] = now
			metrics.PluginsEvicted.Inc()
			r.log.WithField("command", cmd).Warn("plugin timed out")
		}
	}
}

// StartJanitor evicts stale entries on a fixed cadence until the
// context is done.
func (r *Registry) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.evict(r.now())
			}
		}
	}()
}
