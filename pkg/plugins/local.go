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

// Package plugins supervises local plugin executables. A local plugin
// is a standalone program in a configured directory; once started it
// speaks the same bus registration contract as any remote plugin, so
// the bot needs no special dispatch path for it.
package plugins

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when no executable matches the plugin name.
var ErrNotFound = errors.New("plugins: no such plugin")

// ErrNotRunning is returned when an operation needs a running process.
var ErrNotRunning = errors.New("plugins: not running")

// Proc describes one running local plugin.
type Proc struct {
	Name      string
	Path      string
	PID       int
	StartedAt time.Time
}

// Supervisor starts and stops local plugin processes.
type Supervisor struct {
	dir string
	log *logrus.Entry

	mu      sync.Mutex
	running map[string]*exec.Cmd
	started map[string]time.Time
}

// NewSupervisor returns a supervisor over a plugin directory. An empty
// directory name disables it; Load and friends then fail with
// ErrNotFound.
func NewSupervisor(dir string, log *logrus.Logger) *Supervisor {
	return &Supervisor{
		dir:     dir,
		log:     log.WithField("component", "plugins"),
		running: make(map[string]*exec.Cmd),
		started: make(map[string]time.Time),
	}
}

// List returns the names of the executables in the plugin directory,
// sorted.
func (s *Supervisor) List() ([]string, error) {
	if s.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("plugins: list: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Mode()&0111 == 0 {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// Running returns the currently supervised processes, sorted by name.
func (s *Supervisor) Running() []Proc {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Proc
	for name, cmd := range s.running {
		out = append(out, Proc{
			Name:      name,
			Path:      cmd.Path,
			PID:       cmd.Process.Pid,
			StartedAt: s.started[name],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Show returns the process details of one plugin.
func (s *Supervisor) Show(name string) (Proc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.running[name]
	if !ok {
		return Proc{}, ErrNotRunning
	}
	return Proc{
		Name:      name,
		Path:      cmd.Path,
		PID:       cmd.Process.Pid,
		StartedAt: s.started[name],
	}, nil
}

// Load starts a plugin executable. The process inherits the bot's
// environment so it can reach the same broker.
func (s *Supervisor) Load(name string) error {
	if s.dir == "" || strings.ContainsAny(name, "/\\") {
		return ErrNotFound
	}
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Mode()&0111 == 0 {
		return ErrNotFound
	}

	s.mu.Lock()
	if _, ok := s.running[name]; ok {
		s.mu.Unlock()
		return fmt.Errorf("plugins: %q already running", name)
	}
	s.mu.Unlock()

	cmd := exec.Command(path)
	cmd.Dir = s.dir
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("plugins: start %q: %w", name, err)
	}

	s.mu.Lock()
	s.running[name] = cmd
	s.started[name] = time.Now()
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{"plugin": name, "pid": cmd.Process.Pid}).Info("plugin started")

	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		if s.running[name] == cmd {
			delete(s.running, name)
			delete(s.started, name)
		}
		s.mu.Unlock()
		if err != nil {
			s.log.WithError(err).WithField("plugin", name).Warn("plugin exited")
		} else {
			s.log.WithField("plugin", name).Info("plugin exited")
		}
	}()
	return nil
}

// Stop terminates a running plugin.
func (s *Supervisor) Stop(name string) error {
	s.mu.Lock()
	cmd, ok := s.running[name]
	s.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("plugins: stop %q: %w", name, err)
	}
	return nil
}

// Reload stops a plugin if it runs and starts it again, picking up a
// replaced executable.
func (s *Supervisor) Reload(name string) error {
	if err := s.Stop(name); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	// Give the old process a moment to release before restarting.
	for i := 0; i < 50; i++ {
		s.mu.Lock()
		_, still := s.running[name]
		s.mu.Unlock()
		if !still {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	return s.Load(name)
}

// StopAll terminates every supervised process, used at shutdown.
func (s *Supervisor) StopAll() {
	for _, p := range s.Running() {
		s.Stop(p.Name)
	}
}
