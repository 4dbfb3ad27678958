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

// Package db keeps a single MySQL connection alive for the ACL and
// alias stores. Query traffic is low; all callers serialize on one
// mutex, and a periodic probe reconnects a connection the server
// dropped.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/bitcanon/ircbridge/pkg/config"
)

const probeInterval = 29 * time.Second

// Conn wraps the shared SQL connection.
type Conn struct {
	cfg config.DBConfig
	log *logrus.Entry

	mu sync.Mutex
	db *sql.DB
}

// Open connects to the configured MySQL server.
func Open(cfg config.DBConfig, log *logrus.Logger) (*Conn, error) {
	c := &Conn{
		cfg: cfg,
		log: log.WithField("component", "db"),
	}
	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conn) dsn() string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true",
		c.cfg.User, c.cfg.Password, c.cfg.Host, c.cfg.Database)
}

// reconnect replaces the connection. Caller does not hold the mutex.
func (c *Conn) reconnect() error {
	db, err := sql.Open("mysql", c.dsn())
	if err != nil {
		return fmt.Errorf("db: open: %w", err)
	}
	// One connection, shared by every store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	c.mu.Lock()
	old := c.db
	c.db = db
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Probe runs a cheap query and reconnects when the server has gone away.
func (c *Conn) Probe() {
	c.mu.Lock()
	db := c.db
	c.mu.Unlock()

	var now, version string
	if err := db.QueryRow("SELECT NOW(), VERSION()").Scan(&now, &version); err != nil {
		c.log.WithError(err).Warn("probe failed, reconnecting")
		if rerr := c.reconnect(); rerr != nil {
			c.log.WithError(rerr).Error("reconnect failed")
		}
	}
}

// StartProbe runs Probe every 29 seconds until the context is done.
func (c *Conn) StartProbe(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(probeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Probe()
			}
		}
	}()
}

// QueryRow serializes a single-row query on the shared connection.
func (c *Conn) QueryRow(query string, args ...any) *sql.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.QueryRow(query, args...)
}

// Query serializes a multi-row query on the shared connection.
func (c *Conn) Query(query string, args ...any) (*sql.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Query(query, args...)
}

// Exec serializes a statement on the shared connection.
func (c *Conn) Exec(query string, args ...any) (sql.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Exec(query, args...)
}

// Close releases the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
