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

// Package httpd serves the admin surface: plugin status pages, a
// message injection endpoint and the Prometheus metrics.
package httpd

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/bitcanon/ircbridge/pkg/registry"
)

// Registry is the command table view the pages render.
type Registry interface {
	Snapshot() map[string]registry.Entry
	GoneSnapshot() map[string]time.Time
}

// Sender injects a message into an IRC channel.
type Sender func(channel, text string) error

// Server is the admin HTTP server.
type Server struct {
	listen string
	log    *logrus.Entry
	engine *gin.Engine
	srv    *http.Server
}

// New builds the server and its routes.
func New(listen string, reg Registry, send Sender, log *logrus.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		listen: listen,
		log:    log.WithField("component", "httpd"),
		engine: engine,
	}

	index := func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(renderIndex(reg.Snapshot())))
	}
	engine.GET("/", index)
	engine.GET("/index.html", index)

	engine.GET("/plugins-loaded.cgi", func(c *gin.Context) {
		c.JSON(http.StatusOK, loadedEntries(reg.Snapshot()))
	})

	engine.GET("/plugins-unresponsive.cgi", func(c *gin.Context) {
		out := make(map[string]float64)
		for cmd, at := range reg.GoneSnapshot() {
			out[cmd] = float64(at.UnixNano()) / float64(time.Second)
		}
		c.JSON(http.StatusOK, out)
	})

	engine.POST("/post-message.cgi", func(c *gin.Context) {
		var req struct {
			Channel string `json:"channel"`
			Text    string `json:"text"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Channel == "" || req.Text == "" {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "channel and text are required"})
			return
		}
		channel := req.Channel
		if !strings.HasPrefix(channel, "#") {
			channel = "#" + channel
		}
		if err := send(channel, req.Text); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s
}

// pluginJSON is the wire shape of one registry entry.
type pluginJSON struct {
	Command  string  `json:"command"`
	Descr    string  `json:"descr"`
	ACLGroup string  `json:"acl_group"`
	LatestKA float64 `json:"latest_ka"`
	Author   string  `json:"author"`
	Location string  `json:"location"`
}

func loadedEntries(snapshot map[string]registry.Entry) []pluginJSON {
	out := make([]pluginJSON, 0, len(snapshot))
	for cmd, e := range snapshot {
		out = append(out, pluginJSON{
			Command:  cmd,
			Descr:    e.Description,
			ACLGroup: e.Group,
			LatestKA: float64(e.RegisteredAt.UnixNano()) / float64(time.Second),
			Author:   e.Author,
			Location: e.Location,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

func renderIndex(snapshot map[string]registry.Entry) string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html><head><title>ircbridge</title></head><body>\n")
	sb.WriteString("<h1>Registered commands</h1>\n")
	sb.WriteString("<table border=\"1\">\n<tr><th>command</th><th>description</th><th>group</th><th>author</th><th>location</th><th>registered</th></tr>\n")
	for _, e := range loadedEntries(snapshot) {
		group := e.ACLGroup
		if group == "" {
			group = "everyone"
		}
		fmt.Fprintf(&sb, "<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			html.EscapeString(e.Command),
			html.EscapeString(e.Descr),
			html.EscapeString(group),
			html.EscapeString(e.Author),
			html.EscapeString(e.Location),
			time.Unix(0, int64(e.LatestKA*float64(time.Second))).UTC().Format("2006-01-02 15:04:05"))
	}
	sb.WriteString("</table>\n</body></html>\n")
	return sb.String()
}

// Start serves until the context is canceled.
func (s *Server) Start(ctx context.Context) {
	s.srv = &http.Server{Addr: s.listen, Handler: s.engine}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()
	go func() {
		s.log.WithField("listen", s.listen).Info("serving")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("server stopped")
		}
	}()
}

// Handler exposes the routes for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}
