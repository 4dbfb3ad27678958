package httpd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bitcanon/ircbridge/pkg/registry"
)

type fakeRegistry struct {
	entries map[string]registry.Entry
	gone    map[string]time.Time
}

func (f *fakeRegistry) Snapshot() map[string]registry.Entry { return f.entries }
func (f *fakeRegistry) GoneSnapshot() map[string]time.Time  { return f.gone }

func testServer(send Sender) *Server {
	log := logrus.New()
	log.SetOutput(io.Discard)
	reg := &fakeRegistry{
		entries: map[string]registry.Entry{
			"weather": {
				Description:  "Forecast",
				Group:        "games",
				RegisteredAt: time.Unix(1700000000, 0),
				Author:       "bob",
				Location:     "attic",
			},
		},
		gone: map[string]time.Time{"roll": time.Unix(1700000100, 0)},
	}
	if send == nil {
		send = func(channel, text string) error { return nil }
	}
	return New(":0", reg, send, log)
}

// TestPluginsLoaded tests the JSON shape of the loaded-plugins page.
func TestPluginsLoaded(t *testing.T) {
	s := testServer(nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plugins-loaded.cgi", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var got []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(got) != 1 || got[0]["command"] != "weather" || got[0]["acl_group"] != "games" {
		t.Errorf("unexpected body %v", got)
	}
	if got[0]["latest_ka"].(float64) != 1700000000 {
		t.Errorf("latest_ka: %v", got[0]["latest_ka"])
	}
}

// TestPluginsUnresponsive tests the eviction map page.
func TestPluginsUnresponsive(t *testing.T) {
	s := testServer(nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plugins-unresponsive.cgi", nil))

	var got map[string]float64
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if got["roll"] != 1700000100 {
		t.Errorf("unexpected body %v", got)
	}
}

// TestIndexRendersTable tests the HTML overview.
func TestIndexRendersTable(t *testing.T) {
	s := testServer(nil)
	for _, path := range []string{"/", "/index.html"} {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, w.Code)
		}
		body := w.Body.String()
		if !strings.Contains(body, "<table") || !strings.Contains(body, "weather") {
			t.Errorf("%s: unexpected body %q", path, body)
		}
	}
}

// TestPostMessage tests injection and its field validation.
func TestPostMessage(t *testing.T) {
	// Setup test cases
	tests := []struct {
		name     string
		body     string
		expected int
		sent     string
	}{
		{
			name:     "Valid",
			body:     `{"channel":"test","text":"hello"}`,
			expected: http.StatusOK,
			sent:     "#test hello",
		},
		{
			name:     "MissingText",
			body:     `{"channel":"test"}`,
			expected: http.StatusInternalServerError,
		},
		{
			name:     "MissingChannel",
			body:     `{"text":"hello"}`,
			expected: http.StatusInternalServerError,
		},
		{
			name:     "BadJSON",
			body:     `{`,
			expected: http.StatusInternalServerError,
		},
	}
	// Run test cases
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var sent string
			s := testServer(func(channel, text string) error {
				sent = fmt.Sprintf("%s %s", channel, text)
				return nil
			})
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/post-message.cgi", strings.NewReader(test.body))
			req.Header.Set("Content-Type", "application/json")
			s.Handler().ServeHTTP(w, req)

			if w.Code != test.expected {
				t.Errorf("expected status %d, got %d", test.expected, w.Code)
			}
			if sent != test.sent {
				t.Errorf("expected sent %q, got %q", test.sent, sent)
			}
		})
	}
}

// TestMetricsEndpoint tests that Prometheus metrics are exposed.
func TestMetricsEndpoint(t *testing.T) {
	s := testServer(nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Errorf("expected Go runtime metrics in body")
	}
}
