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

// Package metrics declares the process-wide Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandsDispatched counts commands that entered the pipeline.
	CommandsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ircbridge_commands_dispatched_total",
		Help: "Commands that entered the dispatch pipeline.",
	})

	// CommandsDenied counts ACL denials.
	CommandsDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ircbridge_commands_denied_total",
		Help: "Commands denied by the ACL engine.",
	})

	// BusMessagesIn counts messages received from the bus.
	BusMessagesIn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ircbridge_bus_messages_in_total",
		Help: "Messages consumed from the bus.",
	})

	// BusMessagesOut counts messages published to the bus.
	BusMessagesOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ircbridge_bus_messages_out_total",
		Help: "Messages published to the bus.",
	})

	// BusMessagesDropped counts payloads rejected for CR/LF injection.
	BusMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ircbridge_bus_messages_dropped_total",
		Help: "Bus payloads dropped to prevent IRC protocol injection.",
	})

	// IRCReconnects counts transitions back to the disconnected state.
	IRCReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ircbridge_irc_reconnects_total",
		Help: "IRC session disconnects that triggered a reconnect.",
	})

	// PluginsEvicted counts registry entries removed by the janitor.
	PluginsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ircbridge_plugins_evicted_total",
		Help: "Plugin commands evicted after their registration timed out.",
	})
)
