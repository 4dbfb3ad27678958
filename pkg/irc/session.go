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
package irc

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bitcanon/ircbridge/pkg/config"
	"github.com/bitcanon/ircbridge/pkg/metrics"
	"github.com/bitcanon/ircbridge/pkg/ratelimit"
)

// State is the connection lifecycle position of a session.
type State int

const (
	Disconnected State = iota
	ConnectedPass
	ConnectedNick
	ConnectedUser
	UserWait
	ConnectedJoin
	ConnectedWait
	Running
	Disconnecting
)

var stateNames = map[State]string{
	Disconnected:  "disconnected",
	ConnectedPass: "connected-pass",
	ConnectedNick: "connected-nick",
	ConnectedUser: "connected-user",
	UserWait:      "user-wait",
	ConnectedJoin: "connected-join",
	ConnectedWait: "connected-wait",
	Running:       "running",
	Disconnecting: "disconnecting",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	// stateTimeout bounds how long the session may sit in any
	// intermediate connect/register/join state before reconnecting.
	stateTimeout = 120 * time.Second
	// silenceLimit is the inbound-silence age at which the watchdog
	// terminates the process so a supervisor can restart it.
	silenceLimit = 600 * time.Second
	// timeProbeInterval paces the TIME probe that keeps inbound
	// traffic flowing while Running.
	timeProbeInterval = 30 * time.Second
	// whoWait bounds InvokeWhoAndWait.
	whoWait = 5 * time.Second

	readPoll     = 100 * time.Millisecond
	dialTimeout  = 30 * time.Second
	redialDelay  = 2 * time.Second
	maxWorkers   = 16
	writeTimeout = 30 * time.Second
)

// Kind selects the IRC message verb for outbound text.
type Kind int

const (
	Privmsg Kind = iota
	Notice
)

// Events are the callbacks a session invokes from its line workers.
// All fields are optional. Channel arguments are the IRC target the
// line arrived on; prefix is the full nick!user@host of the origin.
type Events struct {
	Privmsg   func(channel, prefix, text string)
	Notice    func(channel, prefix, text string)
	Topic     func(channel, prefix, topic string)
	UserEvent func(event, channel, prefix string)
	Unhandled func(msg *Message)
}

// Session owns the IRC connection and its registration state machine.
// A read loop frames inbound lines and hands each to a short-lived
// worker; writes are serialized through a mutex.
type Session struct {
	cfg      config.IRCConfig
	channels []string
	events   Events
	log      *logrus.Entry
	throttle *ratelimit.TokenBucket

	mu         sync.Mutex
	conn       net.Conn
	state      State
	stateSince time.Time
	nick       string
	joined     map[string]bool
	pending    string

	tableMu sync.Mutex
	users   map[string]string
	topics  map[string]string

	inMu        sync.Mutex
	lastInbound time.Time

	whoMu      sync.Mutex
	whoWaiters []chan struct{}

	sem chan struct{}

	dial func(addr string) (net.Conn, error)
	now  func() time.Time
	exit func(code int)
}

// NewSession builds a session from the irc config section. throttle
// may be nil to send unpaced.
func NewSession(cfg config.IRCConfig, events Events, throttle *ratelimit.TokenBucket, log *logrus.Logger) *Session {
	s := &Session{
		cfg:      cfg,
		channels: cfg.ChannelList(),
		events:   events,
		log:      log.WithField("component", "irc"),
		throttle: throttle,
		state:    Disconnected,
		nick:     cfg.Nick,
		joined:   make(map[string]bool),
		users:    make(map[string]string),
		topics:   make(map[string]string),
		sem:      make(chan struct{}, maxWorkers),
		now:      time.Now,
		exit:     os.Exit,
	}
	s.stateSince = s.now()
	s.lastInbound = s.now()
	s.dial = func(addr string) (net.Conn, error) {
		return net.DialTimeout("tcp", addr, dialTimeout)
	}
	return s
}

// Run drives the session until the context is canceled: the state
// machine ticks and the socket is polled on the same loop, the
// watchdog and TIME probe run beside it.
func (s *Session) Run(ctx context.Context) error {
	go s.watchdog(ctx)
	go s.timeProbe(ctx)

	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			s.closeConn()
			return ctx.Err()
		default:
		}

		s.tick()

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			time.Sleep(readPoll)
			continue
		}

		conn.SetReadDeadline(s.now().Add(readPoll))
		n, err := conn.Read(buf)
		if n > 0 {
			s.ingest(string(buf[:n]))
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			s.log.WithError(err).Warn("read failed, reconnecting")
			s.becomeDisconnected()
		}
	}
}

// tick advances the connect/register/join machine one step.
func (s *Session) tick() {
	s.mu.Lock()
	state := s.state
	age := s.now().Sub(s.stateSince)
	s.mu.Unlock()

	if age > stateTimeout {
		switch state {
		case Disconnected, Running, Disconnecting:
		default:
			s.log.WithField("state", state.String()).Warn("stuck in state, reconnecting")
			s.setState(Disconnecting)
			state = Disconnecting
		}
	}

	switch state {
	case Disconnected:
		addr := s.cfg.Addr()
		conn, err := s.dial(addr)
		if err != nil {
			s.log.WithError(err).WithField("addr", addr).Warn("connect failed")
			time.Sleep(redialDelay)
			return
		}
		s.log.WithField("addr", addr).Info("connected")
		s.mu.Lock()
		s.conn = conn
		s.nick = s.cfg.Nick
		s.joined = make(map[string]bool)
		s.pending = ""
		s.mu.Unlock()
		s.touchInbound()
		s.setState(ConnectedPass)

	case ConnectedPass:
		if s.cfg.Password != "" {
			if err := s.SendRaw("PASS " + s.cfg.Password); err != nil {
				return
			}
		}
		s.setState(ConnectedNick)

	case ConnectedNick:
		if err := s.SendRaw("NICK " + s.cfg.Nick); err != nil {
			return
		}
		s.setState(ConnectedUser)

	case ConnectedUser:
		if err := s.SendRaw(fmt.Sprintf("USER %s 0 * :%s", s.cfg.Nick, s.cfg.Nick)); err != nil {
			return
		}
		s.setState(UserWait)

	case ConnectedJoin:
		for _, ch := range s.channels {
			if err := s.SendRaw("JOIN " + ch); err != nil {
				return
			}
		}
		s.setState(ConnectedWait)

	case Disconnecting:
		s.closeConn()
		s.setState(Disconnected)
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	from := s.state
	s.state = st
	s.stateSince = s.now()
	s.mu.Unlock()
	if from != st {
		s.log.WithFields(logrus.Fields{"from": from.String(), "to": st.String()}).Debug("state change")
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Nick returns the nick the session currently runs under.
func (s *Session) Nick() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nick
}

// Channels returns the configured channel list.
func (s *Session) Channels() []string {
	return s.channels
}

func (s *Session) becomeDisconnected() {
	s.closeConn()
	metrics.IRCReconnects.Inc()
	s.setState(Disconnected)
}

func (s *Session) closeConn() {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()
}

// ingest appends a socket chunk to the pending buffer and spawns a
// worker per complete line.
func (s *Session) ingest(chunk string) {
	s.touchInbound()

	s.mu.Lock()
	s.pending += chunk
	var lines []string
	for {
		idx := strings.Index(s.pending, "\n")
		if idx < 0 {
			break
		}
		line := strings.TrimRight(s.pending[:idx], "\r")
		s.pending = s.pending[idx+1:]
		if line != "" {
			lines = append(lines, line)
		}
	}
	s.mu.Unlock()

	for _, line := range lines {
		s.sem <- struct{}{}
		go func(line string) {
			defer func() {
				<-s.sem
				if r := recover(); r != nil {
					s.log.WithField("panic", r).WithField("line", line).Error("line worker panicked")
				}
			}()
			s.handleLine(line)
		}(line)
	}
}

func (s *Session) touchInbound() {
	s.inMu.Lock()
	s.lastInbound = s.now()
	s.inMu.Unlock()
}

// handleLine parses one inbound line and applies its side effects.
func (s *Session) handleLine(line string) {
	msg, err := ParseLine(line)
	if err != nil {
		s.log.WithField("line", line).Debug("dropping malformed line")
		return
	}

	switch msg.Command {
	case "001":
		if s.State() == UserWait {
			s.setState(ConnectedJoin)
		}

	case "PING":
		token := ""
		if len(msg.Args) > 0 {
			token = msg.Args[len(msg.Args)-1]
		}
		s.SendRaw("PONG :" + token)

	case "352":
		// <me> <channel> <user> <host> <server> <nick> ...
		if len(msg.Args) >= 6 {
			nick := msg.Args[5]
			s.tableMu.Lock()
			s.users[strings.ToLower(nick)] = nick + "!" + msg.Args[2] + "@" + msg.Args[3]
			s.tableMu.Unlock()
		}
		s.signalWho()

	case "315":
		s.signalWho()

	case "353":
		if len(msg.Args) == 0 {
			return
		}
		names := strings.Fields(msg.Args[len(msg.Args)-1])
		s.tableMu.Lock()
		for _, n := range names {
			n = strings.TrimLeft(n, "@+%&~")
			key := strings.ToLower(n)
			if _, known := s.users[key]; !known {
				s.users[key] = "?"
			}
		}
		s.tableMu.Unlock()

	case "331":
		if len(msg.Args) >= 2 {
			s.storeTopic(msg.Args[1], msg.Prefix, "")
		}

	case "332":
		if len(msg.Args) >= 3 {
			s.storeTopic(msg.Args[1], msg.Prefix, msg.Args[2])
		}

	case "TOPIC":
		if len(msg.Args) >= 2 {
			s.storeTopic(msg.Args[0], msg.Prefix, msg.Args[1])
		}

	case "JOIN":
		channel := msg.Target()
		nick := msg.Nick()
		if strings.EqualFold(nick, s.Nick()) {
			s.markJoined(channel)
		} else {
			s.tableMu.Lock()
			s.users[strings.ToLower(nick)] = msg.Prefix
			s.tableMu.Unlock()
		}
		s.fireUserEvent("JOIN", channel, msg.Prefix)

	case "PART":
		s.dropUser(msg.Nick())
		s.fireUserEvent("PART", msg.Target(), msg.Prefix)

	case "QUIT":
		s.dropUser(msg.Nick())
		s.fireUserEvent("QUIT", "", msg.Prefix)

	case "KICK":
		if len(msg.Args) >= 2 {
			s.dropUser(msg.Args[1])
		}
		s.fireUserEvent("KICK", msg.Target(), msg.Prefix)

	case "NICK":
		old := msg.Nick()
		newNick := msg.Target()
		s.renameUser(old, newNick)
		if strings.EqualFold(old, s.Nick()) {
			s.mu.Lock()
			s.nick = newNick
			s.mu.Unlock()
		}
		s.fireUserEvent("NICK", newNick, msg.Prefix)

	case "INVITE":
		if s.State() == Running {
			for _, ch := range s.channels {
				s.SendRaw("JOIN " + ch)
			}
		}

	case "PRIVMSG":
		if s.events.Privmsg != nil {
			s.events.Privmsg(msg.Target(), msg.Prefix, msg.Text())
		}

	case "NOTICE":
		if s.events.Notice != nil {
			s.events.Notice(msg.Target(), msg.Prefix, msg.Text())
		}

	default:
		if s.events.Unhandled != nil {
			s.events.Unhandled(&msg)
		}
	}
}

func (s *Session) markJoined(channel string) {
	s.mu.Lock()
	s.joined[strings.ToLower(channel)] = true
	all := true
	for _, ch := range s.channels {
		if !s.joined[strings.ToLower(ch)] {
			all = false
			break
		}
	}
	advance := all && s.state == ConnectedWait
	s.mu.Unlock()
	if advance {
		s.setState(Running)
		s.log.Info("all channels joined")
	}
}

func (s *Session) storeTopic(channel, prefix, topic string) {
	s.tableMu.Lock()
	s.topics[strings.ToLower(channel)] = topic
	s.tableMu.Unlock()
	if s.events.Topic != nil {
		s.events.Topic(channel, prefix, topic)
	}
}

func (s *Session) dropUser(nick string) {
	s.tableMu.Lock()
	delete(s.users, strings.ToLower(nick))
	s.tableMu.Unlock()
}

func (s *Session) renameUser(old, newNick string) {
	s.tableMu.Lock()
	key := strings.ToLower(old)
	if id, ok := s.users[key]; ok {
		delete(s.users, key)
		if bang := strings.Index(id, "!"); bang >= 0 {
			s.users[strings.ToLower(newNick)] = newNick + id[bang:]
		} else {
			s.users[strings.ToLower(newNick)] = "?"
		}
	}
	s.tableMu.Unlock()
}

func (s *Session) fireUserEvent(event, channel, prefix string) {
	if s.events.UserEvent != nil {
		s.events.UserEvent(event, channel, prefix)
	}
}

// Topic returns the last seen topic of a channel.
func (s *Session) Topic(channel string) string {
	s.tableMu.Lock()
	defer s.tableMu.Unlock()
	return s.topics[strings.ToLower(channel)]
}

// Identity returns the nick!user@host recorded for a nick, or "" when
// the nick is unknown or only known through a NAMES listing.
func (s *Session) Identity(nick string) string {
	s.tableMu.Lock()
	defer s.tableMu.Unlock()
	id := s.users[strings.ToLower(nick)]
	if !strings.Contains(id, "!") {
		return ""
	}
	return id
}

// Users returns a copy of the nick table.
func (s *Session) Users() map[string]string {
	s.tableMu.Lock()
	defer s.tableMu.Unlock()
	out := make(map[string]string, len(s.users))
	for k, v := range s.users {
		out[k] = v
	}
	return out
}

func (s *Session) signalWho() {
	s.whoMu.Lock()
	for _, w := range s.whoWaiters {
		close(w)
	}
	s.whoWaiters = nil
	s.whoMu.Unlock()
}

// InvokeWhoAndWait issues a WHO for a nick and blocks until a full
// identity is recorded or the wait times out. Returns the identity or
// "" on timeout.
func (s *Session) InvokeWhoAndWait(nick string) string {
	if id := s.Identity(nick); id != "" {
		return id
	}
	s.SendRaw("WHO " + nick)

	deadline := time.After(whoWait)
	for {
		w := make(chan struct{})
		s.whoMu.Lock()
		s.whoWaiters = append(s.whoWaiters, w)
		s.whoMu.Unlock()

		if id := s.Identity(nick); id != "" {
			return id
		}
		select {
		case <-w:
			if id := s.Identity(nick); id != "" {
				return id
			}
		case <-deadline:
			return ""
		}
	}
}

// SendRaw writes one protocol line. A write error drops the session
// back to Disconnected.
func (s *Session) SendRaw(line string) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("irc: not connected")
	}

	conn.SetWriteDeadline(s.now().Add(writeTimeout))
	s.mu.Lock()
	_, err := conn.Write([]byte(line + "\r\n"))
	s.mu.Unlock()
	if err != nil {
		s.log.WithError(err).Warn("write failed, reconnecting")
		s.becomeDisconnected()
		return fmt.Errorf("irc: write: %w", err)
	}
	return nil
}

// Send serializes and writes a message.
func (s *Session) Send(m *Message) error {
	return s.SendRaw(m.String())
}

// SendMessage delivers text as PRIVMSG or NOTICE, paced by the token
// bucket when one is configured.
func (s *Session) SendMessage(kind Kind, target, text string) error {
	if s.throttle != nil {
		for !s.throttle.Allow() {
			time.Sleep(100 * time.Millisecond)
		}
	}
	verb := "PRIVMSG"
	if kind == Notice {
		verb = "NOTICE"
	}
	return s.Send(&Message{Command: verb, Args: []string{target, text}})
}

// watchdog terminates the process when the server has been silent for
// silenceLimit; an external supervisor is expected to restart it.
func (s *Session) watchdog(ctx context.Context) {
	t := time.NewTicker(1 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.inMu.Lock()
			age := s.now().Sub(s.lastInbound)
			s.inMu.Unlock()
			if age >= silenceLimit {
				s.log.WithField("silence", age.String()).Error("no server input, exiting")
				s.exit(1)
				return
			}
		}
	}
}

// timeProbe nudges the server with TIME while Running so the inbound
// side never looks silent on a healthy connection.
func (s *Session) timeProbe(ctx context.Context) {
	t := time.NewTicker(timeProbeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if s.State() == Running {
				s.SendRaw("TIME")
			}
		}
	}
}
