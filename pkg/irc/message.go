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

// Package irc implements the IRC session used by the bridge: a small
// RFC 1459 line codec and a connect/register/join state machine with
// channel-user bookkeeping.
package irc

import (
	"errors"
	"strings"
)

// ErrMalformedLine is returned by ParseLine for an empty input line.
var ErrMalformedLine = errors.New("irc: malformed line")

// Message is one parsed IRC protocol line.
type Message struct {
	// Prefix is the sender, without the leading ':' (may be empty).
	Prefix  string
	Command string
	Args    []string
}

// ParseLine splits a raw IRC line into prefix, command and arguments.
// A trailing argument introduced by " :" may contain spaces and is kept
// as a single element of Args.
func ParseLine(line string) (Message, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Message{}, ErrMalformedLine
	}

	var m Message

	s := line
	if s[0] == ':' {
		pfx, rest, ok := strings.Cut(s[1:], " ")
		if !ok {
			// A bare prefix with no command; treat the whole thing
			// as the command to stay permissive.
			return Message{Command: s[1:]}, nil
		}
		m.Prefix = pfx
		s = rest
	}

	var trailing string
	hasTrailing := false
	if idx := strings.Index(s, " :"); idx != -1 {
		trailing = s[idx+2:]
		s = s[:idx]
		hasTrailing = true
	}

	args := strings.Fields(s)
	if hasTrailing {
		args = append(args, trailing)
	}
	if len(args) == 0 {
		return Message{}, ErrMalformedLine
	}

	m.Command = args[0]
	m.Args = args[1:]
	return m, nil
}

// String serializes the message without the trailing CRLF.
func (m Message) String() string {
	var sb strings.Builder
	if m.Prefix != "" {
		sb.WriteByte(':')
		sb.WriteString(m.Prefix)
		sb.WriteByte(' ')
	}
	sb.WriteString(m.Command)
	for i, a := range m.Args {
		sb.WriteByte(' ')
		if i == len(m.Args)-1 && needsTrailing(a) {
			sb.WriteByte(':')
		}
		sb.WriteString(a)
	}
	return sb.String()
}

// Bytes serializes the message as UTF-8 with the CRLF terminator.
func (m Message) Bytes() []byte {
	return []byte(m.String() + "\r\n")
}

// needsTrailing reports whether the final argument must be sent in the
// " :" trailing form to survive a round trip.
func needsTrailing(arg string) bool {
	return arg == "" || strings.Contains(arg, " ") || strings.HasPrefix(arg, ":")
}

// Nick extracts the nickname from a nick!user@host prefix. A prefix
// without '!' is returned unchanged.
func (m Message) Nick() string {
	nick, _, _ := strings.Cut(m.Prefix, "!")
	return nick
}

// Text returns the last argument, conventionally the message body.
func (m Message) Text() string {
	if len(m.Args) == 0 {
		return ""
	}
	return m.Args[len(m.Args)-1]
}

// Target returns the first argument, conventionally the channel or nick
// a PRIVMSG/NOTICE is addressed to.
func (m Message) Target() string {
	if len(m.Args) == 0 {
		return ""
	}
	return m.Args[0]
}
