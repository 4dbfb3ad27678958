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
package bot

import (
	"fmt"
	"strings"

	"github.com/bitcanon/ircbridge/pkg/alias"
	"github.com/bitcanon/ircbridge/pkg/metrics"
	"github.com/bitcanon/ircbridge/pkg/pager"
)

// maxAliasDepth bounds alias expansion so cyclic aliases terminate.
const maxAliasDepth = 8

// HandlePrivmsg is the entry point for every PRIVMSG the session
// receives. Plain channel chatter is republished on the bus; text
// starting with the command prefix enters dispatch. In a direct
// message the prefix is optional.
func (b *Bot) HandlePrivmsg(channel, prefix, text string) {
	if text == "" {
		return
	}

	direct := strings.EqualFold(channel, b.irc.Nick())
	if text[0] != b.cfg.IRC.PrefixByte() {
		if !direct {
			b.bus.Publish("from/irc/"+chanName(channel)+"/"+prefix+"/message", text)
			return
		}
		text = b.cfg.IRC.Prefix + text
	}

	b.dispatch(channel, prefix, text)
}

func (b *Bot) dispatch(channel, prefix, text string) {
	respCh := b.responseChannel(channel, prefix)

	if cmd, args := splitCommand(text[1:]); cmd == "next" {
		b.handleNext(respCh, args)
		return
	}

	// Alias expansion. A command alias rewrites the line and loops; a
	// define replies immediately.
	for i := 0; i < maxAliasDepth; i++ {
		cmd, query := splitQuery(text[1:])
		rows, err := b.defs.Lookup(cmd)
		if err != nil {
			b.log.WithError(err).Warn("alias lookup failed")
			break
		}
		if len(rows) == 0 {
			break
		}
		if rows[0].IsCommand {
			text = b.cfg.IRC.Prefix + rows[0].Text + " " + query
			continue
		}
		b.emitDefines(respCh, rows, query, prefix)
		return
	}

	cmd, args := splitCommand(text[1:])
	cmd = strings.ToLower(cmd)

	entry, known := b.reg.Lookup(cmd)
	if !known {
		b.unknownCommand(respCh, cmd)
		return
	}

	// Snapshot the required group before touching the database; the
	// registry lock is not held across the ACL queries.
	if entry.Group != "" {
		allowed, err := b.acls.Check(prefix, cmd, entry.Group)
		if err != nil {
			b.sendError(respCh, fmt.Sprintf("Cannot verify permissions for %q right now", cmd))
			return
		}
		if !allowed {
			metrics.CommandsDenied.Inc()
			b.sendError(respCh, fmt.Sprintf("Command %q denied for user %q (requires group %s)", cmd, prefix, entry.Group))
			return
		}
	}

	metrics.CommandsDispatched.Inc()
	switch b.runInternal(respCh, prefix, cmd, args) {
	case rcHandled, rcError:
	case rcNotInternal:
		b.bus.Publish("from/irc/"+b.busChannelPart(channel, prefix)+"/"+prefix+"/"+cmd, text)
	default:
		b.sendError(respCh, "Unexpected result from internal command handler")
	}
}

// emitDefines sends the first matching define and queues the rest for
// the next built-in.
func (b *Bot) emitDefines(respCh string, rows []alias.Row, query, prefix string) {
	b.next.Reset(respCh)
	first, notice := alias.Substitute(rows[0].Text, query, prefix, b.intn)
	for _, r := range rows[1:] {
		text, n := alias.Substitute(r.Text, query, prefix, b.intn)
		b.next.Push(respCh, pager.Entry{Notice: n, Text: text})
	}
	b.sendReply(respCh, first, notice)
}

// unknownCommand reports why a command cannot run: a recently evicted
// plugin, or a genuinely unknown name with spelling suggestions.
func (b *Bot) unknownCommand(respCh, cmd string) {
	if at, gone := b.reg.Gone(cmd); gone {
		age := b.now().Sub(at).Seconds()
		b.sendError(respCh, fmt.Sprintf("Command %q is unresponsive for %.1f seconds", cmd, age))
		return
	}
	if sug := b.suggest(cmd); len(sug) > 0 {
		b.sendError(respCh, fmt.Sprintf("Command %q is not known (maybe %s?)", cmd, strings.Join(sug, " or ")))
		return
	}
	b.sendError(respCh, fmt.Sprintf("Command %q is not known", cmd))
}

// handleNext drains the per-channel queue left by a multi-match
// define; -a empties it up to one line budget worth of text.
func (b *Bot) handleNext(respCh string, args []string) {
	all := false
	for _, a := range args {
		if a == "-a" {
			all = true
		}
	}

	if all {
		entries := b.next.Drain(respCh, pager.Limit)
		if len(entries) == 0 {
			b.sendOK(respCh, "No more next")
			return
		}
		for _, e := range entries {
			b.sendReply(respCh, e.Text, e.Notice)
		}
		return
	}

	e, ok := b.next.Pop(respCh)
	if !ok {
		b.sendOK(respCh, "No more next")
		return
	}
	b.sendReply(respCh, e.Text, e.Notice)
}

// suggest returns up to two known commands close to the given name.
func (b *Bot) suggest(cmd string) []string {
	type scored struct {
		name string
		dist int
	}
	var candidates []scored
	for _, known := range b.reg.Commands() {
		d := levenshtein(cmd, known)
		if d <= 2 {
			candidates = append(candidates, scored{known, d})
		}
	}
	// Insertion sort; the candidate list is tiny.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && (candidates[j].dist < candidates[j-1].dist ||
			(candidates[j].dist == candidates[j-1].dist && candidates[j].name < candidates[j-1].name)); j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
	var out []string
	for i := 0; i < len(candidates) && i < 2; i++ {
		out = append(out, candidates[i].name)
	}
	return out
}

func levenshtein(a, bStr string) int {
	if a == bStr {
		return 0
	}
	prev := make([]int, len(bStr)+1)
	cur := make([]int, len(bStr)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(bStr); j++ {
			cost := 1
			if a[i-1] == bStr[j-1] {
				cost = 0
			}
			cur[j] = minInt(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(bStr)]
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// splitCommand splits "cmd arg arg" into the command and its fields.
func splitCommand(body string) (string, []string) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// splitQuery splits off the command token, keeping the remainder
// verbatim for %q substitution.
func splitQuery(body string) (cmd, query string) {
	cmd, query, _ = strings.Cut(body, " ")
	return cmd, query
}
