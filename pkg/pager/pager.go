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

// Package pager holds the continuation state for replies that exceed
// the IRC line budget. Each channel has two independent buffers, one
// per output kind, plus a queue of pending results from multi-match
// alias expansions.
package pager

import (
	"math"
	"strconv"
	"strings"
	"sync"
)

// Limit is the usable message budget per IRC line.
const Limit = 450

// slack is how far past Limit the chunker may look for a space so
// words are not cut mid-way.
const slack = 25

// NoMore is the reply when both buffers are empty.
const NoMore = "No more more"

// Kind selects the output style of a buffered reply.
type Kind int

const (
	Privmsg Kind = iota
	Notice
)

type key struct {
	channel string
	kind    Kind
}

// Pager stores per-channel continuation buffers.
type Pager struct {
	mu      sync.Mutex
	buffers map[key]string
}

// New returns an empty pager.
func New() *Pager {
	return &Pager{buffers: make(map[key]string)}
}

// Send prepares text for a channel. Short texts pass through untouched.
// A long text is stored and the first chunk, suffixed with the number
// of remaining continuations, is returned for immediate emission.
func (p *Pager) Send(channel string, kind Kind, text string) string {
	if len(text) <= Limit {
		p.mu.Lock()
		delete(p.buffers, key{channel, kind})
		p.mu.Unlock()
		return text
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	chunk, rest := cut(text)
	p.buffers[key{channel, kind}] = rest
	return chunk + moreSuffix(rest)
}

// More returns the next chunk for a channel, preferring the NOTICE
// buffer. ok is false when both buffers are empty.
func (p *Pager) More(channel string) (chunk string, kind Kind, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, k := range []Kind{Notice, Privmsg} {
		id := key{channel, k}
		buf := p.buffers[id]
		if buf == "" {
			continue
		}
		if len(buf) <= Limit {
			delete(p.buffers, id)
			return buf, k, true
		}
		chunk, rest := cut(buf)
		p.buffers[id] = rest
		return chunk + moreSuffix(rest), k, true
	}
	return "", Privmsg, false
}

// cut splits off one chunk, breaking on the last space inside
// [Limit, Limit+slack] and falling back to a hard cut at Limit.
func cut(text string) (chunk, rest string) {
	end := Limit + slack
	if end > len(text) {
		end = len(text)
	}
	at := Limit
	if idx := strings.LastIndexByte(text[Limit:end], ' '); idx != -1 {
		at = Limit + idx
	}
	chunk = strings.TrimSpace(text[:at])
	rest = strings.TrimSpace(text[at:])
	return chunk, rest
}

// moreSuffix renders the " (N more)" marker for a stored remainder.
func moreSuffix(rest string) string {
	n := int(math.Ceil(float64(len(rest)) / float64(Limit)))
	return " (" + strconv.Itoa(n) + " more)"
}
