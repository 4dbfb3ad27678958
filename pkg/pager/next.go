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
package pager

import "sync"

// Entry is one queued reply from a multi-match alias expansion.
type Entry struct {
	Notice bool
	Text   string
}

// NextQueue holds, per channel, replies queued by a single expansion
// and consumed by the "next" built-in.
type NextQueue struct {
	mu      sync.Mutex
	entries map[string][]Entry
}

// NewNextQueue returns an empty queue.
func NewNextQueue() *NextQueue {
	return &NextQueue{entries: make(map[string][]Entry)}
}

// Reset drops whatever an earlier expansion left for the channel.
func (q *NextQueue) Reset(channel string) {
	q.mu.Lock()
	delete(q.entries, channel)
	q.mu.Unlock()
}

// Push appends an entry for the channel.
func (q *NextQueue) Push(channel string, e Entry) {
	q.mu.Lock()
	q.entries[channel] = append(q.entries[channel], e)
	q.mu.Unlock()
}

// Pop removes and returns the oldest entry for the channel.
func (q *NextQueue) Pop(channel string) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	list := q.entries[channel]
	if len(list) == 0 {
		return Entry{}, false
	}
	e := list[0]
	if len(list) == 1 {
		delete(q.entries, channel)
	} else {
		q.entries[channel] = list[1:]
	}
	return e, true
}

// Drain removes entries until the queue is empty or their combined
// length would exceed maxLen.
func (q *NextQueue) Drain(channel string, maxLen int) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Entry
	total := 0
	list := q.entries[channel]
	for len(list) > 0 {
		next := list[0]
		if len(out) > 0 && total+len(next.Text) > maxLen {
			break
		}
		out = append(out, next)
		total += len(next.Text)
		list = list[1:]
	}
	if len(list) == 0 {
		delete(q.entries, channel)
	} else {
		q.entries[channel] = list
	}
	return out
}

// Len reports how many entries are queued for the channel.
func (q *NextQueue) Len(channel string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries[channel])
}
