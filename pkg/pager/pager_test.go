package pager

import (
	"strings"
	"testing"
)

// TestSendShortPassesThrough tests that short texts are not buffered.
func TestSendShortPassesThrough(t *testing.T) {
	p := New()
	out := p.Send("#c", Privmsg, "hello")
	if out != "hello" {
		t.Fatalf("expected pass-through, got %q", out)
	}
	if _, _, ok := p.More("#c"); ok {
		t.Fatal("no continuation should exist for a short text")
	}
}

// TestLongReplyPaging mirrors the long-reply scenario: a 1500 byte text
// yields a first chunk with "(3 more)", three continuations, then the
// fixed no-more line.
func TestLongReplyPaging(t *testing.T) {
	p := New()
	text := strings.Repeat("x", 1500) // no spaces: hard cuts at the limit

	first := p.Send("#c", Privmsg, text)
	if len(first) > Limit+slack+len(" (9 more)") {
		t.Fatalf("first chunk too long: %d", len(first))
	}
	if !strings.HasSuffix(first, " (3 more)") {
		t.Fatalf("expected (3 more) suffix, got %q", first)
	}

	var collected string
	collected += strings.TrimSuffix(first, " (3 more)")

	for i, wantSuffix := range []string{" (2 more)", " (1 more)", ""} {
		chunk, kind, ok := p.More("#c")
		if !ok {
			t.Fatalf("continuation %d missing", i+1)
		}
		if kind != Privmsg {
			t.Fatalf("continuation %d has wrong kind %v", i+1, kind)
		}
		if wantSuffix != "" && !strings.HasSuffix(chunk, wantSuffix) {
			t.Fatalf("continuation %d: expected suffix %q, got %q", i+1, wantSuffix, chunk)
		}
		collected += strings.TrimSuffix(chunk, wantSuffix)
	}

	if _, _, ok := p.More("#c"); ok {
		t.Fatal("expected empty buffers after final chunk")
	}

	// Order and content preserved: emitted bytes minus suffixes equal
	// the original text.
	if collected != text {
		t.Fatalf("reassembled text differs: len=%d want=%d", len(collected), len(text))
	}
}

// TestCutBreaksOnSpace tests the space search window past the limit.
func TestCutBreaksOnSpace(t *testing.T) {
	head := strings.Repeat("a", Limit+10)
	tail := strings.Repeat("z", 40)
	chunk, rest := cut(head + " " + tail)
	if chunk != head {
		t.Fatalf("expected break at the space, got chunk of %d bytes", len(chunk))
	}
	if rest != tail {
		t.Fatalf("expected rest %q, got %q", tail, rest)
	}
}

func TestCutHardFallback(t *testing.T) {
	text := strings.Repeat("b", Limit+slack+100)
	chunk, rest := cut(text)
	if len(chunk) != Limit {
		t.Fatalf("expected hard cut at %d, got %d", Limit, len(chunk))
	}
	if chunk+rest != text {
		t.Fatal("hard cut lost bytes")
	}
}

// TestNoticePrecedence tests that More drains the NOTICE buffer first.
func TestNoticePrecedence(t *testing.T) {
	p := New()
	p.Send("#c", Privmsg, strings.Repeat("p", 600))
	p.Send("#c", Notice, strings.Repeat("n", 600))

	_, kind, ok := p.More("#c")
	if !ok || kind != Notice {
		t.Fatalf("expected NOTICE buffer first, got kind=%v ok=%v", kind, ok)
	}
	_, kind, ok = p.More("#c")
	if !ok || kind != Privmsg {
		t.Fatalf("expected PRIVMSG buffer second, got kind=%v ok=%v", kind, ok)
	}
}

// TestChannelsIndependent tests that buffers do not leak across
// channels.
func TestChannelsIndependent(t *testing.T) {
	p := New()
	p.Send("#a", Privmsg, strings.Repeat("x", 600))
	if _, _, ok := p.More("#b"); ok {
		t.Fatal("channel #b must not see #a's buffer")
	}
}

func TestNextQueueOrder(t *testing.T) {
	q := NewNextQueue()
	q.Push("#c", Entry{Text: "one"})
	q.Push("#c", Entry{Text: "two", Notice: true})

	e, ok := q.Pop("#c")
	if !ok || e.Text != "one" {
		t.Fatalf("expected one, got %+v ok=%v", e, ok)
	}
	e, ok = q.Pop("#c")
	if !ok || e.Text != "two" || !e.Notice {
		t.Fatalf("expected two/notice, got %+v", e)
	}
	if _, ok := q.Pop("#c"); ok {
		t.Fatal("queue should be empty")
	}
}

func TestNextQueueDrain(t *testing.T) {
	q := NewNextQueue()
	q.Push("#c", Entry{Text: strings.Repeat("a", 300)})
	q.Push("#c", Entry{Text: strings.Repeat("b", 300)})
	q.Push("#c", Entry{Text: "c"})

	out := q.Drain("#c", 450)
	if len(out) != 1 {
		t.Fatalf("expected 1 entry within budget, got %d", len(out))
	}
	if q.Len("#c") != 2 {
		t.Fatalf("expected 2 entries left, got %d", q.Len("#c"))
	}

	// A drain always yields at least one entry even when oversized.
	q2 := NewNextQueue()
	q2.Push("#c", Entry{Text: strings.Repeat("a", 1000)})
	if out := q2.Drain("#c", 450); len(out) != 1 {
		t.Fatalf("oversized first entry must still drain, got %d", len(out))
	}
}

func TestNextQueueReset(t *testing.T) {
	q := NewNextQueue()
	q.Push("#c", Entry{Text: "stale"})
	q.Reset("#c")
	if _, ok := q.Pop("#c"); ok {
		t.Fatal("reset should clear the queue")
	}
}
