package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/bitcanon/ircbridge/pkg/irc"
	"github.com/bitcanon/ircbridge/pkg/registry"
)

// TestHelpBuiltin tests the exact help reply for a hardcoded command.
func TestHelpBuiltin(t *testing.T) {
	h := newHarness()
	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~help addacl")

	msgs := h.irc.messages()
	want := "Add an ACL, format: addacl user|group <user|group> group|cmd <group-name|cmd-name> (group: sysops)"
	if len(msgs) != 1 || msgs[0].kind != irc.Privmsg || msgs[0].target != "#chan" || msgs[0].text != want {
		t.Errorf("expected %q on #chan, got %v", want, msgs)
	}
}

// TestACLDenied tests that a denied command produces an error naming
// the required group and no bus publish.
func TestACLDenied(t *testing.T) {
	h := newHarness()
	h.reg.Register("cmd=roll|descr=Roll dice|agrp=games")
	h.acls.allow = false

	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~roll 2d6")

	msgs := h.irc.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].text, "games") {
		t.Errorf("expected denial naming games, got %v", msgs)
	}
	for _, p := range h.bus.published() {
		if strings.Contains(p.topic, "/roll") {
			t.Errorf("denied command must not reach the bus: %v", p)
		}
	}
}

// TestACLGranted tests that a granted external command goes out on the
// bus with the full text and produces no IRC output.
func TestACLGranted(t *testing.T) {
	h := newHarness()
	h.reg.Register("cmd=roll|descr=Roll dice|agrp=games")
	h.acls.allow = true

	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~roll 2d6")

	pubs := h.bus.published()
	if len(pubs) != 1 {
		t.Fatalf("expected one publish, got %v", pubs)
	}
	if pubs[0].topic != "from/irc/chan/alice!u@h/roll" || pubs[0].payload != "~roll 2d6" {
		t.Errorf("unexpected publish %v", pubs[0])
	}
	if msgs := h.irc.messages(); len(msgs) != 0 {
		t.Errorf("granted external command must not produce IRC output, got %v", msgs)
	}
}

// TestGrouplessCommandSkipsACL tests that commands requiring no group
// dispatch without touching the database.
func TestGrouplessCommandSkipsACL(t *testing.T) {
	h := newHarness()
	h.reg.Register("cmd=uptime|descr=Uptime|agrp=")
	h.acls.allow = false

	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~uptime")

	for _, c := range h.acls.calls {
		if strings.HasPrefix(c, "check") {
			t.Errorf("groupless command must not query ACLs: %v", h.acls.calls)
		}
	}
	if pubs := h.bus.published(); len(pubs) != 1 || pubs[0].topic != "from/irc/chan/alice!u@h/uptime" {
		t.Errorf("expected bus publish, got %v", pubs)
	}
}

// TestAliasLoopTerminates tests the expansion bound with a cycle.
func TestAliasLoopTerminates(t *testing.T) {
	h := newHarness()
	h.defs.Add("a", true, "b")
	h.defs.Add("b", true, "a")

	done := make(chan struct{})
	go func() {
		h.bot.HandlePrivmsg("#chan", "alice!u@h", "~a")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("alias expansion did not terminate")
	}

	msgs := h.irc.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].text, "not known") {
		t.Errorf("expected a not-known error, got %v", msgs)
	}
}

// TestCommandAliasRewrites tests that an alias re-enters dispatch with
// the target command and the original query appended.
func TestCommandAliasRewrites(t *testing.T) {
	h := newHarness()
	h.reg.Register("cmd=roll|descr=Roll dice|agrp=")
	h.defs.Add("dice", true, "roll")

	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~dice 2d6")

	pubs := h.bus.published()
	if len(pubs) != 1 || pubs[0].topic != "from/irc/chan/alice!u@h/roll" || pubs[0].payload != "~roll 2d6" {
		t.Errorf("unexpected publish %v", pubs)
	}
}

// TestDefineRepliesImmediately tests that a define replies without
// entering command dispatch.
func TestDefineRepliesImmediately(t *testing.T) {
	h := newHarness()
	h.defs.Add("greet", false, "hello %u")

	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~greet")

	msgs := h.irc.messages()
	if len(msgs) != 1 || msgs[0].text != "hello alice" {
		t.Errorf("expected define reply, got %v", msgs)
	}
	if pubs := h.bus.published(); len(pubs) != 0 {
		t.Errorf("define must not publish, got %v", pubs)
	}
}

// TestMultiDefineQueuesRest tests that extra matches wait in the next
// queue and are popped by the next built-in.
func TestMultiDefineQueuesRest(t *testing.T) {
	h := newHarness()
	h.defs.Add("quote", false, "first quote")
	h.defs.Add("quote", false, "second quote")
	h.defs.Add("quote", false, "third quote")

	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~quote")
	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~next")
	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~next")
	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~next")

	msgs := h.irc.messages()
	want := []string{"first quote", "second quote", "third quote", "No more next"}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %v", len(want), msgs)
	}
	for i, w := range want {
		if msgs[i].text != w {
			t.Errorf("message %d: expected %q, got %q", i, w, msgs[i].text)
		}
	}
}

// TestNextDrainAll tests the -a flag.
func TestNextDrainAll(t *testing.T) {
	h := newHarness()
	h.defs.Add("quote", false, "first quote")
	h.defs.Add("quote", false, "second quote")
	h.defs.Add("quote", false, "third quote")

	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~quote")
	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~next -a")

	msgs := h.irc.messages()
	if len(msgs) != 3 {
		t.Fatalf("expected first reply plus two drained, got %v", msgs)
	}
	if msgs[1].text != "second quote" || msgs[2].text != "third quote" {
		t.Errorf("drain order wrong: %v", msgs)
	}
}

// fakeReg implements Registrar with a scripted gone table.
type fakeReg struct {
	entries map[string]registry.Entry
	gone    map[string]time.Time
}

func (f *fakeReg) AddHardcoded(cmd, descr, group string) {
	f.entries[cmd] = registry.Entry{Description: descr, Group: group, Hardcoded: true}
}

func (f *fakeReg) Register(payload string) error { return nil }

func (f *fakeReg) Lookup(cmd string) (registry.Entry, bool) {
	e, ok := f.entries[cmd]
	return e, ok
}

func (f *fakeReg) Gone(cmd string) (time.Time, bool) {
	t, ok := f.gone[cmd]
	return t, ok
}

func (f *fakeReg) Commands() []string                  { return nil }
func (f *fakeReg) Snapshot() map[string]registry.Entry { return f.entries }

// TestEvictedPluginReported tests the unresponsive wording for a
// command that timed out of the registry.
func TestEvictedPluginReported(t *testing.T) {
	h := newHarness()
	now := time.Now()
	reg := &fakeReg{
		entries: make(map[string]registry.Entry),
		gone:    map[string]time.Time{"weather": now.Add(-11 * time.Second)},
	}
	h.bot.reg = reg
	h.bot.now = func() time.Time { return now }

	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~weather")

	msgs := h.irc.messages()
	if len(msgs) != 1 || msgs[0].text != `Command "weather" is unresponsive for 11.0 seconds` {
		t.Errorf("unexpected reply %v", msgs)
	}
}

// TestUnknownCommandSuggests tests the spelling suggestions.
func TestUnknownCommandSuggests(t *testing.T) {
	h := newHarness()
	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~helq")

	msgs := h.irc.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one reply, got %v", msgs)
	}
	if !strings.Contains(msgs[0].text, "not known") || !strings.Contains(msgs[0].text, "help") {
		t.Errorf("expected suggestion containing help, got %q", msgs[0].text)
	}
}

// TestDirectMessageReplyGoesToNick tests the response-channel rule.
func TestDirectMessageReplyGoesToNick(t *testing.T) {
	h := newHarness()
	h.bot.HandlePrivmsg("bot", "alice!u@h", "help addacl")

	msgs := h.irc.messages()
	if len(msgs) != 1 || msgs[0].target != "alice" {
		t.Errorf("expected reply to alice, got %v", msgs)
	}
}

// TestDirectMessageExternalUsesEscapedTopic tests the PM bus topic.
func TestDirectMessageExternalUsesEscapedTopic(t *testing.T) {
	h := newHarness()
	h.reg.Register("cmd=roll|descr=Roll dice|agrp=")

	h.bot.HandlePrivmsg("bot", "alice!u@h", "~roll 2d6")

	pubs := h.bus.published()
	if len(pubs) != 1 || pubs[0].topic != `from/irc/\alice/alice!u@h/roll` {
		t.Errorf("unexpected publish %v", pubs)
	}
}

// TestLongReplyPaged tests paging of an oversized internal reply and
// the more built-in, end to end.
func TestLongReplyPaged(t *testing.T) {
	h := newHarness()
	word := strings.Repeat("x", 9)
	var sb strings.Builder
	for sb.Len() < 1500 {
		sb.WriteString(word)
		sb.WriteByte(' ')
	}
	long := strings.TrimSpace(sb.String())

	h.bot.sendOK("#chan", long)
	for i := 0; i < 3; i++ {
		h.bot.HandlePrivmsg("#chan", "alice!u@h", "~more")
	}
	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~more")

	msgs := h.irc.messages()
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	if !strings.HasSuffix(msgs[0].text, "(3 more)") {
		t.Errorf("first chunk suffix: %q", msgs[0].text)
	}
	if msgs[4].text != "No more more" {
		t.Errorf("exhausted pager: %q", msgs[4].text)
	}

	var total int
	for _, m := range msgs[:4] {
		text := m.text
		if idx := strings.LastIndex(text, " ("); idx != -1 && strings.HasSuffix(text, "more)") {
			text = text[:idx]
		}
		total += len(strings.ReplaceAll(text, " ", ""))
	}
	if want := len(strings.ReplaceAll(long, " ", "")); total != want {
		t.Errorf("content lost in paging: %d != %d", total, want)
	}
}
