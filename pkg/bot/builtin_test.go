package bot

import (
	"strings"
	"testing"
)

// TestAddACLGroupBranch tests adding a user to a group by nick.
func TestAddACLGroupBranch(t *testing.T) {
	h := newHarness()
	h.acls.allow = true
	h.irc.users["bob"] = "Bob!b@example.net"

	h.bot.HandlePrivmsg("#chan", "admin!a@h", "~addacl user bob group sysops")

	var sawGroupAdd bool
	for _, c := range h.acls.calls {
		if c == "groupadd bob!b@example.net sysops" {
			sawGroupAdd = true
		}
	}
	if !sawGroupAdd {
		t.Errorf("expected group add call, got %v", h.acls.calls)
	}
	msgs := h.irc.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].text, "added to group sysops") {
		t.Errorf("unexpected reply %v", msgs)
	}
}

// TestAddACLCommandBranch tests granting a command, including the
// unknown-command refusal.
func TestAddACLCommandBranch(t *testing.T) {
	h := newHarness()
	h.acls.allow = true
	h.irc.users["bob"] = "Bob!b@example.net"

	h.bot.HandlePrivmsg("#chan", "admin!a@h", "~addacl user bob cmd help")
	h.bot.HandlePrivmsg("#chan", "admin!a@h", "~addacl user bob cmd bogus")

	var sawAdd bool
	for _, c := range h.acls.calls {
		if c == "add bob!b@example.net help" {
			sawAdd = true
		}
		if strings.Contains(c, "bogus") {
			t.Errorf("grant on unknown command must not reach the store: %v", c)
		}
	}
	if !sawAdd {
		t.Errorf("expected add call, got %v", h.acls.calls)
	}

	msgs := h.irc.messages()
	if len(msgs) != 2 || !strings.Contains(msgs[1].text, "not known") {
		t.Errorf("unexpected replies %v", msgs)
	}
}

// TestAddACLUsage tests the usage reply on malformed input.
func TestAddACLUsage(t *testing.T) {
	h := newHarness()
	h.acls.allow = true

	h.bot.HandlePrivmsg("#chan", "admin!a@h", "~addacl bob")

	msgs := h.irc.messages()
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0].text, "Usage: addacl") {
		t.Errorf("expected usage line, got %v", msgs)
	}
}

// TestMeetUpdatesACLs tests the WHO-then-update flow.
func TestMeetUpdatesACLs(t *testing.T) {
	h := newHarness()
	h.acls.allow = true
	h.irc.users["bob"] = "Bob!b@newhost.net"

	h.bot.HandlePrivmsg("#chan", "admin!a@h", "~meet bob")

	var sawUpdate bool
	for _, c := range h.acls.calls {
		if c == "update bob Bob!b@newhost.net" {
			sawUpdate = true
		}
	}
	if !sawUpdate {
		t.Errorf("expected update call, got %v", h.acls.calls)
	}
}

// TestDeluserForgets tests the deluser built-in.
func TestDeluserForgets(t *testing.T) {
	h := newHarness()
	h.acls.allow = true

	h.bot.HandlePrivmsg("#chan", "admin!a@h", "~deluser bob")

	if len(h.acls.calls) == 0 || h.acls.calls[len(h.acls.calls)-1] != "forget bob" {
		t.Errorf("expected forget call, got %v", h.acls.calls)
	}
	msgs := h.irc.messages()
	if len(msgs) != 1 || msgs[0].text != "User bob forgotten" {
		t.Errorf("unexpected reply %v", msgs)
	}
}

// TestDefineCannotShadowCommands tests the override guard.
func TestDefineCannotShadowCommands(t *testing.T) {
	h := newHarness()

	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~define help something else")

	msgs := h.irc.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].text, "Cannot override") {
		t.Errorf("unexpected reply %v", msgs)
	}
	if len(h.defs.rows) != 0 {
		t.Errorf("define must not be stored: %v", h.defs.rows)
	}
}

// TestDefineStored tests a successful define with its row number.
func TestDefineStored(t *testing.T) {
	h := newHarness()

	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~define greet hello %u")

	msgs := h.irc.messages()
	if len(msgs) != 1 || msgs[0].text != "define added (number: 1)" {
		t.Errorf("unexpected reply %v", msgs)
	}
	rows := h.defs.rows["greet"]
	if len(rows) != 1 || rows[0].IsCommand || rows[0].Text != "hello %u" {
		t.Errorf("stored row wrong: %+v", rows)
	}
}

// TestCommandsListsRegistry tests the commands built-in.
func TestCommandsListsRegistry(t *testing.T) {
	h := newHarness()
	h.reg.Register("cmd=weather|descr=Forecast|agrp=")

	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~commands")

	msgs := h.irc.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].text, "weather") || !strings.Contains(msgs[0].text, "help") {
		t.Errorf("unexpected reply %v", msgs)
	}
}

// TestAproSearchesDescriptions tests the apropos search.
func TestAproSearchesDescriptions(t *testing.T) {
	h := newHarness()
	h.reg.Register("cmd=weather|descr=Forecast for the coming days|agrp=")

	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~apro forecast")

	msgs := h.irc.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].text, "weather") {
		t.Errorf("unexpected reply %v", msgs)
	}
}

// TestViewAlias tests rendering of stored replacement texts.
func TestViewAlias(t *testing.T) {
	h := newHarness()
	h.defs.Add("greet", false, "hello %u")

	h.bot.HandlePrivmsg("#chan", "alice!u@h", "~viewalias greet")

	msgs := h.irc.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].text, "hello %u") {
		t.Errorf("unexpected reply %v", msgs)
	}
}

// TestListLPDisabled tests the local plugin listing without a plugin
// directory.
func TestListLPDisabled(t *testing.T) {
	h := newHarness()
	h.acls.allow = true

	h.bot.HandlePrivmsg("#chan", "admin!a@h", "~listlp")

	msgs := h.irc.messages()
	if len(msgs) != 1 || !strings.HasPrefix(msgs[0].text, "Local plugins:") {
		t.Errorf("unexpected reply %v", msgs)
	}
}
