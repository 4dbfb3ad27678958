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
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bitcanon/ircbridge/pkg/acl"
	"github.com/bitcanon/ircbridge/pkg/irc"
	"github.com/bitcanon/ircbridge/pkg/pager"
	"github.com/bitcanon/ircbridge/pkg/plugins"
)

// rc is the outcome of the internal command handler.
type rc int

const (
	rcHandled rc = iota
	rcError
	rcNotInternal
)

// runInternal executes a built-in command. rcNotInternal means the
// command belongs to an external plugin and must go out on the bus.
func (b *Bot) runInternal(respCh, prefix, cmd string, args []string) rc {
	switch cmd {
	case "addacl":
		return b.cmdAddACL(respCh, args)
	case "delacl":
		return b.cmdDelACL(respCh, args)
	case "listacls":
		return b.cmdListACLs(respCh, args)
	case "deluser":
		return b.cmdDelUser(respCh, args)
	case "clone":
		return b.cmdClone(respCh, args)
	case "meet":
		return b.cmdMeet(respCh, args)
	case "commands":
		b.sendOK(respCh, "Known commands: "+strings.Join(b.reg.Commands(), ", "))
		return rcHandled
	case "help":
		return b.cmdHelp(respCh, args)
	case "more":
		return b.cmdMore(respCh)
	case "define", "alias":
		return b.cmdDefine(respCh, cmd, args)
	case "deldefine":
		return b.cmdDelDefine(respCh, args)
	case "searchdefine", "searchalias":
		return b.cmdSearch(respCh, cmd, args)
	case "viewalias":
		return b.cmdViewAlias(respCh, args)
	case "listgroups":
		return b.cmdListGroups(respCh)
	case "showgroup":
		return b.cmdShowGroup(respCh, args)
	case "apro":
		return b.cmdApro(respCh, args)
	case "listlp":
		return b.cmdListLP(respCh)
	case "showlp":
		return b.cmdShowLP(respCh, args)
	case "loadlp":
		return b.cmdLoadLP(respCh, args)
	case "reloadlp":
		return b.cmdReloadLP(respCh, args)
	}
	return rcNotInternal
}

// resolveIdentity maps a nick, identity or group name onto the ACL
// "who" column without network round-trips.
func (b *Bot) resolveIdentity(name string) string {
	if name == "" {
		return ""
	}
	if id := b.irc.Identity(name); id != "" {
		return strings.ToLower(id)
	}
	if strings.Contains(name, "!") {
		return strings.ToLower(name)
	}
	if ok, _ := b.acls.IsGroup(name); ok {
		return strings.ToLower(name)
	}
	return ""
}

// resolveUser is resolveIdentity with a WHO round-trip fallback.
func (b *Bot) resolveUser(name string) string {
	if id := b.resolveIdentity(name); id != "" {
		return id
	}
	if id := b.irc.InvokeWhoAndWait(name); id != "" {
		return strings.ToLower(id)
	}
	return ""
}

// findArg returns the value following a key token, e.g. the group name
// after "group" in "addacl user bob group sysops".
func findArg(args []string, key string, from int) (string, bool) {
	for i := from; i < len(args)-1; i++ {
		if args[i] == key {
			return args[i+1], true
		}
	}
	return "", false
}

func (b *Bot) cmdAddACL(respCh string, args []string) rc {
	if len(args) < 4 {
		b.sendError(respCh, "Usage: addacl user|group <user|group> group|cmd <group-name|cmd-name>")
		return rcError
	}
	who := b.resolveUser(args[1])
	if who == "" {
		b.sendError(respCh, fmt.Sprintf("User or group %q is not known", args[1]))
		return rcError
	}

	if group, ok := findArg(args, "group", 2); ok {
		if err := b.acls.GroupAdd(who, group); err != nil {
			b.sendError(respCh, fmt.Sprintf("Cannot add %s to group %s", who, group))
			return rcError
		}
		b.sendOK(respCh, fmt.Sprintf("User %s added to group %s", who, group))
		return rcHandled
	}

	if cmdName, ok := findArg(args, "cmd", 2); ok {
		if _, known := b.reg.Lookup(strings.ToLower(cmdName)); !known {
			b.sendError(respCh, fmt.Sprintf("ACL for %s NOT added: command/plugin %q not known", who, cmdName))
			return rcHandled
		}
		if err := b.acls.Add(who, cmdName); err != nil {
			b.sendError(respCh, fmt.Sprintf("Cannot add ACL for %s on %s", who, cmdName))
			return rcError
		}
		b.sendOK(respCh, fmt.Sprintf("ACL added for user %s for command %s", who, cmdName))
		return rcHandled
	}

	b.sendError(respCh, "Usage: addacl user|group <user|group> group|cmd <group-name|cmd-name>")
	return rcError
}

func (b *Bot) cmdDelACL(respCh string, args []string) rc {
	if len(args) < 3 {
		b.sendError(respCh, "Usage: delacl <user> group|cmd <group-name|cmd-name>")
		return rcError
	}
	who := b.resolveUser(args[0])
	if who == "" {
		who = strings.ToLower(args[0])
	}

	if group, ok := findArg(args, "group", 0); ok {
		err := b.acls.GroupDel(who, group)
		switch {
		case errors.Is(err, acl.ErrNotFound):
			b.sendError(respCh, fmt.Sprintf("User %s is not in group %s", who, group))
			return rcError
		case err != nil:
			b.sendError(respCh, fmt.Sprintf("Cannot remove %s from group %s", who, group))
			return rcError
		}
		b.sendOK(respCh, fmt.Sprintf("User %s removed from group %s", who, group))
		return rcHandled
	}

	if cmdName, ok := findArg(args, "cmd", 0); ok {
		err := b.acls.Del(who, cmdName)
		switch {
		case errors.Is(err, acl.ErrNotFound):
			b.sendError(respCh, fmt.Sprintf("No ACL for %s on %s", who, cmdName))
			return rcError
		case err != nil:
			b.sendError(respCh, fmt.Sprintf("Cannot remove ACL for %s on %s", who, cmdName))
			return rcError
		}
		b.sendOK(respCh, fmt.Sprintf("ACL removed for user %s for command %s", who, cmdName))
		return rcHandled
	}

	b.sendError(respCh, "Usage: delacl <user> group|cmd <group-name|cmd-name>")
	return rcError
}

func (b *Bot) cmdListACLs(respCh string, args []string) rc {
	if len(args) < 1 {
		b.sendError(respCh, "Please provide a nick or group")
		return rcError
	}
	who := b.resolveUser(args[0])
	if who == "" {
		who = strings.ToLower(args[0])
	}
	acls, err := b.acls.List(who)
	if err != nil {
		b.sendError(respCh, fmt.Sprintf("Cannot list ACLs for %s", who))
		return rcError
	}
	b.sendOK(respCh, fmt.Sprintf("ACLs for user %s: %q", who, strings.Join(acls, ", ")))
	return rcHandled
}

func (b *Bot) cmdDelUser(respCh string, args []string) rc {
	if len(args) != 1 {
		b.sendError(respCh, "User not specified")
		return rcError
	}
	if err := b.acls.Forget(args[0]); err != nil {
		b.sendError(respCh, fmt.Sprintf("User %s not known or some other error", args[0]))
		return rcError
	}
	b.sendOK(respCh, fmt.Sprintf("User %s forgotten", args[0]))
	return rcHandled
}

func (b *Bot) cmdClone(respCh string, args []string) rc {
	if len(args) != 2 {
		b.sendError(respCh, `User "from" and/or "to" not specified`)
		return rcError
	}
	from := b.resolveUser(args[0])
	to := b.resolveUser(args[1])
	if from == "" || to == "" {
		b.sendError(respCh, fmt.Sprintf("Either %s or %s is unknown", args[0], args[1]))
		return rcError
	}
	if err := b.acls.Clone(from, to); err != nil {
		b.sendError(respCh, fmt.Sprintf("Cannot clone %s to %s", args[0], args[1]))
		return rcError
	}
	b.sendOK(respCh, fmt.Sprintf("User %s cloned (to %s)", args[0], args[1]))
	return rcHandled
}

func (b *Bot) cmdMeet(respCh string, args []string) rc {
	if len(args) != 1 {
		b.sendError(respCh, "Meet parameter missing")
		return rcError
	}
	nick := args[0]
	id := b.irc.InvokeWhoAndWait(nick)
	if id == "" {
		b.sendError(respCh, fmt.Sprintf("User %s is not known", nick))
		return rcError
	}
	if err := b.acls.Update(nick, id); err != nil {
		b.sendError(respCh, fmt.Sprintf("Cannot update ACLs for %s", nick))
		return rcError
	}
	b.sendOK(respCh, fmt.Sprintf("User %s updated to %s", nick, strings.ToLower(id)))
	return rcHandled
}

func (b *Bot) cmdHelp(respCh string, args []string) rc {
	if len(args) != 1 {
		b.sendOK(respCh, "Known commands: "+strings.Join(b.reg.Commands(), ", "))
		return rcHandled
	}
	entry, ok := b.reg.Lookup(strings.ToLower(args[0]))
	if !ok {
		b.sendError(respCh, "Command/plugin not known")
		return rcError
	}
	group := entry.Group
	if group == "" {
		group = "everyone"
	}
	b.sendOK(respCh, fmt.Sprintf("%s (group: %s)", entry.Description, group))
	return rcHandled
}

func (b *Bot) cmdMore(respCh string) rc {
	chunk, kind, ok := b.pager.More(respCh)
	if !ok {
		b.sendOK(respCh, pager.NoMore)
		return rcHandled
	}
	if kind == pager.Notice {
		b.irc.SendMessage(irc.Notice, respCh, chunk)
	} else {
		b.irc.SendMessage(irc.Privmsg, respCh, chunk)
	}
	return rcHandled
}

func (b *Bot) cmdDefine(respCh, cmd string, args []string) rc {
	if len(args) < 2 {
		b.sendError(respCh, fmt.Sprintf("%s missing arguments", cmd))
		return rcError
	}
	name := strings.ToLower(args[0])
	if _, known := b.reg.Lookup(name); known {
		b.sendError(respCh, "Cannot override internal/plugin commands")
		return rcError
	}
	nr, err := b.defs.Add(name, cmd == "alias", strings.Join(args[1:], " "))
	if err != nil {
		b.sendError(respCh, fmt.Sprintf("Failed to add %s", cmd))
		return rcError
	}
	b.sendOK(respCh, fmt.Sprintf("%s added (number: %d)", cmd, nr))
	return rcHandled
}

func (b *Bot) cmdDelDefine(respCh string, args []string) rc {
	if len(args) != 1 {
		b.sendError(respCh, "deldefine missing arguments")
		return rcError
	}
	nr, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.sendError(respCh, fmt.Sprintf("%q is not a number", args[0]))
		return rcError
	}
	if err := b.defs.Del(nr); err != nil {
		b.sendError(respCh, fmt.Sprintf("Failed to delete %d", nr))
		return rcError
	}
	b.sendOK(respCh, fmt.Sprintf("Define %d deleted", nr))
	return rcHandled
}

func (b *Bot) cmdSearch(respCh, cmd string, args []string) rc {
	if len(args) != 1 {
		b.sendError(respCh, fmt.Sprintf("%s missing arguments", cmd))
		return rcError
	}
	rows, err := b.defs.Search(args[0], cmd == "searchalias")
	if err != nil {
		b.sendError(respCh, "Search failed")
		return rcError
	}
	if len(rows) == 0 {
		b.sendOK(respCh, "Nothing found")
		return rcHandled
	}
	var parts []string
	for _, r := range rows {
		parts = append(parts, fmt.Sprintf("%d: %s => %s", r.Nr, r.Command, r.Text))
	}
	b.sendOK(respCh, strings.Join(parts, " | "))
	return rcHandled
}

func (b *Bot) cmdViewAlias(respCh string, args []string) rc {
	if len(args) != 1 {
		b.sendError(respCh, "viewalias missing arguments")
		return rcError
	}
	rows, err := b.defs.Lookup(args[0])
	if err != nil {
		b.sendError(respCh, "Lookup failed")
		return rcError
	}
	if len(rows) == 0 {
		b.sendError(respCh, fmt.Sprintf("%q is not known", args[0]))
		return rcError
	}
	var parts []string
	for _, r := range rows {
		parts = append(parts, fmt.Sprintf("%d: %s", r.Nr, r.Text))
	}
	b.sendOK(respCh, strings.Join(parts, " | "))
	return rcHandled
}

func (b *Bot) cmdListGroups(respCh string) rc {
	groups, err := b.acls.ListGroups()
	if err != nil {
		b.sendError(respCh, "Cannot list groups")
		return rcError
	}
	b.sendOK(respCh, "Known groups: "+strings.Join(groups, ", "))
	return rcHandled
}

func (b *Bot) cmdShowGroup(respCh string, args []string) rc {
	if len(args) != 1 {
		b.sendError(respCh, "Group not specified")
		return rcError
	}
	members, err := b.acls.ShowGroup(args[0])
	if err != nil {
		b.sendError(respCh, fmt.Sprintf("Cannot show group %s", args[0]))
		return rcError
	}
	b.sendOK(respCh, fmt.Sprintf("Members of %s: %s", args[0], strings.Join(members, ", ")))
	return rcHandled
}

func (b *Bot) cmdApro(respCh string, args []string) rc {
	if len(args) != 1 {
		b.sendError(respCh, "apro missing arguments")
		return rcError
	}
	needle := strings.ToLower(args[0])
	var matches []string
	for cmd, e := range b.reg.Snapshot() {
		if strings.Contains(strings.ToLower(cmd), needle) ||
			strings.Contains(strings.ToLower(e.Description), needle) {
			matches = append(matches, cmd)
		}
	}
	if len(matches) == 0 {
		b.sendOK(respCh, "Nothing found")
		return rcHandled
	}
	sort.Strings(matches)
	b.sendOK(respCh, "Matching commands: "+strings.Join(matches, ", "))
	return rcHandled
}

func (b *Bot) cmdListLP(respCh string) rc {
	names, err := b.lp.List()
	if err != nil {
		b.sendError(respCh, "Cannot list local plugins")
		return rcError
	}
	var running []string
	for _, p := range b.lp.Running() {
		running = append(running, p.Name)
	}
	b.sendOK(respCh, fmt.Sprintf("Local plugins: %s (running: %s)",
		strings.Join(names, ", "), strings.Join(running, ", ")))
	return rcHandled
}

func (b *Bot) cmdShowLP(respCh string, args []string) rc {
	if len(args) != 1 {
		b.sendError(respCh, "Plugin not specified")
		return rcError
	}
	p, err := b.lp.Show(args[0])
	if err != nil {
		b.sendError(respCh, fmt.Sprintf("Plugin %s is not running", args[0]))
		return rcError
	}
	b.sendOK(respCh, fmt.Sprintf("%s: %s (pid %d, since %s)",
		p.Name, p.Path, p.PID, p.StartedAt.Format("2006-01-02 15:04:05")))
	return rcHandled
}

func (b *Bot) cmdLoadLP(respCh string, args []string) rc {
	if len(args) != 1 {
		b.sendError(respCh, "Plugin not specified")
		return rcError
	}
	if err := b.lp.Load(args[0]); err != nil {
		if errors.Is(err, plugins.ErrNotFound) {
			b.sendError(respCh, fmt.Sprintf("Plugin %s is not known", args[0]))
		} else {
			b.sendError(respCh, fmt.Sprintf("Cannot start plugin %s", args[0]))
		}
		return rcError
	}
	b.sendOK(respCh, fmt.Sprintf("Plugin %s started", args[0]))
	return rcHandled
}

func (b *Bot) cmdReloadLP(respCh string, args []string) rc {
	if len(args) != 1 {
		b.sendError(respCh, "Plugin not specified")
		return rcError
	}
	if err := b.lp.Reload(args[0]); err != nil {
		b.sendError(respCh, fmt.Sprintf("Cannot reload plugin %s", args[0]))
		return rcError
	}
	b.sendOK(respCh, fmt.Sprintf("Plugin %s reloaded", args[0]))
	return rcHandled
}
