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

// Package bot ties the IRC session, the bus, the databases and the
// command registry together: it owns the dispatch pipeline, the
// built-in commands and the bus-to-IRC bridge.
package bot

import (
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bitcanon/ircbridge/pkg/alias"
	"github.com/bitcanon/ircbridge/pkg/bus"
	"github.com/bitcanon/ircbridge/pkg/config"
	"github.com/bitcanon/ircbridge/pkg/irc"
	"github.com/bitcanon/ircbridge/pkg/metrics"
	"github.com/bitcanon/ircbridge/pkg/pager"
	"github.com/bitcanon/ircbridge/pkg/plugins"
	"github.com/bitcanon/ircbridge/pkg/registry"
)

// Messenger is the slice of the IRC session the bot drives.
type Messenger interface {
	SendMessage(kind irc.Kind, target, text string) error
	SendRaw(line string) error
	Nick() string
	Channels() []string
	Identity(nick string) string
	InvokeWhoAndWait(nick string) string
	Topic(channel string) string
	Users() map[string]string
}

// Publisher is the bus surface the bot writes to.
type Publisher interface {
	Publish(topic, payload string)
	PublishRetained(topic, payload string)
}

// Registrar is the command table the dispatcher consults.
type Registrar interface {
	AddHardcoded(cmd, description, group string)
	Register(payload string) error
	Lookup(cmd string) (registry.Entry, bool)
	Gone(cmd string) (time.Time, bool)
	Commands() []string
	Snapshot() map[string]registry.Entry
}

// ACLStore is the authorization backend.
type ACLStore interface {
	Check(who, command, requiredGroup string) (bool, error)
	Add(who, command string) error
	Del(who, command string) error
	Forget(nick string) error
	Clone(from, to string) error
	Update(nick, newIdentity string) error
	GroupAdd(who, group string) error
	GroupDel(who, group string) error
	List(who string) ([]string, error)
	IsGroup(group string) (bool, error)
	ListGroups() ([]string, error)
	ShowGroup(group string) ([]string, error)
}

// AliasStore is the alias/define backend.
type AliasStore interface {
	Add(command string, isCommand bool, text string) (int64, error)
	Del(nr int64) error
	Lookup(command string) ([]alias.Row, error)
	Search(substr string, isCommand bool) ([]alias.Row, error)
}

// Bot is the bridge core.
type Bot struct {
	cfg   config.Config
	log   *logrus.Entry
	irc   Messenger
	bus   Publisher
	acls  ACLStore
	defs  AliasStore
	reg   Registrar
	pager *pager.Pager
	next  *pager.NextQueue
	lp    *plugins.Supervisor

	intn func(n int) int
	now  func() time.Time
}

// New wires the bot and seeds the hardcoded command set.
func New(cfg config.Config, m Messenger, p Publisher, acls ACLStore, defs AliasStore, reg Registrar, lp *plugins.Supervisor, log *logrus.Logger) *Bot {
	b := &Bot{
		cfg:   cfg,
		log:   log.WithField("component", "bot"),
		irc:   m,
		bus:   p,
		acls:  acls,
		defs:  defs,
		reg:   reg,
		pager: pager.New(),
		next:  pager.NewNextQueue(),
		lp:    lp,
		intn:  rand.Intn,
		now:   time.Now,
	}
	b.seedBuiltins()
	return b
}

func (b *Bot) seedBuiltins() {
	seed := []struct {
		cmd, descr, group string
	}{
		{"addacl", "Add an ACL, format: addacl user|group <user|group> group|cmd <group-name|cmd-name>", "sysops"},
		{"delacl", "Remove an ACL, format: delacl <user> group|cmd <group-name|cmd-name>", "sysops"},
		{"listacls", "List all ACLs for a user or group", "sysops"},
		{"deluser", "Forget a person; removes all ACLs for that nick", "sysops"},
		{"clone", "Clone ACLs from one user to another", "sysops"},
		{"meet", "Use this when a user (nick) has a new hostname", "sysops"},
		{"commands", "Show list of known commands", ""},
		{"help", "Help for commands, parameter is the command to get help for", ""},
		{"more", "Continue outputting a too long line of text", ""},
		{"next", "Show the next queued reply", ""},
		{"define", "Define a replacement for text, see ~alias", ""},
		{"deldefine", "Delete a define (by number)", ""},
		{"alias", "Add a different name for a command", ""},
		{"searchdefine", "Search for a define by substring", ""},
		{"searchalias", "Search for an alias by substring", ""},
		{"viewalias", "Show the replacement text of an alias or define", ""},
		{"listgroups", "List all ACL groups", "sysops"},
		{"showgroup", "Show the members of an ACL group", "sysops"},
		{"apro", "Search known commands and their descriptions", ""},
		{"listlp", "List local plugins and which of them run", "sysops"},
		{"showlp", "Show details of a running local plugin", "sysops"},
		{"loadlp", "Start a local plugin", "sysops"},
		{"reloadlp", "Restart a local plugin", "sysops"},
	}
	for _, s := range seed {
		b.reg.AddHardcoded(s.cmd, s.descr, s.group)
	}
}

// Subscriber registers bus handlers; satisfied by *bus.Client.
type Subscriber interface {
	Subscribe(filter string, h bus.Handler)
}

// Start subscribes to the inbound side of the bus and announces the
// bot so plugins re-register.
func (b *Bot) Start(sub Subscriber) {
	sub.Subscribe("to/#", b.HandleBus)

	b.bus.Publish("from/bot/command", "register")
	b.bus.PublishRetained("from/bot/parameter/cmd-prefix", b.cfg.IRC.Prefix)
}

// HandleBus routes one inbound bus message. The topic arrives with the
// configured prefix already stripped.
func (b *Bot) HandleBus(topic, payload string) {
	if strings.ContainsAny(payload, "\r\n") {
		metrics.BusMessagesDropped.Inc()
		b.log.WithField("topic", topic).Error("dropping payload with line break")
		return
	}

	switch {
	case topic == "to/bot/register":
		if err := b.reg.Register(payload); err != nil {
			b.log.WithError(err).WithField("payload", payload).Warn("registration rejected")
		}

	case topic == "to/bot/request":
		if payload == "topics" {
			for _, ch := range b.irc.Channels() {
				b.bus.Publish("from/irc/"+chanName(ch)+"/topic", b.irc.Topic(ch))
			}
		}

	case strings.HasPrefix(topic, "to/irc-person/"):
		nick := strings.TrimPrefix(strings.TrimPrefix(topic, "to/irc-person/"), `\`)
		b.irc.SendMessage(irc.Privmsg, nick, payload)

	case strings.HasPrefix(topic, "to/irc/"):
		rest := strings.TrimPrefix(topic, "to/irc/")
		target, verb, _ := strings.Cut(rest, "/")
		if strings.HasPrefix(target, `\`) {
			// PM topic; any verb delivers as PRIVMSG to the nick.
			b.irc.SendMessage(irc.Privmsg, strings.TrimPrefix(target, `\`), payload)
			return
		}
		channel := "#" + target
		switch verb {
		case "privmsg":
			b.irc.SendMessage(irc.Privmsg, channel, alias.SubstituteOutbound(payload, b.intn))
		case "notice":
			b.irc.SendMessage(irc.Notice, channel, payload)
		case "topic":
			b.irc.SendRaw("TOPIC " + channel + " :" + payload)
		default:
			b.log.WithField("topic", topic).Debug("unknown irc verb")
		}

	default:
		b.log.WithField("topic", topic).Debug("unknown topic")
	}
}

// HandleNotice republishes a channel NOTICE onto the bus.
func (b *Bot) HandleNotice(channel, prefix, text string) {
	if !strings.HasPrefix(channel, "#") {
		return
	}
	b.bus.Publish("from/irc/"+chanName(channel)+"/"+prefix+"/notice", text)
}

// HandleTopic republishes a channel topic change onto the bus.
func (b *Bot) HandleTopic(channel, prefix, topic string) {
	b.bus.Publish("from/irc/"+chanName(channel)+"/topic", topic)
}

// HandleUserEvent republishes JOIN/PART/KICK/NICK/QUIT onto the bus.
// Events without a channel (QUIT, NICK) go out on every configured
// channel topic.
func (b *Bot) HandleUserEvent(event, channel, prefix string) {
	channels := []string{channel}
	if channel == "" || !strings.HasPrefix(channel, "#") {
		channels = b.irc.Channels()
	}
	for _, ch := range channels {
		b.bus.Publish("from/irc/"+chanName(ch)+"/"+prefix+"/"+event, event)
	}
}

// responseChannel applies the reply-destination rule: direct messages
// are answered to the sender's bare nick, channel messages in place.
func (b *Bot) responseChannel(channel, prefix string) string {
	if strings.EqualFold(channel, b.irc.Nick()) {
		nick, _, _ := strings.Cut(prefix, "!")
		return nick
	}
	return channel
}

// busChannelPart renders the channel part of a from/irc topic; private
// chats use the backslash-prefixed nick.
func (b *Bot) busChannelPart(channel, prefix string) string {
	if strings.EqualFold(channel, b.irc.Nick()) {
		nick, _, _ := strings.Cut(prefix, "!")
		return `\` + nick
	}
	return chanName(channel)
}

func chanName(channel string) string {
	return strings.TrimPrefix(channel, "#")
}

func (b *Bot) sendOK(channel, text string) {
	chunk := b.pager.Send(channel, pager.Privmsg, text)
	b.irc.SendMessage(irc.Privmsg, channel, chunk)
}

func (b *Bot) sendError(channel, text string) {
	b.log.WithField("channel", channel).Warn(text)
	b.sendOK(channel, text)
}

// sendReply delivers define output, honoring the notice flag.
func (b *Bot) sendReply(channel, text string, notice bool) {
	if notice {
		chunk := b.pager.Send(channel, pager.Notice, text)
		b.irc.SendMessage(irc.Notice, channel, chunk)
		return
	}
	b.sendOK(channel, text)
}
