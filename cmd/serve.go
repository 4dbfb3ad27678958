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
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bitcanon/ircbridge/pkg/acl"
	"github.com/bitcanon/ircbridge/pkg/alias"
	"github.com/bitcanon/ircbridge/pkg/bot"
	"github.com/bitcanon/ircbridge/pkg/bus"
	appcfg "github.com/bitcanon/ircbridge/pkg/config"
	"github.com/bitcanon/ircbridge/pkg/db"
	"github.com/bitcanon/ircbridge/pkg/httpd"
	"github.com/bitcanon/ircbridge/pkg/irc"
	"github.com/bitcanon/ircbridge/pkg/plugins"
	"github.com/bitcanon/ircbridge/pkg/ratelimit"
	"github.com/bitcanon/ircbridge/pkg/registry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the IRC to MQTT bridge bot",
	Long: `Run the IRC to MQTT bridge bot.

The serve command starts the main ircbridge service: it connects to the
configured IRC server, joins its channels and bridges traffic to plugins
over the MQTT bus. ACLs and aliases live in MySQL; an HTTP status server
exposes the plugin registry and Prometheus metrics.

IRC channels <-> dispatch pipeline <-> MQTT plugin bus

The command loads its configuration from the config file (default:
./ircbridge.ini). Most settings require a restart; SIGHUP or a config
file change reports which ones did change.`,
	SilenceUsage: true, // avoid printing usage on errors
	RunE: func(cmd *cobra.Command, args []string) error {
		if cf := viper.ConfigFileUsed(); cf != "" {
			fmt.Fprintf(os.Stderr, "Config file: %s\n", cf)
		}
		var cfg appcfg.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return err
		}

		log := logrus.New()
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		if viper.GetBool("debug") {
			log.SetLevel(logrus.DebugLevel)
		}

		// Print effective settings to catch env overrides
		fmt.Fprintf(os.Stderr, "IRC server: %s\n", cfg.IRC.Addr())
		fmt.Fprintf(os.Stderr, "Nick: %s, Channels: %s\n", cfg.IRC.Nick, strings.Join(cfg.IRC.ChannelList(), ", "))
		fmt.Fprintf(os.Stderr, "MQTT broker: %s (prefix %q)\n", cfg.MQTT.Host, cfg.MQTT.Prefix)
		fmt.Fprintf(os.Stderr, "MySQL: %s/%s\n", cfg.DB.Host, cfg.DB.Database)
		fmt.Fprintf(os.Stderr, "HTTP listen: %s\n", cfg.HTTP.Listen)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Database and the stores on top of it
		conn, err := db.Open(cfg.DB, log)
		if err != nil {
			return err
		}
		defer conn.Close()
		conn.StartProbe(ctx)

		acls := acl.NewStore(conn)
		defs := alias.NewStore(conn)

		// Bus connection
		busClient, err := bus.New(cfg.MQTT, log)
		if err != nil {
			return fmt.Errorf("bus connect: %w", err)
		}
		defer busClient.Close()

		// Plugin registry with its janitor
		reg := registry.New(log)
		reg.StartJanitor(ctx)

		// Local plugin supervisor (disabled without plugins.directory)
		lp := plugins.NewSupervisor(cfg.Plugins.Directory, log)
		defer lp.StopAll()

		// Outbound pacing: burst of 4 lines, then one every two seconds
		throttle := ratelimit.NewTokenBucket(4, 0.5)

		// The session fires events into the bot; the bot replies through
		// the session. Bind through a variable so both can exist.
		var b *bot.Bot
		session := irc.NewSession(cfg.IRC, irc.Events{
			Privmsg:   func(channel, prefix, text string) { b.HandlePrivmsg(channel, prefix, text) },
			Notice:    func(channel, prefix, text string) { b.HandleNotice(channel, prefix, text) },
			Topic:     func(channel, prefix, topic string) { b.HandleTopic(channel, prefix, topic) },
			UserEvent: func(event, channel, prefix string) { b.HandleUserEvent(event, channel, prefix) },
		}, throttle, log)
		b = bot.New(cfg, session, busClient, acls, defs, reg, lp, log)
		b.Start(busClient)

		// HTTP status server
		srv := httpd.New(cfg.HTTP.Listen, reg, func(channel, text string) error {
			return session.SendMessage(irc.Privmsg, channel, text)
		}, log)
		srv.Start(ctx)

		// Reload handler: nothing is hot here, but report what changed
		// so the operator knows a restart is needed.
		reload := func(tag string) {
			var newCfg appcfg.Config
			if err := viper.Unmarshal(&newCfg); err != nil {
				log.WithError(err).Error("reload: unmarshal failed")
				return
			}
			newCfg.ApplyDefaults()
			if newCfg.IRC != cfg.IRC {
				log.Warn("reload: irc settings changed, restart required")
			}
			if newCfg.DB != cfg.DB || newCfg.MQTT != cfg.MQTT {
				log.Warn("reload: db/mqtt settings changed, restart required")
			}
			cfg = newCfg
			log.WithField("trigger", tag).Info("reload: config re-read")
		}

		if viper.ConfigFileUsed() != "" {
			viper.WatchConfig()
			viper.OnConfigChange(func(e fsnotify.Event) {
				log.WithField("file", e.Name).Info("config: change detected")
				reload("fsnotify")
			})
		}

		// Always support SIGHUP for manual reload
		hupCh := make(chan os.Signal, 1)
		signal.Notify(hupCh, syscall.SIGHUP)
		go func() {
			for range hupCh {
				log.Info("signal: SIGHUP received, reloading config")
				reload("SIGHUP")
			}
		}()

		// The session loop blocks until the context is canceled.
		err = session.Run(ctx)
		fmt.Fprintln(os.Stderr, "shutting down...")
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
