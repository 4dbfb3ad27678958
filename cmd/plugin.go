package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bitcanon/ircbridge/pkg/bus"
	appcfg "github.com/bitcanon/ircbridge/pkg/config"
)

// pluginCmd runs a synthetic plugin against a live bridge: it keeps a
// command registered over the bus and echoes every invocation back to
// the channel it came from. Useful for exercising the registration TTL,
// ACL groups and the reply path without writing a real plugin.
var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Run a synthetic test plugin on the bus",
	Long: `Run a synthetic test plugin on the MQTT bus.

The plugin registers a command with the bridge on a fixed cadence (the
registry evicts anything silent for 10 seconds) and answers every
invocation by echoing the request back to the originating channel.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		command, _ := cmd.Flags().GetString("command")
		descr, _ := cmd.Flags().GetString("descr")
		group, _ := cmd.Flags().GetString("group")
		author, _ := cmd.Flags().GetString("author")
		interval, _ := cmd.Flags().GetDuration("interval")

		command = strings.ToLower(strings.TrimSpace(command))
		if command == "" {
			return fmt.Errorf("plugin: --command cannot be empty")
		}

		var cfg appcfg.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		if cfg.MQTT.Host == "" {
			return fmt.Errorf("config missing mqtt.host")
		}

		log := logrus.New()
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		if viper.GetBool("debug") {
			log.SetLevel(logrus.DebugLevel)
		}

		busClient, err := bus.New(cfg.MQTT, log)
		if err != nil {
			return fmt.Errorf("bus connect: %w", err)
		}
		defer busClient.Close()

		host, _ := os.Hostname()
		registration := fmt.Sprintf("cmd=%s|descr=%s|agrp=%s|athr=%s|loc=%s",
			command, descr, group, author, host)
		register := func() {
			busClient.Publish("to/bot/register", registration)
		}

		// Invocations arrive as from/irc/<channel>/<nick!user@host>/<cmd>
		busClient.Subscribe("from/irc/+/+/"+command, func(topic, payload string) {
			parts := strings.Split(topic, "/")
			if len(parts) != 5 {
				return
			}
			channel, sender := parts[2], parts[3]
			nick, _, _ := strings.Cut(sender, "!")
			log.WithFields(logrus.Fields{
				"channel": channel,
				"nick":    nick,
			}).Info("invoked")
			reply := fmt.Sprintf("%s: you said %q", nick, payload)
			busClient.Publish("to/irc/"+channel+"/privmsg", reply)
		})

		// The bridge asks plugins to re-register after its own restart.
		busClient.Subscribe("from/bot/command", func(topic, payload string) {
			if payload == "register" {
				register()
			}
		})

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log.WithFields(logrus.Fields{
			"command":  command,
			"group":    group,
			"interval": interval,
		}).Info("plugin running")

		register()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				register()
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(pluginCmd)

	pluginCmd.Flags().String("command", "echo", "command name to register")
	pluginCmd.Flags().String("descr", "Echo back the invocation", "command description")
	pluginCmd.Flags().String("group", "", "required ACL group (empty: everyone)")
	pluginCmd.Flags().String("author", "ircbridge", "author shown on the status pages")
	pluginCmd.Flags().Duration("interval", 4*time.Second, "re-registration cadence (registry TTL is 10s)")
}
