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
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bitcanon/ircbridge/pkg/bus"
	appcfg "github.com/bitcanon/ircbridge/pkg/config"
)

// Example help text for the send command
var sendExample = `  ircbridge send main "build finished"
  ircbridge send --notice main "heads up"
  ircbridge send`

// sendCmd publishes messages over the bus; a running serve instance
// relays them onto IRC.
var sendCmd = &cobra.Command{
	Use:   "send [channel] [text...]",
	Short: "Publish a message to an IRC channel over the bus",
	Long: `Publish a message to an IRC channel over the MQTT bus.

With a channel and text the message is published once and the command
exits. Without arguments an interactive loop reads lines from stdin;
prefix a line with '#channel ' to target a channel. Use /quit to exit.`,
	Example:      sendExample,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		notice, _ := cmd.Flags().GetBool("notice")

		// Load config
		var cfg appcfg.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		cfg.ApplyDefaults()
		if cfg.MQTT.Host == "" {
			return fmt.Errorf("config missing mqtt.host")
		}

		log := logrus.New()
		log.SetOutput(io.Discard)
		if viper.GetBool("debug") {
			log.SetOutput(os.Stderr)
			log.SetLevel(logrus.DebugLevel)
		}

		busClient, err := bus.New(cfg.MQTT, log)
		if err != nil {
			return fmt.Errorf("bus connect: %w", err)
		}
		defer busClient.Close()

		verb := "privmsg"
		if notice {
			verb = "notice"
		}
		publish := func(channel, text string) {
			channel = strings.TrimPrefix(strings.TrimSpace(channel), "#")
			topic := fmt.Sprintf("to/irc/%s/%s", channel, verb)
			fmt.Fprintf(os.Stderr, "-> %s: %s\n", topic, text)
			busClient.Publish(topic, text)
		}

		// One-shot mode
		if len(args) >= 2 {
			publish(args[0], strings.Join(args[1:], " "))
			// paho publishes asynchronously; give the packet time to leave
			time.Sleep(200 * time.Millisecond)
			return nil
		}
		if len(args) == 1 {
			return fmt.Errorf("send: need message text after the channel")
		}

		defaultChannel := ""
		if chans := cfg.IRC.ChannelList(); len(chans) > 0 {
			defaultChannel = chans[0]
		}

		// Interactive loop
		fmt.Println("Type messages. Prefix with #channel to target it (e.g. '#main hello'). Use /quit to exit.")
		sc := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !sc.Scan() {
				break
			}
			line := strings.TrimSpace(sc.Text())
			if strings.EqualFold(line, "/quit") {
				break
			}
			if line == "" {
				continue
			}
			channel := defaultChannel
			text := line
			if strings.HasPrefix(line, "#") {
				first, rest, ok := strings.Cut(line, " ")
				if !ok || strings.TrimSpace(rest) == "" {
					fmt.Fprintln(os.Stderr, "no message after channel")
					continue
				}
				channel, text = first, strings.TrimSpace(rest)
			}
			if channel == "" {
				fmt.Fprintln(os.Stderr, "no channel configured; prefix the line with #channel")
				continue
			}
			publish(channel, text)
		}
		if err := sc.Err(); err != nil {
			return err
		}
		time.Sleep(200 * time.Millisecond)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().Bool("notice", false, "send as NOTICE instead of PRIVMSG")
}
