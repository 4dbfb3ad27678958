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
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/ini.v1"
)

// Config is the full bridge configuration, read from an INI file with
// [db], [mqtt], [irc], [http] and [plugins] sections.
type Config struct {
	DB      DBConfig      `ini:"db"      yaml:"db"      mapstructure:"db"`
	MQTT    MQTTConfig    `ini:"mqtt"    yaml:"mqtt"    mapstructure:"mqtt"`
	IRC     IRCConfig     `ini:"irc"     yaml:"irc"     mapstructure:"irc"`
	HTTP    HTTPConfig    `ini:"http"    yaml:"http"    mapstructure:"http"`
	Plugins PluginsConfig `ini:"plugins" yaml:"plugins" mapstructure:"plugins"`
}

type DBConfig struct {
	Host     string `ini:"host"     yaml:"host"     mapstructure:"host"     validate:"required"`
	User     string `ini:"user"     yaml:"user"     mapstructure:"user"     validate:"required"`
	Password string `ini:"password" yaml:"password" mapstructure:"password"`
	Database string `ini:"database" yaml:"database" mapstructure:"database" validate:"required"`
}

type MQTTConfig struct {
	Host string `ini:"host" yaml:"host" mapstructure:"host" validate:"required"`
	// Prefix is prepended to every topic, e.g. "GHBot/".
	Prefix string `ini:"prefix" yaml:"prefix" mapstructure:"prefix"`
}

type IRCConfig struct {
	Host     string `ini:"host"     yaml:"host"     mapstructure:"host"     validate:"required"`
	Port     int    `ini:"port"     yaml:"port"     mapstructure:"port"     validate:"min=0,max=65535"`
	Nick     string `ini:"nick"     yaml:"nick"     mapstructure:"nick"     validate:"required"`
	Password string `ini:"password" yaml:"password" mapstructure:"password"`
	// Channels is a comma-separated list, e.g. "#main,#test".
	Channels string `ini:"channels" yaml:"channels" mapstructure:"channels" validate:"required"`
	// Prefix is the single character that marks a bot invocation.
	Prefix string `ini:"prefix" yaml:"prefix" mapstructure:"prefix"`
	Owner  string `ini:"owner"  yaml:"owner"  mapstructure:"owner"`
}

type HTTPConfig struct {
	Listen string `ini:"listen" yaml:"listen" mapstructure:"listen"`
}

type PluginsConfig struct {
	// Directory holds local plugin executables, started on demand with
	// loadlp. Empty disables the local plugin commands.
	Directory string `ini:"directory" yaml:"directory" mapstructure:"directory"`
}

// ApplyDefaults fills in the values a minimal config file may omit.
func (c *Config) ApplyDefaults() {
	if c.IRC.Port == 0 {
		c.IRC.Port = 6667
	}
	if c.IRC.Prefix == "" {
		c.IRC.Prefix = "~"
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8123"
	}
}

// Validate checks the required fields after defaults were applied.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(c.IRC.Prefix) != 1 {
		return fmt.Errorf("config: irc.prefix must be a single character, got %q", c.IRC.Prefix)
	}
	if len(c.IRC.ChannelList()) == 0 {
		return fmt.Errorf("config: irc.channels cannot be empty")
	}
	return nil
}

// ChannelList splits the comma-separated channel list and makes sure
// every entry carries the '#' prefix.
func (c IRCConfig) ChannelList() []string {
	var out []string
	for _, ch := range strings.Split(c.Channels, ",") {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		if !strings.HasPrefix(ch, "#") && !strings.HasPrefix(ch, "&") {
			ch = "#" + ch
		}
		out = append(out, ch)
	}
	return out
}

// PrefixByte returns the command prefix as a single byte.
func (c IRCConfig) PrefixByte() byte {
	return c.Prefix[0]
}

// Addr returns the host:port dial address of the IRC server.
func (c IRCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadFile is a direct INI loader, bypassing viper (kept for tests/tools).
func LoadFile(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := f.Section("db").MapTo(&cfg.DB); err != nil {
		return nil, fmt.Errorf("config: section db: %w", err)
	}
	if err := f.Section("mqtt").MapTo(&cfg.MQTT); err != nil {
		return nil, fmt.Errorf("config: section mqtt: %w", err)
	}
	if err := f.Section("irc").MapTo(&cfg.IRC); err != nil {
		return nil, fmt.Errorf("config: section irc: %w", err)
	}
	if err := f.Section("http").MapTo(&cfg.HTTP); err != nil {
		return nil, fmt.Errorf("config: section http: %w", err)
	}
	if err := f.Section("plugins").MapTo(&cfg.Plugins); err != nil {
		return nil, fmt.Errorf("config: section plugins: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}
