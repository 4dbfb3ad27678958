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

// Package bus wraps the MQTT client the bridge uses to talk to the
// plugin ecosystem. All topics carry a configured prefix which the
// wrapper applies on publish and strips before invoking callbacks.
package bus

import (
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/bitcanon/ircbridge/pkg/config"
	"github.com/bitcanon/ircbridge/pkg/metrics"
)

// Handler receives a message for a subscribed topic. The topic has the
// configured prefix already stripped. Handlers must be safe for
// concurrent use; the library invokes them from its own goroutines.
type Handler func(topic, payload string)

// Client is the bus connection.
type Client struct {
	prefix string
	log    *logrus.Entry

	mu   sync.Mutex
	subs map[string]Handler // filter (without prefix) -> handler

	conn mqtt.Client
}

// New connects to the broker. Subscriptions registered before a
// reconnect are re-established automatically by the connect callback.
func New(cfg config.MQTTConfig, log *logrus.Logger) (*Client, error) {
	c := &Client{
		prefix: cfg.Prefix,
		log:    log.WithField("component", "bus"),
		subs:   make(map[string]Handler),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Host)).
		SetClientID(fmt.Sprintf("ircbridge-%d", time.Now().UnixNano())).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(60 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.log.WithError(err).Warn("connection lost")
		})

	c.conn = mqtt.NewClient(opts)
	tok := c.conn.Connect()
	if !tok.WaitTimeout(30 * time.Second) {
		return nil, fmt.Errorf("bus: connect timeout")
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("bus: connect: %w", err)
	}
	return c, nil
}

// onConnect re-subscribes everything after a (re)connect.
func (c *Client) onConnect(conn mqtt.Client) {
	c.log.Info("connected")
	c.mu.Lock()
	defer c.mu.Unlock()
	for filter, h := range c.subs {
		c.subscribe(conn, filter, h)
	}
}

func (c *Client) subscribe(conn mqtt.Client, filter string, h Handler) {
	full := c.prefix + filter
	tok := conn.Subscribe(full, 0, func(_ mqtt.Client, msg mqtt.Message) {
		metrics.BusMessagesIn.Inc()
		h(strings.TrimPrefix(msg.Topic(), c.prefix), string(msg.Payload()))
	})
	go func() {
		tok.Wait()
		if err := tok.Error(); err != nil {
			c.log.WithError(err).WithField("topic", full).Error("subscribe failed")
		}
	}()
}

// Subscribe registers a handler for a topic filter (prefix excluded;
// MQTT wildcards allowed).
func (c *Client) Subscribe(filter string, h Handler) {
	c.mu.Lock()
	c.subs[filter] = h
	c.mu.Unlock()
	c.subscribe(c.conn, filter, h)
}

// Publish sends a payload on a topic (prefix excluded).
func (c *Client) Publish(topic, payload string) {
	c.publish(topic, payload, false)
}

// PublishRetained sends a payload the broker keeps for late joiners.
func (c *Client) PublishRetained(topic, payload string) {
	c.publish(topic, payload, true)
}

func (c *Client) publish(topic, payload string, retain bool) {
	metrics.BusMessagesOut.Inc()
	tok := c.conn.Publish(c.prefix+topic, 0, retain, payload)
	go func() {
		tok.Wait()
		if err := tok.Error(); err != nil {
			c.log.WithError(err).WithField("topic", topic).Error("publish failed")
		}
	}()
}

// Prefix returns the configured topic prefix.
func (c *Client) Prefix() string {
	return c.prefix
}

// Close disconnects from the broker.
func (c *Client) Close() {
	c.conn.Disconnect(250)
}

// brokerURL normalizes a host into a broker URL, defaulting to tcp://
// and port 1883.
func brokerURL(host string) string {
	if strings.Contains(host, "://") {
		return host
	}
	if !strings.Contains(host, ":") {
		host += ":1883"
	}
	return "tcp://" + host
}
