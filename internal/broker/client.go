// Package broker wraps an MQTT connection to the message broker that
// carries component state and lifecycle events.
// It is grounded on the reference implementation's Client/ClientBuilder
// split: protocol name resolves to a port via the protocols table, and
// the resulting Client owns exactly one broker connection identified
// by a client id.
package broker

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/intersection-controller/internal/config"
)

// MessageHandler processes one inbound message. It must not block;
// slow handling should hand off to a buffered channel.
type MessageHandler func(topic string, payload []byte)

// Client manages a single MQTT connection: connect/reconnect via
// autopaho, a persistent subscription list that survives reconnects,
// and a last-will message announced to the broker at connect time.
type Client struct {
	clientID string
	host     string
	port     int
	qos      byte
	teamID   int
	logger   *slog.Logger

	mu            sync.Mutex
	cm            *autopaho.ConnectionManager
	subscriptions []string
	handler       MessageHandler
	rateLimiter   *messageRateLimiter

	willTopic   string
	willPayload []byte
}

// New resolves conn.Protocol against protocols and builds a Client
// for it. It does not connect; call Start for that.
func New(conn config.MqConnection, protocols config.Protocols, teamID int, logger *slog.Logger) (*Client, error) {
	port, ok := protocols.Port(conn.Protocol)
	if !ok {
		return nil, fmt.Errorf("broker: unknown protocol %q", conn.Protocol)
	}
	if logger == nil {
		logger = slog.Default()
	}

	qos := conn.QoS
	if qos < 0 || qos > 2 {
		return nil, fmt.Errorf("broker: qos %d out of range (0-2)", qos)
	}

	return &Client{
		clientID:    conn.ClientID,
		host:        conn.Host,
		port:        port,
		qos:         byte(qos),
		teamID:      teamID,
		logger:      logger,
		rateLimiter: newMessageRateLimiter(inboundRateLimit, inboundRateInterval, logger),
	}, nil
}

// SetLastWill registers the message the broker publishes on our
// behalf if the connection drops uncleanly. Must be called before
// Start.
func (c *Client) SetLastWill(topic string, payload []byte) {
	c.willTopic = topic
	c.willPayload = payload
}

// SetMessageHandler registers the callback for inbound messages on
// any subscribed topic. Must be called before Start.
func (c *Client) SetMessageHandler(h MessageHandler) {
	c.handler = h
}

// Start connects to the broker and blocks until ctx is cancelled,
// maintaining the connection with autopaho's built-in reconnect.
func (c *Client) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(fmt.Sprintf("mqtt://%s:%d", c.host, c.port))
	if err != nil {
		return fmt.Errorf("broker: parse broker url: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls: []*url.URL{brokerURL},
		KeepAlive:  30,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.logger.Info("broker connected", "client_id", c.clientID, "host", c.host, "port", c.port)
			c.resubscribe(ctx, cm)
		},
		OnConnectError: func(err error) {
			c.logger.Warn("broker connection error", "client_id", c.clientID, "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.clientID,
		},
	}

	if c.willTopic != "" {
		pahoCfg.WillMessage = &paho.WillMessage{
			Topic:   c.willTopic,
			Payload: c.willPayload,
			QoS:     c.qos,
			Retain:  false,
		}
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("broker: connect: %w", err)
	}

	go c.rateLimiter.start(ctx)

	if c.handler != nil {
		cm.AddOnPublishReceived(func(pr autopaho.PublishReceived) (bool, error) {
			if !c.rateLimiter.allow() {
				return true, nil
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						c.logger.Error("broker message handler panicked",
							"client_id", c.clientID, "topic", pr.Packet.Topic, "panic", r)
					}
				}()
				c.handler(pr.Packet.Topic, pr.Packet.Payload)
			}()
			return true, nil
		})
	}

	c.mu.Lock()
	c.cm = cm
	c.mu.Unlock()

	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		c.logger.Warn("broker initial connection timed out, retrying in background",
			"client_id", c.clientID, "error", err)
	}

	<-ctx.Done()
	return nil
}

// Stop disconnects cleanly.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	cm := c.cm
	c.mu.Unlock()
	if cm == nil {
		return nil
	}
	return cm.Disconnect(ctx)
}

// AwaitConnection blocks until the broker connection is established
// or ctx expires. Used by connwatch health probes.
func (c *Client) AwaitConnection(ctx context.Context) error {
	c.mu.Lock()
	cm := c.cm
	c.mu.Unlock()
	if cm == nil {
		return fmt.Errorf("broker: client not started")
	}
	return cm.AwaitConnection(ctx)
}

// Publish sends payload to topic at the client's configured QoS.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	cm := c.cm
	c.mu.Unlock()
	if cm == nil {
		return fmt.Errorf("broker: client not started")
	}

	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     c.qos,
		Retain:  false,
	}); err != nil {
		return fmt.Errorf("broker: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe adds filter to the persistent subscription list and, if
// already connected, subscribes immediately. On every reconnect every
// filter in the list is resubscribed, since the broker does not
// remember subscriptions across an unclean disconnect.
func (c *Client) Subscribe(ctx context.Context, filter string) error {
	c.mu.Lock()
	c.subscriptions = append(c.subscriptions, filter)
	cm := c.cm
	c.mu.Unlock()

	if cm == nil {
		return nil
	}
	return c.doSubscribe(ctx, cm, []string{filter})
}

func (c *Client) resubscribe(ctx context.Context, cm *autopaho.ConnectionManager) {
	c.mu.Lock()
	filters := make([]string, len(c.subscriptions))
	copy(filters, c.subscriptions)
	c.mu.Unlock()

	if len(filters) == 0 {
		return
	}
	if err := c.doSubscribe(ctx, cm, filters); err != nil {
		c.logger.Error("broker resubscribe failed", "client_id", c.clientID, "error", err)
	}
}

func (c *Client) doSubscribe(ctx context.Context, cm *autopaho.ConnectionManager, filters []string) error {
	opts := make([]paho.SubscribeOptions, 0, len(filters))
	for _, f := range filters {
		opts = append(opts, paho.SubscribeOptions{Topic: f, QoS: c.qos})
	}

	subCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := cm.Subscribe(subCtx, &paho.Subscribe{Subscriptions: opts}); err != nil {
		return fmt.Errorf("broker: subscribe %v: %w", filters, err)
	}
	c.logger.Info("broker subscribed", "client_id", c.clientID, "filters", filters)
	return nil
}
