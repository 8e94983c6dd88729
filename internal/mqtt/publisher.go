package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/verity/internal/buildinfo"
	"github.com/nugget/verity/internal/config"
	"github.com/nugget/verity/internal/summarizer"
)

// ErrNotConnected is returned when publishing before Start has set up
// the broker connection.
var ErrNotConnected = errors.New("mqtt publisher not started")

// StatsSource provides runtime data for status publishing.
type StatsSource interface {
	// ActiveSessions returns the count of cached conversation sessions.
	ActiveSessions() int
	// DefaultModel returns the configured LLM model name.
	DefaultModel() string
}

// conn is the subset of the autopaho connection manager the publisher
// uses.
type conn interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// Publisher manages the MQTT connection, delivers digests, and runs a
// periodic loop that pushes status values to the broker.
type Publisher struct {
	cfg        config.MQTTConfig
	instanceID string
	tokens     *DailyTokens
	stats      StatsSource
	logger     *slog.Logger

	mu   sync.RWMutex
	cm   *autopaho.ConnectionManager
	conn conn
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection and publish loop.
func New(cfg config.MQTTConfig, instanceID string, tokens *DailyTokens, stats StatsSource, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:        cfg,
		instanceID: instanceID,
		tokens:     tokens,
		stats:      stats,
		logger:     logger.With("component", "mqtt"),
	}
}

// Start connects to the MQTT broker and begins the periodic publish
// loop. It blocks until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := p.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.clientID(),
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.mu.Lock()
	p.cm = cm
	p.conn = cm
	p.mu.Unlock()

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	p.runLoop(ctx)
	return nil
}

// Stop publishes an "offline" availability message and closes the
// connection. The context bounds how long to wait.
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.RLock()
	cm := p.cm
	p.mu.RUnlock()
	if cm == nil {
		return nil
	}
	p.publishAvailability(ctx, cm, "offline")
	return cm.Disconnect(ctx)
}

// Name implements summarizer.Sink.
func (p *Publisher) Name() string { return "mqtt" }

// NeedsRecipient implements summarizer.Sink. The broker receives every
// digest whether or not the owner has an email address.
func (p *Publisher) NeedsRecipient() bool { return false }

// Deliver implements summarizer.Sink by publishing the digest as JSON.
func (p *Publisher) Deliver(ctx context.Context, d *summarizer.Digest) error {
	c := p.connection()
	if c == nil {
		return ErrNotConnected
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal digest: %w", err)
	}
	topic := p.digestTopic(d.ChatID)
	if _, err := c.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.logger.Debug("mqtt digest published", "topic", topic, "bytes", len(payload))
	return nil
}

func (p *Publisher) connection() conn {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn
}

func (p *Publisher) clientID() string {
	if p.cfg.ClientID != "" {
		return p.cfg.ClientID
	}
	id := p.instanceID
	if len(id) > 8 {
		id = id[len(id)-8:]
	}
	return "verity-" + id
}

// --- Topic helpers ---

func (p *Publisher) baseTopic() string {
	return strings.TrimSuffix(p.cfg.TopicPrefix, "/")
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) statusTopic(name string) string {
	return p.baseTopic() + "/status/" + name
}

func (p *Publisher) digestTopic(chatID string) string {
	return p.baseTopic() + "/digests/" + topicSafe(chatID)
}

// topicSafe replaces characters that would split or wildcard a topic
// level.
func topicSafe(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}

func (p *Publisher) publishAvailability(ctx context.Context, c conn, status string) {
	if _, err := c.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}

// --- Periodic status loop ---

func (p *Publisher) runLoop(ctx context.Context) {
	interval := p.cfg.PublishInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.publishStates(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishStates(ctx)
		}
	}
}

// states returns the current status values keyed by topic suffix.
func (p *Publisher) states() map[string]string {
	states := map[string]string{
		"uptime":  buildinfo.Uptime().Truncate(time.Second).String(),
		"version": buildinfo.Version,
	}
	if p.stats != nil {
		states["active_sessions"] = strconv.Itoa(p.stats.ActiveSessions())
		states["default_model"] = p.stats.DefaultModel()
	}
	if p.tokens != nil {
		input, output, requests := p.tokens.Snapshot()
		states["tokens_today"] = strconv.FormatInt(input+output, 10)
		states["requests_today"] = strconv.FormatInt(requests, 10)
	}
	return states
}

func (p *Publisher) publishStates(ctx context.Context) {
	c := p.connection()
	if c == nil {
		return
	}

	states := p.states()
	for name, value := range states {
		if _, err := c.Publish(ctx, &paho.Publish{
			Topic:   p.statusTopic(name),
			Payload: []byte(value),
			QoS:     0,
			Retain:  true,
		}); err != nil {
			p.logger.Debug("mqtt status publish failed",
				"name", name, "error", err)
		}
	}

	p.logger.Debug("mqtt status published", "values", len(states))
}
