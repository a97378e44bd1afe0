// internal/sink/mqtt/mqtt.go
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/tamzrod/renogy-bt/internal/session"
	"github.com/tamzrod/renogy-bt/internal/sink"
)

const (
	DefaultPublishTimeout = 10 * time.Second

	statusOnline  = "online"
	statusOffline = "offline"
)

type Config struct {
	Server          string
	Port            int
	User            string
	Password        string
	ClientID        string
	TopicPrefix     string
	DiscoveryPrefix string
	PublishTimeout  time.Duration
}

// Publisher is the slice of a broker client the sink needs.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
	Close() error
}

// Sink publishes each record as JSON to <prefix>/<family>/<alias> and
// announces Home Assistant sensors the first time an alias is seen.
type Sink struct {
	cfg Config
	pub Publisher
	log zerolog.Logger

	mu        sync.Mutex
	announced map[string]bool
}

// New connects to the broker. Connection loss is retried in the background.
func New(cfg Config, log zerolog.Logger) (*Sink, error) {
	if cfg.Server == "" {
		return nil, errors.New("mqtt: server required")
	}
	cfg = withDefaults(cfg)
	log = log.With().Str("sink", "mqtt").Logger()

	pub, err := dial(cfg, log)
	if err != nil {
		return nil, err
	}
	return NewWithPublisher(cfg, pub, log), nil
}

// NewWithPublisher builds a sink over an existing publisher.
func NewWithPublisher(cfg Config, pub Publisher, log zerolog.Logger) *Sink {
	return &Sink{
		cfg:       withDefaults(cfg),
		pub:       pub,
		log:       log,
		announced: make(map[string]bool),
	}
}

func withDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 1883
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "renogy-bt"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "renogy-bt"
	}
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = "homeassistant"
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	return cfg
}

func (s *Sink) Name() string { return "mqtt" }

// StateTopic is the topic a device's records are published to.
func (s *Sink) StateTopic(family, alias string) string {
	return s.cfg.TopicPrefix + "/" + strings.ToLower(family) + "/" + topicSafe(alias)
}

func (s *Sink) availabilityTopic() string {
	return s.cfg.TopicPrefix + "/status"
}

func (s *Sink) Deliver(ctx context.Context, rec session.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	state := s.StateTopic(string(rec.Family), rec.Alias)

	if !s.isAnnounced(rec.Alias) {
		if err := s.announce(rec, state); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("mqtt: encode record: %w", err)
	}
	if err := s.pub.Publish(state, payload, false); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", state, err)
	}
	s.log.Debug().Str("topic", state).Int("bytes", len(payload)).Msg("published")
	return nil
}

func (s *Sink) isAnnounced(alias string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.announced[alias]
}

// announce publishes one retained discovery config per field. The alias is
// only marked as announced when every config went out.
func (s *Sink) announce(rec session.Record, state string) error {
	for _, field := range sink.Keys(rec) {
		cfg := discoveryConfig(rec, field, state, s.availabilityTopic())

		payload, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("mqtt: encode discovery %s: %w", field, err)
		}
		topic := s.cfg.DiscoveryPrefix + "/sensor/" + cfg.UniqueID + "/config"
		if err := s.pub.Publish(topic, payload, true); err != nil {
			return fmt.Errorf("mqtt: publish discovery %s: %w", topic, err)
		}
	}

	s.mu.Lock()
	s.announced[rec.Alias] = true
	s.mu.Unlock()

	s.log.Info().Str("device", rec.Alias).Int("sensors", len(sink.Keys(rec))).Msg("home assistant discovery published")
	return nil
}

func (s *Sink) Close() error {
	return s.pub.Close()
}

// ---- paho ----

type pahoPublisher struct {
	client  paho.Client
	timeout time.Duration
	status  string
}

func dial(cfg Config, log zerolog.Logger) (*pahoPublisher, error) {
	status := cfg.TopicPrefix + "/status"

	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Server, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetKeepAlive(30*time.Second).
		SetWill(status, statusOffline, 0, true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false)
	if cfg.User != "" {
		opts.SetUsername(cfg.User)
		opts.SetPassword(cfg.Password)
	}

	opts.OnConnect = func(c paho.Client) {
		log.Info().Msg("mqtt connected")
		c.Publish(status, 0, true, statusOnline)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	}

	client := paho.NewClient(opts)
	tok := client.Connect()
	if tok.WaitTimeout(cfg.PublishTimeout) && tok.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect: %w", tok.Error())
	}

	return &pahoPublisher{client: client, timeout: cfg.PublishTimeout, status: status}, nil
}

func (p *pahoPublisher) Publish(topic string, payload []byte, retained bool) error {
	tok := p.client.Publish(topic, 0, retained, payload)
	if !tok.WaitTimeout(p.timeout) {
		return fmt.Errorf("timed out after %s", p.timeout)
	}
	return tok.Error()
}

func (p *pahoPublisher) Close() error {
	if p.client.IsConnected() {
		p.client.Publish(p.status, 0, true, statusOffline).WaitTimeout(p.timeout)
	}
	p.client.Disconnect(250)
	return nil
}

func topicSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '+', '#', '/', ' ':
			return '_'
		}
		return r
	}, s)
}
