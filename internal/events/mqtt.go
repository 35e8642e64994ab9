package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/skypro1111/ladiocast/internal/audio"
	"github.com/skypro1111/ladiocast/internal/broadcast"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	queueSize      = 256
)

// MQTTConfig configures the publisher
type MQTTConfig struct {
	Broker      string // host:port or a full URL such as tcp://host:1883
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// StatePayload is published retained to <prefix>/state.
type StatePayload struct {
	State     string    `json:"state"`
	Code      int       `json:"code"`
	From      string    `json:"from"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPayload is published to <prefix>/event.
type EventPayload struct {
	Event     string    `json:"event"`
	Code      int       `json:"code"`
	Error     bool      `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// LoudnessPayload is published to <prefix>/loudness.
type LoudnessPayload struct {
	DB        float64   `json:"db"`
	Timestamp time.Time `json:"timestamp"`
}

// PublisherStats contains publisher counters
type PublisherStats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Errors    uint64 `json:"errors"`
}

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// MQTTPublisher forwards notifier callbacks to MQTT. Callbacks only enqueue;
// a single goroutine talks to the broker, so a slow broker never stalls the
// broadcast stages.
type MQTTPublisher struct {
	client mqtt.Client
	cfg    MQTTConfig
	logger *slog.Logger

	queue chan message
	done  chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	detach []func()
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
	errors    atomic.Uint64
}

// NewMQTTPublisher creates a publisher with a paho client. Call Connect
// before Attach.
func NewMQTTPublisher(cfg MQTTConfig, logger *slog.Logger) *MQTTPublisher {
	logger = logger.With(slog.String("component", "mqtt"))

	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(c mqtt.Client) {
		logger.Info("MQTT connection established",
			slog.String("broker", broker),
			slog.String("client_id", cfg.ClientID),
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		logger.Warn("MQTT connection lost, will auto-reconnect",
			slog.String("broker", broker),
			slog.String("error", err.Error()),
		)
	}

	return newMQTTPublisher(mqtt.NewClient(opts), cfg, logger)
}

func newMQTTPublisher(client mqtt.Client, cfg MQTTConfig, logger *slog.Logger) *MQTTPublisher {
	p := &MQTTPublisher{
		client: client,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan message, queueSize),
		done:   make(chan struct{}),
	}
	p.wg.Add(1)
	go p.pump()
	return p
}

// Connect establishes the broker connection
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	p.logger.Info("Connecting to MQTT broker", slog.String("broker", p.cfg.Broker))

	token := p.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		return fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

// Attach subscribes the publisher to n
func (p *MQTTPublisher) Attach(n *broadcast.Notifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detach = append(p.detach,
		n.OnStateChange(func(from, to broadcast.State) {
			p.enqueue("state", true, StatePayload{
				State:     to.String(),
				Code:      int(to),
				From:      from.String(),
				Timestamp: time.Now().UTC(),
			})
		}),
		n.OnEvent(func(e broadcast.Event) {
			p.enqueue("event", false, EventPayload{
				Event:     e.String(),
				Code:      int(e),
				Error:     e.IsError(),
				Timestamp: time.Now().UTC(),
			})
		}),
		n.OnLoudness(func(db float64) {
			p.enqueue("loudness", false, LoudnessPayload{
				DB:        audio.FiniteDB(db),
				Timestamp: time.Now().UTC(),
			})
		}),
	)
}

// Topic returns the full topic for a suffix
func (p *MQTTPublisher) Topic(suffix string) string {
	return strings.TrimSuffix(p.cfg.TopicPrefix, "/") + "/" + suffix
}

func (p *MQTTPublisher) enqueue(suffix string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.errors.Add(1)
		p.logger.Warn("Failed to marshal MQTT payload", slog.String("error", err.Error()))
		return
	}

	select {
	case p.queue <- message{topic: p.Topic(suffix), retained: retained, payload: payload}:
	default:
		p.dropped.Add(1)
	}
}

func (p *MQTTPublisher) pump() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.queue:
			p.publish(msg)
		}
	}
}

func (p *MQTTPublisher) publish(msg message) {
	if !p.client.IsConnected() {
		p.dropped.Add(1)
		return
	}

	token := p.client.Publish(msg.topic, p.cfg.QoS, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		p.errors.Add(1)
		p.logger.Warn("MQTT publish timeout", slog.String("topic", msg.topic))
		return
	}
	if err := token.Error(); err != nil {
		p.errors.Add(1)
		p.logger.Warn("MQTT publish failed",
			slog.String("topic", msg.topic),
			slog.String("error", err.Error()),
		)
		return
	}

	p.published.Add(1)
	p.logger.Debug("MQTT message published",
		slog.String("topic", msg.topic),
		slog.Int("size", len(msg.payload)),
	)
}

// Stats returns publisher counters
func (p *MQTTPublisher) Stats() PublisherStats {
	return PublisherStats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Errors:    p.errors.Load(),
	}
}

// Close removes the subscriptions, stops the pump and disconnects
func (p *MQTTPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	detach := p.detach
	p.detach = nil
	p.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
	close(p.done)
	p.wg.Wait()

	if p.client.IsConnected() {
		p.client.Disconnect(250)
		p.logger.Info("MQTT disconnected")
	}
}
