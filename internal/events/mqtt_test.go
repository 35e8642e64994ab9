package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/skypro1111/ladiocast/internal/audio"
	"github.com/skypro1111/ladiocast/internal/broadcast"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient records publishes; unused Client methods panic through the nil
// embedded interface.
type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	connected    bool
	disconnected bool
	messages     []published
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return doneToken{}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnected = true
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return doneToken{}
}

func (c *fakeClient) snapshot() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.messages...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitMessages(t *testing.T, c *fakeClient, n int) []published {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := c.snapshot(); len(msgs) >= n {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %d messages, got %d", n, len(c.snapshot()))
	return nil
}

func TestTopic(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"ladiocast", "ladiocast/state"},
		{"studio/a/", "studio/a/state"},
	}
	for _, tt := range tests {
		p := newMQTTPublisher(&fakeClient{}, MQTTConfig{TopicPrefix: tt.prefix}, testLogger())
		if got := p.Topic("state"); got != tt.want {
			t.Errorf("Topic with prefix %q = %q, want %q", tt.prefix, got, tt.want)
		}
		p.Close()
	}
}

func TestPublisherForwardsNotifications(t *testing.T) {
	client := &fakeClient{}
	p := newMQTTPublisher(client, MQTTConfig{TopicPrefix: "radio", QoS: 1}, testLogger())
	defer p.Close()

	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	n := broadcast.NewNotifier()
	p.Attach(n)

	n.NotifyStateChange(broadcast.StateConnecting, broadcast.StateBroadcasting)
	n.Notify(broadcast.EventStreamStarted)
	n.NotifyLoudness(math.Inf(-1))

	msgs := waitMessages(t, client, 3)

	if msgs[0].topic != "radio/state" || !msgs[0].retained || msgs[0].qos != 1 {
		t.Errorf("Unexpected state message: %+v", msgs[0])
	}
	var state StatePayload
	if err := json.Unmarshal(msgs[0].payload, &state); err != nil {
		t.Fatalf("Invalid state payload: %v", err)
	}
	if state.State != "broadcasting" || state.Code != 2 || state.From != "connecting" {
		t.Errorf("Unexpected state payload: %+v", state)
	}

	if msgs[1].topic != "radio/event" || msgs[1].retained {
		t.Errorf("Unexpected event message: %+v", msgs[1])
	}
	var event EventPayload
	if err := json.Unmarshal(msgs[1].payload, &event); err != nil {
		t.Fatalf("Invalid event payload: %v", err)
	}
	if event.Event != "stream_started" || event.Code != 20 || event.Error {
		t.Errorf("Unexpected event payload: %+v", event)
	}

	var loudness LoudnessPayload
	if err := json.Unmarshal(msgs[2].payload, &loudness); err != nil {
		t.Fatalf("Invalid loudness payload: %v", err)
	}
	if msgs[2].topic != "radio/loudness" || loudness.DB != audio.SilenceFloorDB {
		t.Errorf("Unexpected loudness message %s: %+v", msgs[2].topic, loudness)
	}

	if st := p.Stats(); st.Published != 3 || st.Errors != 0 {
		t.Errorf("Unexpected stats: %+v", st)
	}
}

func TestPublisherDropsWhileDisconnected(t *testing.T) {
	client := &fakeClient{}
	p := newMQTTPublisher(client, MQTTConfig{TopicPrefix: "radio"}, testLogger())
	defer p.Close()

	n := broadcast.NewNotifier()
	p.Attach(n)
	n.Notify(broadcast.EventSendStreamFailed)

	deadline := time.Now().Add(2 * time.Second)
	for p.Stats().Dropped == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.Stats().Dropped != 1 {
		t.Errorf("Expected one dropped message, got %+v", p.Stats())
	}
	if len(client.snapshot()) != 0 {
		t.Errorf("Expected nothing published while disconnected")
	}
}

func TestPublisherClose(t *testing.T) {
	client := &fakeClient{}
	p := newMQTTPublisher(client, MQTTConfig{TopicPrefix: "radio"}, testLogger())
	p.Connect(context.Background())

	n := broadcast.NewNotifier()
	p.Attach(n)
	p.Close()
	p.Close()

	if n.LoudnessObservers() != 0 {
		t.Errorf("Expected subscriptions to be removed")
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if !client.disconnected {
		t.Errorf("Expected client to be disconnected")
	}
}
