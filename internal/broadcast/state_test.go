package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/skypro1111/ladiocast/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStatePredicates(t *testing.T) {
	tests := []struct {
		state   State
		running bool
		down    bool
	}{
		{StateStopped, false, true},
		{StateConnecting, true, false},
		{StateBroadcasting, true, false},
		{StateStopping, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if tt.state.IsConnectingOrBroadcasting() != tt.running {
				t.Errorf("IsConnectingOrBroadcasting: expected %v", tt.running)
			}
			if tt.state.IsStoppedOrStopping() != tt.down {
				t.Errorf("IsStoppedOrStopping: expected %v", tt.down)
			}
		})
	}
}

func TestStateMachineTransitions(t *testing.T) {
	var changes []string
	m := NewStateMachine(testLogger(), func(from, to State) {
		changes = append(changes, fmt.Sprintf("%s->%s", from, to))
	})

	if m.Get() != StateStopped {
		t.Fatalf("Expected initial state stopped, got %s", m.Get())
	}

	if !m.CompareAndSet(StateStopped, StateConnecting) {
		t.Fatal("Expected stopped->connecting to succeed")
	}
	if m.CompareAndSet(StateStopped, StateConnecting) {
		t.Error("Expected second start to be a no-op")
	}

	if !m.SetUnlessStopping(StateBroadcasting) {
		t.Error("Expected connecting->broadcasting to succeed")
	}
	m.Set(StateStopping)
	if m.SetUnlessStopping(StateConnecting) {
		t.Error("Expected stopping to block reconnect")
	}
	m.Set(StateStopped)

	expected := []string{
		"stopped->connecting",
		"connecting->broadcasting",
		"broadcasting->stopping",
		"stopping->stopped",
	}
	if len(changes) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, changes)
	}
	for i := range expected {
		if changes[i] != expected[i] {
			t.Errorf("Change %d: expected %s, got %s", i, expected[i], changes[i])
		}
	}
}

func TestNotifierSnapshot(t *testing.T) {
	n := NewNotifier()

	var got []Event
	var removeSelf func()
	removeSelf = n.OnEvent(func(e Event) {
		got = append(got, e)
		removeSelf()
		n.OnEvent(func(Event) {})
	})

	n.Notify(EventRecStarted)
	n.Notify(EventEncodeStarted)

	if len(got) != 1 || got[0] != EventRecStarted {
		t.Errorf("Expected only the first event before removal, got %v", got)
	}
}

func TestNotifierLoudnessObservers(t *testing.T) {
	n := NewNotifier()
	if n.LoudnessObservers() != 0 {
		t.Fatalf("Expected no observers")
	}

	var sum float64
	remove := n.OnLoudness(func(db float64) { sum += db })
	n.OnLoudness(func(db float64) { sum += db })
	if n.LoudnessObservers() != 2 {
		t.Fatalf("Expected 2 observers, got %d", n.LoudnessObservers())
	}

	n.NotifyLoudness(10)
	remove()
	n.NotifyLoudness(1)

	if sum != 21 {
		t.Errorf("Expected 21, got %f", sum)
	}
	if n.LoudnessObservers() != 1 {
		t.Errorf("Expected 1 observer after remove, got %d", n.LoudnessObservers())
	}
}

func TestEventNames(t *testing.T) {
	if EventStopWaitReconnect != 24 || EventAuthRequired != 12 || EventStreamStarted != 20 {
		t.Fatal("Event codes drifted")
	}
	if EventMountpointInUse.String() != "mountpoint_in_use" {
		t.Errorf("Unexpected name %q", EventMountpointInUse.String())
	}
	if Event(99).String() != "event(99)" {
		t.Errorf("Unexpected name for unknown event: %q", Event(99).String())
	}
	if !EventSendStreamFailed.IsError() || EventStreamStarted.IsError() || Event(99).IsError() {
		t.Error("IsError classification is wrong")
	}
}

func TestHandshakeEvent(t *testing.T) {
	tests := []struct {
		line     string
		expected Event
	}{
		{protocol.ResponseAuthRequired, EventAuthRequired},
		{protocol.ResponseMountpointInUse, EventMountpointInUse},
		{protocol.ResponseMountpointTooLong, EventMountpointTooLong},
		{protocol.ResponseContentTypeUnsupported, EventContentTypeNotSupported},
		{protocol.ResponseTooManySources, EventTooManySources},
		{"ICY 200 OK", EventUnknownResponse},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			err := protocol.ParseResponse(tt.line)
			if got := handshakeEvent(err); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}

	noResp := fmt.Errorf("%w: EOF", protocol.ErrNoResponse)
	if got := handshakeEvent(noResp); got != EventRecvHeaderFailed {
		t.Errorf("Expected recv_header_failed, got %s", got)
	}
	if got := handshakeEvent(errors.New("other")); got != EventUnknownResponse {
		t.Errorf("Expected unknown_response, got %s", got)
	}
}
