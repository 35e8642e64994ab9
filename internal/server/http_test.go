package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/skypro1111/ladiocast/internal/audio"
	"github.com/skypro1111/ladiocast/internal/broadcast"
	"github.com/skypro1111/ladiocast/internal/config"
	"github.com/skypro1111/ladiocast/internal/directory"
	"github.com/skypro1111/ladiocast/internal/encoder"
	"github.com/skypro1111/ladiocast/internal/metrics"
)

type idleDevice struct{}

func (idleDevice) Read(buf []int16) (int, error) {
	time.Sleep(5 * time.Millisecond)
	return 0, nil
}

func (idleDevice) Close() error { return nil }

type nopEncoder struct{}

func (nopEncoder) Encode(out []byte, pcm []int16) ([]byte, error)            { return out, nil }
func (nopEncoder) EncodeInterleaved(out []byte, pcm []int16) ([]byte, error) { return out, nil }
func (nopEncoder) Flush(out []byte) ([]byte, error)                          { return out, nil }
func (nopEncoder) Close() error                                              { return nil }

// blockingFetcher never returns a list, keeping the session in connecting.
type blockingFetcher struct{}

func (blockingFetcher) Fetch(ctx context.Context) (directory.List, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestServer(t *testing.T) (*HTTPServer, *broadcast.Broadcaster) {
	t.Helper()
	logger := testLogger()

	settings := broadcast.DefaultSettings()
	settings.Warmup = 0
	b, err := broadcast.New(broadcast.Options{
		Devices: audio.OpenerFunc(func(f audio.Format, bufferSize int) (audio.Device, error) {
			return idleDevice{}, nil
		}),
		Encoders: encoder.FactoryFunc(func(cfg encoder.Config) (encoder.Encoder, error) {
			return nopEncoder{}, nil
		}),
		Directory: blockingFetcher{},
		Settings:  settings,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("Failed to create broadcaster: %v", err)
	}
	t.Cleanup(func() {
		b.Stop()
		<-b.Done()
	})

	cfg := config.Default()
	cfg.Broadcast.Mount = "/radio"

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.Attach(b)

	servers := directory.Static{
		{Name: "busy", Host: "10.0.0.1", Port: 8000, Listeners: 9},
		{Name: "quiet", Host: "10.0.0.2", Port: 8000, Listeners: 1},
	}

	h := NewHTTPServer(HTTPServerConfig{Address: "127.0.0.1", Port: 0, Version: "test"},
		logger, cfg, b, servers, m, reg)
	t.Cleanup(h.hub.Close)
	return h, b
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Unexpected status %v", body["status"])
	}

	rec = httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestStartStop(t *testing.T) {
	h, b := newTestServer(t)

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/start", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if b.State() != broadcast.StateConnecting {
		t.Errorf("Expected connecting, got %s", b.State())
	}

	rec = httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/start", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for second start, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	var status StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if status.State != "connecting" || status.StateCode != 1 || status.Stats.Sessions != 1 {
		t.Errorf("Unexpected status: %+v", status)
	}

	rec = httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stop", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}

	select {
	case <-b.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Broadcaster did not stop")
	}
	if b.State() != broadcast.StateStopped {
		t.Errorf("Expected stopped, got %s", b.State())
	}
}

func TestStartInvalidParams(t *testing.T) {
	h, b := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"bitrate":`},
		{"invalid channels", `{"channels": 3}`},
		{"root mount", `{"mount": "/"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/start", strings.NewReader(tt.body))
			h.Handler().ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", rec.Code)
			}
			if b.State() != broadcast.StateStopped {
				t.Errorf("Expected broadcaster to stay stopped, got %s", b.State())
			}
		})
	}
}

func TestVolume(t *testing.T) {
	h, b := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		target     string
		expectCode int
		expectRate int
	}{
		{"read default", http.MethodGet, "/volume", http.StatusOK, 100},
		{"set", http.MethodPut, "/volume?rate=150", http.StatusOK, 150},
		{"negative", http.MethodPut, "/volume?rate=-5", http.StatusBadRequest, 150},
		{"not a number", http.MethodPut, "/volume?rate=loud", http.StatusBadRequest, 150},
		{"above max", http.MethodPut, "/volume?rate=1001", http.StatusBadRequest, 150},
		{"int32 overflow", http.MethodPut, "/volume?rate=2147483648", http.StatusBadRequest, 150},
		{"max", http.MethodPut, "/volume?rate=1000", http.StatusOK, 1000},
		{"wrong method", http.MethodDelete, "/volume", http.StatusMethodNotAllowed, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
			if rec.Code != tt.expectCode {
				t.Errorf("Expected %d, got %d", tt.expectCode, rec.Code)
			}
			if b.VolumeRate() != tt.expectRate {
				t.Errorf("Expected rate %d, got %d", tt.expectRate, b.VolumeRate())
			}
		})
	}
}

func TestServers(t *testing.T) {
	h, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/servers", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body struct {
		Total   int                `json:"total_servers"`
		Servers []directory.Server `json:"servers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body.Total != 2 || len(body.Servers) != 2 {
		t.Fatalf("Expected 2 servers, got %+v", body)
	}
	if body.Servers[0].Name != "quiet" {
		t.Errorf("Expected least loaded server first, got %s", body.Servers[0].Name)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestServer(t)

	h.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, name := range []string{
		"ladiocast_http_requests_total",
		"ladiocast_broadcast_state",
		"ladiocast_bytes_sent_total",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("Expected %s in metrics output", name)
		}
	}
}

func TestEventsWebSocket(t *testing.T) {
	h, b := newTestServer(t)
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.hub.ClientCount() != 1 {
		t.Fatalf("Expected 1 client, got %d", h.hub.ClientCount())
	}

	b.Notifier().Notify(broadcast.EventMountpointInUse)
	b.Notifier().NotifyLoudness(math.Inf(-1))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg EventMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if msg.Type != "event" || msg.Event != "mountpoint_in_use" || msg.Code == nil || *msg.Code != 13 || !msg.Error {
		t.Errorf("Unexpected event message: %+v", msg)
	}

	msg = EventMessage{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if msg.Type != "loudness" || msg.DB == nil || *msg.DB != audio.SilenceFloorDB {
		t.Errorf("Unexpected loudness message: %+v", msg)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for h.hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.hub.ClientCount() != 0 {
		t.Errorf("Expected client to be removed after disconnect")
	}
}
