package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/skypro1111/ladiocast/internal/broadcast"
)

// Metrics contains all Prometheus metrics for the broadcaster
type Metrics struct {
	factory promauto.Factory

	// Broadcast lifecycle metrics
	State            prometheus.Gauge
	StateChanges     *prometheus.CounterVec
	Events           *prometheus.CounterVec
	StreamsStarted   prometheus.Counter
	BroadcastSeconds prometheus.Histogram

	// Audio metrics
	Loudness   prometheus.Gauge
	VolumeRate prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec

	mu       sync.Mutex
	onAirAt  time.Time
	detaches []func()
}

// NewMetrics creates all metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		factory: factory,

		// Broadcast lifecycle metrics
		State: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ladiocast_broadcast_state",
			Help: "Current broadcast state (0 stopped, 1 connecting, 2 broadcasting, 4 stopping)",
		}),
		StateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ladiocast_state_changes_total",
			Help: "Total number of broadcast state transitions",
		}, []string{"to"}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ladiocast_events_total",
			Help: "Total number of broadcast events by name",
		}, []string{"event", "error"}),
		StreamsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ladiocast_streams_started_total",
			Help: "Total number of accepted handshakes",
		}),
		BroadcastSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ladiocast_on_air_duration_seconds",
			Help:    "Time spent broadcasting per connection",
			Buckets: prometheus.ExponentialBuckets(1, 4, 9), // 1s to ~18 hours
		}),

		// Audio metrics
		Loudness: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ladiocast_loudness_db",
			Help: "Most recent RMS loudness of captured audio in dB",
		}),
		VolumeRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ladiocast_volume_rate_percent",
			Help: "Capture gain in percent",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ladiocast_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ladiocast_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ladiocast_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// Attach registers collectors that read b's counters and subscribes to its
// notifier. Call at most once per Broadcaster.
func (m *Metrics) Attach(b *broadcast.Broadcaster) {
	stat := func(get func(broadcast.Stats) float64) func() float64 {
		return func() float64 { return get(b.Stats()) }
	}

	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "ladiocast_samples_captured_total",
		Help: "Total number of PCM samples captured",
	}, stat(func(s broadcast.Stats) float64 { return float64(s.SamplesCaptured) }))
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "ladiocast_bytes_encoded_total",
		Help: "Total number of MP3 bytes produced by the encoder",
	}, stat(func(s broadcast.Stats) float64 { return float64(s.BytesEncoded) }))
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "ladiocast_bytes_sent_total",
		Help: "Total number of MP3 bytes written to the streaming server",
	}, stat(func(s broadcast.Stats) float64 { return float64(s.BytesSent) }))
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "ladiocast_reconnects_total",
		Help: "Total number of reconnect attempts",
	}, stat(func(s broadcast.Stats) float64 { return float64(s.Reconnects) }))
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "ladiocast_sessions_total",
		Help: "Total number of broadcast sessions started",
	}, stat(func(s broadcast.Stats) float64 { return float64(s.Sessions) }))
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ladiocast_pcm_buffered_samples",
		Help: "Samples waiting in the PCM ring",
	}, stat(func(s broadcast.Stats) float64 { return float64(s.PCMBuffered) }))
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ladiocast_frame_buffered_bytes",
		Help: "Bytes waiting in the frame ring",
	}, stat(func(s broadcast.Stats) float64 { return float64(s.FramesBuffered) }))

	m.State.Set(float64(b.State()))
	m.VolumeRate.Set(float64(b.VolumeRate()))

	n := b.Notifier()
	m.mu.Lock()
	m.detaches = append(m.detaches,
		n.OnStateChange(m.RecordStateChange),
		n.OnEvent(m.RecordEvent),
		n.OnLoudness(m.RecordLoudness),
	)
	m.mu.Unlock()
}

// Detach removes the notifier subscriptions made by Attach
func (m *Metrics) Detach() {
	m.mu.Lock()
	detaches := m.detaches
	m.detaches = nil
	m.mu.Unlock()

	for _, fn := range detaches {
		fn()
	}
}

// RecordStateChange updates the state gauge and on-air duration
func (m *Metrics) RecordStateChange(from, to broadcast.State) {
	m.State.Set(float64(to))
	m.StateChanges.WithLabelValues(to.String()).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	if to == broadcast.StateBroadcasting {
		m.onAirAt = time.Now()
		return
	}
	if from == broadcast.StateBroadcasting && !m.onAirAt.IsZero() {
		m.BroadcastSeconds.Observe(time.Since(m.onAirAt).Seconds())
		m.onAirAt = time.Time{}
	}
}

// RecordEvent counts a broadcast event
func (m *Metrics) RecordEvent(e broadcast.Event) {
	isError := "false"
	if e.IsError() {
		isError = "true"
	}
	m.Events.WithLabelValues(e.String(), isError).Inc()
	if e == broadcast.EventStreamStarted {
		m.StreamsStarted.Inc()
	}
}

// RecordLoudness sets the loudness gauge
func (m *Metrics) RecordLoudness(db float64) {
	m.Loudness.Set(db)
}

// SetVolumeRate sets the volume gauge
func (m *Metrics) SetVolumeRate(rate int) {
	m.VolumeRate.Set(float64(rate))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
