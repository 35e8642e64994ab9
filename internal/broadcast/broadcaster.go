package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skypro1111/ladiocast/internal/audio"
	"github.com/skypro1111/ladiocast/internal/directory"
	"github.com/skypro1111/ladiocast/internal/encoder"
)

// DefaultUserAgentApp is the application name sent in the User-Agent header.
const DefaultUserAgentApp = "VoiseSender"

// Dialer opens the connection to a streaming server. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Settings tune buffer sizes and timings of a session.
type Settings struct {
	PCMBuffer         time.Duration // PCM ring capacity
	DeviceBuffer      time.Duration // device-side capture buffer
	ReadChunk         time.Duration // capture read size
	EncodeChunk       time.Duration // encoder input size
	FrameBuffer       time.Duration // compressed ring capacity at the configured bitrate
	Warmup            time.Duration // delay from capture start to first send
	ReconnectEnabled  bool
	ReconnectInterval time.Duration
	LoudnessPerSec    int
	SendBufferSize    int
	DialTimeout       time.Duration
	UserAgent         string
}

// DefaultSettings returns the stock tuning
func DefaultSettings() Settings {
	return Settings{
		PCMBuffer:         5 * time.Second,
		DeviceBuffer:      2 * time.Second,
		ReadChunk:         50 * time.Millisecond,
		EncodeChunk:       2 * time.Second,
		FrameBuffer:       40 * time.Second,
		Warmup:            5 * time.Second,
		ReconnectEnabled:  true,
		ReconnectInterval: 4 * time.Second,
		LoudnessPerSec:    5,
		SendBufferSize:    16 * 1024,
		DialTimeout:       10 * time.Second,
		UserAgent:         UserAgent(DefaultUserAgentApp, "1.0.0"),
	}
}

// UserAgent formats "<app>/<version> (<os>; <arch>)"
func UserAgent(app, version string) string {
	return fmt.Sprintf("%s/%s (%s; %s)", app, version, runtime.GOOS, runtime.GOARCH)
}

// Options wire a Broadcaster to its collaborators.
type Options struct {
	Devices    audio.Opener
	Encoders   encoder.Factory
	Directory  directory.Fetcher
	Dialer     Dialer // defaults to a net.Dialer with Settings.DialTimeout
	Settings   Settings
	VolumeRate int // percent, defaults to 100
	Logger     *slog.Logger
}

// Stats are cumulative counters across sessions.
type Stats struct {
	SamplesCaptured uint64 `json:"samples_captured"`
	BytesEncoded    uint64 `json:"bytes_encoded"`
	BytesSent       uint64 `json:"bytes_sent"`
	Reconnects      uint64 `json:"reconnects"`
	Sessions        uint64 `json:"sessions"`
	PCMBuffered     int    `json:"pcm_buffered_samples"`
	FramesBuffered  int    `json:"frame_buffered_bytes"`
}

// Broadcaster owns the broadcast lifecycle. At most one session runs at a time.
type Broadcaster struct {
	opts     Options
	logger   *slog.Logger
	state    *StateMachine
	notifier *Notifier
	volume   *audio.VolumeScaler

	mu      sync.Mutex
	session *session

	infoMu sync.RWMutex
	info   *Info

	samplesCaptured atomic.Uint64
	bytesEncoded    atomic.Uint64
	bytesSent       atomic.Uint64
	reconnects      atomic.Uint64
	sessions        atomic.Uint64
}

// New creates a stopped Broadcaster
func New(opts Options) (*Broadcaster, error) {
	if opts.Devices == nil {
		return nil, errors.New("audio device opener is required")
	}
	if opts.Encoders == nil {
		return nil, errors.New("encoder factory is required")
	}
	if opts.Directory == nil {
		return nil, errors.New("server directory is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{Timeout: opts.Settings.DialTimeout}
	}
	if opts.VolumeRate == 0 {
		opts.VolumeRate = audio.UnityVolume
	}

	b := &Broadcaster{
		opts:     opts,
		logger:   opts.Logger.With(slog.String("component", "broadcast")),
		notifier: NewNotifier(),
		volume:   audio.NewVolumeScaler(opts.VolumeRate),
	}
	b.state = NewStateMachine(b.logger, b.notifier.NotifyStateChange)
	return b, nil
}

// Notifier returns the observer registry
func (b *Broadcaster) Notifier() *Notifier {
	return b.notifier
}

// State returns the current lifecycle state
func (b *Broadcaster) State() State {
	return b.state.Get()
}

// Info returns a copy of the on-air broadcast info, or nil. It is not
// synchronized with State: it may lag a transition in either direction.
func (b *Broadcaster) Info() *Info {
	b.infoMu.RLock()
	defer b.infoMu.RUnlock()
	if b.info == nil {
		return nil
	}
	info := *b.info
	return &info
}

func (b *Broadcaster) setInfo(info *Info) {
	b.infoMu.Lock()
	b.info = info
	b.infoMu.Unlock()
}

// VolumeRate returns the capture gain in percent
func (b *Broadcaster) VolumeRate() int {
	return b.volume.Rate()
}

// SetVolumeRate changes the capture gain; it applies to the running session.
func (b *Broadcaster) SetVolumeRate(rate int) {
	b.volume.SetRate(rate)
	b.logger.Info("Volume rate changed", slog.Int("rate", b.volume.Rate()))
}

// Start launches a session with cfg. It does nothing and returns false unless
// the broadcaster is stopped.
func (b *Broadcaster) Start(cfg Config) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.state.CompareAndSet(StateStopped, StateConnecting) {
		b.logger.Warn("Start ignored, broadcast already running",
			slog.String("state", b.state.Get().String()),
		)
		return false
	}

	s := newSession(b, cfg)
	b.session = s
	b.sessions.Add(1)

	b.logger.Info("Starting broadcast",
		slog.String("mount", cfg.Mount()),
		slog.Int("bitrate", cfg.Bitrate()),
		slog.Int("channels", cfg.Channels()),
		slog.Int("sample_rate", cfg.SampleRate()),
		slog.String("server", cfg.Server()),
	)
	s.start()
	return true
}

// Stop asks the running session to wind down. Stages exit cooperatively and
// the state reaches StateStopped once all of them have released resources.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	s := b.session
	if s != nil && b.state.IsConnectingOrBroadcasting() {
		s.stopRequested.Store(true)
	}
	stopping := b.state.SetUnlessStopping(StateStopping)
	b.mu.Unlock()
	if !stopping {
		return
	}
	b.logger.Info("Stopping broadcast")

	if s != nil {
		s.cancel()
	}
}

// Done is closed when the latest session has fully stopped
func (b *Broadcaster) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return b.session.done
}

// Stats returns cumulative counters and current buffer fill
func (b *Broadcaster) Stats() Stats {
	st := Stats{
		SamplesCaptured: b.samplesCaptured.Load(),
		BytesEncoded:    b.bytesEncoded.Load(),
		BytesSent:       b.bytesSent.Load(),
		Reconnects:      b.reconnects.Load(),
		Sessions:        b.sessions.Load(),
	}

	b.mu.Lock()
	s := b.session
	b.mu.Unlock()
	if s != nil && !b.state.Get().IsStoppedOrStopping() {
		st.PCMBuffered = s.pcm.GetAvailable()
		st.FramesBuffered = s.frames.GetAvailable()
	}
	return st
}
