package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skypro1111/ladiocast/internal/audio"
	"github.com/skypro1111/ladiocast/internal/ringbuf"
)

// session is one start-to-stop run of the three stages.
type session struct {
	b        *Broadcaster
	cfg      Config
	settings Settings
	format   audio.Format
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	pcm    *ringbuf.Ring[int16]
	frames *ringbuf.Ring[byte]

	// Unix nanoseconds when capture delivered its first read, zero before.
	recStart atomic.Int64

	// stopRequested is set by Broadcaster.Stop; failed by the first fatal
	// stage error. Only one terminal event is reported per session.
	stopRequested atomic.Bool
	failed        atomic.Bool
}

func newSession(b *Broadcaster, cfg Config) *session {
	ctx, cancel := context.WithCancel(context.Background())
	settings := b.opts.Settings
	format := audio.Format{SampleRate: cfg.SampleRate(), Channels: cfg.Channels()}

	return &session{
		b:        b,
		cfg:      cfg,
		settings: settings,
		format:   format,
		logger:   b.logger.With(slog.String("mount", cfg.Mount())),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		pcm:      ringbuf.New[int16](format.Samples(settings.PCMBuffer)),
		frames:   ringbuf.New[byte](frameBufferBytes(cfg.Bitrate(), settings.FrameBuffer)),
	}
}

// frameBufferBytes sizes the compressed ring for d seconds at bitrate kbps
func frameBufferBytes(bitrate int, d time.Duration) int {
	return bitrate * 1024 / 8 * int(d/time.Second)
}

func (s *session) start() {
	s.logger.Debug("Allocated session buffers",
		slog.Int("pcm_capacity_samples", s.pcm.Capacity()),
		slog.Int("frame_capacity_bytes", s.frames.Capacity()),
	)

	s.wg.Add(3)
	go s.runCapture()
	go s.runEncode()
	go s.runStream()
	go s.supervise()
}

// supervise moves the machine to StateStopped once every stage has exited.
func (s *session) supervise() {
	s.wg.Wait()
	s.cancel()
	s.b.setInfo(nil)
	s.b.state.Set(StateStopped)
	s.logger.Info("Broadcast session finished")
	close(s.done)
}

// fail reports a fatal stage error and tears the session down. Only the first
// failure is reported, and none after a requested stop.
func (s *session) fail(ev Event, err error) {
	if s.stopRequested.Load() || !s.failed.CompareAndSwap(false, true) {
		s.logger.Debug("Stage error after session end",
			slog.String("event", ev.String()),
			slog.String("error", err.Error()),
		)
		s.cancel()
		return
	}
	s.logger.Error("Broadcast stage failed",
		slog.String("event", ev.String()),
		slog.String("error", err.Error()),
	)
	s.b.state.SetUnlessStopping(StateStopping)
	s.cancel()
	s.b.notifier.Notify(ev)
}

// endStream reports the end of an on-air leg unless a failure already ended
// the session.
func (s *session) endStream() {
	if s.failed.Load() {
		return
	}
	s.notify(EventStreamEnded)
}

func (s *session) notify(ev Event) {
	s.logger.Debug("Broadcast event", slog.String("event", ev.String()))
	s.b.notifier.Notify(ev)
}
