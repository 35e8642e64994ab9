package encoder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/skypro1111/ladiocast/internal/audio"
)

const flushTimeout = 5 * time.Second

// LameFactory creates encoders backed by the GStreamer lamemp3enc element:
// appsrc ! audioconvert ! lamemp3enc ! appsink
type LameFactory struct {
	Logger *slog.Logger
}

// New builds and starts an encoding pipeline
func (f *LameFactory) New(cfg Config) (Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid encoder config: %w", err)
	}
	audio.InitGStreamer()

	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder pipeline: %w", err)
	}

	src, err := app.NewAppSrc()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsrc: %w", err)
	}
	src.SetCaps(gst.NewCapsFromString(fmt.Sprintf(
		"audio/x-raw,format=S16LE,layout=interleaved,rate=%d,channels=%d", cfg.SampleRate, cfg.Channels)))
	src.SetFormat(gst.FormatTime)
	src.SetProperty("is-live", true)
	src.SetProperty("do-timestamp", true)

	convert, err := gst.NewElement("audioconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create audioconvert: %w", err)
	}

	lame, err := gst.NewElement("lamemp3enc")
	if err != nil {
		return nil, fmt.Errorf("failed to create lamemp3enc: %w", err)
	}
	lame.SetProperty("target", 1) // bitrate
	lame.SetProperty("bitrate", cfg.Bitrate)
	lame.SetProperty("cbr", true)
	lame.SetProperty("encoding-engine-quality", int(cfg.EngineQuality()))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)

	enc := &lameEncoder{
		pipeline: pipeline,
		src:      src,
		logger:   logger,
		eos:      make(chan struct{}),
	}

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: enc.onSample,
		EOSFunc: func(*app.Sink) {
			close(enc.eos)
		},
	})

	pipeline.AddMany(src.Element, convert, lame, sink.Element)
	if err := gst.ElementLinkMany(src.Element, convert, lame, sink.Element); err != nil {
		return nil, fmt.Errorf("failed to link encoder pipeline: %w", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("failed to start encoder pipeline: %w", err)
	}

	logger.Info("MP3 encoder started",
		slog.Int("sample_rate", cfg.SampleRate),
		slog.Int("channels", cfg.Channels),
		slog.Int("bitrate", cfg.Bitrate),
		slog.Int("quality", cfg.Quality),
		slog.Int("engine_quality", int(cfg.EngineQuality())),
	)

	return enc, nil
}

type lameEncoder struct {
	pipeline *gst.Pipeline
	src      *app.Source
	logger   *slog.Logger

	mu      sync.Mutex
	encoded []byte
	scratch []byte

	eos     chan struct{}
	flushed bool
}

func (e *lameEncoder) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	e.mu.Lock()
	e.encoded = append(e.encoded, mapInfo.Bytes()...)
	e.mu.Unlock()
	buffer.Unmap()
	return gst.FlowOK
}

func (e *lameEncoder) drain(out []byte) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out = append(out, e.encoded...)
	e.encoded = e.encoded[:0]
	return out
}

func (e *lameEncoder) push(pcm []int16) error {
	if e.flushed {
		return errors.New("encoder already flushed")
	}
	e.scratch = audio.EncodePCM(e.scratch[:0], pcm)
	if ret := e.src.PushBuffer(gst.NewBufferFromBytes(e.scratch)); ret != gst.FlowOK {
		return fmt.Errorf("push to encoder failed: %v", ret)
	}
	return nil
}

func (e *lameEncoder) Encode(out []byte, pcm []int16) ([]byte, error) {
	if err := e.push(pcm); err != nil {
		return out, err
	}
	return e.drain(out), nil
}

// EncodeInterleaved shares the mono path; the caps on appsrc already describe
// the channel layout.
func (e *lameEncoder) EncodeInterleaved(out []byte, pcm []int16) ([]byte, error) {
	return e.Encode(out, pcm)
}

func (e *lameEncoder) Flush(out []byte) ([]byte, error) {
	if e.flushed {
		return e.drain(out), nil
	}
	e.flushed = true

	if ret := e.src.EndStream(); ret != gst.FlowOK {
		return e.drain(out), fmt.Errorf("end of stream failed: %v", ret)
	}

	select {
	case <-e.eos:
	case <-time.After(flushTimeout):
		e.logger.Warn("Timed out waiting for encoder to drain",
			slog.Duration("timeout", flushTimeout),
		)
	}
	return e.drain(out), nil
}

func (e *lameEncoder) Close() error {
	if err := e.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to stop encoder pipeline: %w", err)
	}
	e.logger.Info("MP3 encoder closed")
	return nil
}
