package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

var gstInitOnce sync.Once

// InitGStreamer initializes the GStreamer library once per process.
func InitGStreamer() {
	gstInitOnce.Do(func() { gst.Init(nil) })
}

// GstOpener opens microphones through a GStreamer capture pipeline:
// source ! queue ! audioconvert ! audioresample ! capsfilter ! appsink
type GstOpener struct {
	// Source is the capture element factory, "autoaudiosrc" when empty.
	Source string
	Logger *slog.Logger
}

// Open builds and starts the capture pipeline
func (o *GstOpener) Open(f Format, bufferSize int) (Device, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	InitGStreamer()

	source := o.Source
	if source == "" {
		source = "autoaudiosrc"
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create capture pipeline: %w", err)
	}

	src, err := gst.NewElement(source)
	if err != nil {
		return nil, fmt.Errorf("%w: source %s: %v", ErrUnsupported, source, err)
	}
	queue, err := gst.NewElement("queue")
	if err != nil {
		return nil, fmt.Errorf("failed to create queue: %w", err)
	}
	queue.SetProperty("max-size-bytes", uint(bufferSize))
	queue.SetProperty("max-size-buffers", uint(0))
	queue.SetProperty("max-size-time", uint64(0))

	convert, err := gst.NewElement("audioconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create audioconvert: %w", err)
	}
	resample, err := gst.NewElement("audioresample")
	if err != nil {
		return nil, fmt.Errorf("failed to create audioresample: %w", err)
	}
	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(rawCaps(f)))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	sink.SetProperty("sync", false)

	pipeline.AddMany(src, queue, convert, resample, capsfilter, sink.Element)
	if err := gst.ElementLinkMany(src, queue, convert, resample, capsfilter, sink.Element); err != nil {
		return nil, fmt.Errorf("%w: link capture pipeline: %v", ErrUnsupported, err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("%w: start capture pipeline: %v", ErrUnsupported, err)
	}

	logger.Info("Audio capture pipeline started",
		slog.String("source", source),
		slog.String("caps", rawCaps(f)),
		slog.Int("buffer_bytes", bufferSize),
	)

	return &gstDevice{pipeline: pipeline, sink: sink, logger: logger}, nil
}

func rawCaps(f Format) string {
	return fmt.Sprintf("audio/x-raw,format=S16LE,layout=interleaved,rate=%d,channels=%d", f.SampleRate, f.Channels)
}

type gstDevice struct {
	pipeline *gst.Pipeline
	sink     *app.Sink
	logger   *slog.Logger

	pending []byte
	mu      sync.Mutex
	closed  bool
}

func (d *gstDevice) Read(buf []int16) (int, error) {
	for len(d.pending) < 2 {
		sample := d.sink.PullSample()
		if sample == nil {
			if d.isClosed() {
				return 0, errors.New("capture device closed")
			}
			return 0, errors.New("capture pipeline reached end of stream")
		}
		buffer := sample.GetBuffer()
		if buffer == nil {
			continue
		}
		mapInfo := buffer.Map(gst.MapRead)
		d.pending = append(d.pending, mapInfo.Bytes()...)
		buffer.Unmap()
	}

	n := DecodePCM(buf, d.pending)
	d.pending = d.pending[2*n:]
	return n, nil
}

func (d *gstDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *gstDevice) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.logger.Info("Stopping audio capture pipeline")
	if err := d.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to stop capture pipeline: %w", err)
	}
	return nil
}
