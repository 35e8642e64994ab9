package broadcast

import (
	"errors"
	"log/slog"
	"time"

	"github.com/skypro1111/ladiocast/internal/audio"
)

// runCapture reads the microphone into the PCM ring until the session leaves
// the running states.
func (s *session) runCapture() {
	defer s.wg.Done()
	logger := s.logger.With(slog.String("stage", "capture"))

	deviceBuffer := s.format.BytesPerSecond() * int(s.settings.DeviceBuffer/time.Second)
	dev, err := s.b.opts.Devices.Open(s.format, deviceBuffer)
	if err != nil {
		if errors.Is(err, audio.ErrUnsupported) {
			s.fail(EventNotSupportedRecordingParameters, err)
		} else {
			s.fail(EventRecStartFailed, err)
		}
		return
	}
	defer func() {
		if err := dev.Close(); err != nil {
			logger.Warn("Failed to release capture device", slog.String("error", err.Error()))
		}
		logger.Info("Capture stage stopped")
	}()

	chunk := make([]int16, s.format.Samples(s.settings.ReadChunk))
	meter := audio.NewLoudnessMeter(s.format, s.settings.LoudnessPerSec)

	s.recStart.Store(time.Now().UnixNano())
	logger.Info("Capture stage started",
		slog.Int("chunk_samples", len(chunk)),
		slog.Int("device_buffer_bytes", deviceBuffer),
	)
	s.notify(EventRecStarted)

	for s.b.state.IsConnectingOrBroadcasting() {
		n, err := dev.Read(chunk)
		if err != nil {
			if s.b.state.IsStoppedOrStopping() {
				return
			}
			s.fail(EventAudioRecordError, err)
			return
		}
		if n == 0 {
			continue
		}
		samples := chunk[:n]

		s.b.volume.Apply(samples)

		if s.b.notifier.LoudnessObservers() > 0 {
			meter.Feed(samples, s.b.notifier.NotifyLoudness)
		} else {
			meter.Reset()
		}

		if err := s.pcm.Put(samples, false); err != nil {
			s.fail(EventPCMBufferOverflow, err)
			return
		}
		s.b.samplesCaptured.Add(uint64(n))
	}
}
