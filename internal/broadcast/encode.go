package broadcast

import (
	"fmt"
	"log/slog"

	"github.com/skypro1111/ladiocast/internal/encoder"
)

// runEncode drains the PCM ring through the encoder into the frame ring.
func (s *session) runEncode() {
	defer s.wg.Done()
	logger := s.logger.With(slog.String("stage", "encode"))

	enc, err := s.b.opts.Encoders.New(encoder.Config{
		SampleRate: s.cfg.SampleRate(),
		Channels:   s.cfg.Channels(),
		Quality:    s.cfg.Quality(),
		Bitrate:    s.cfg.Bitrate(),
	})
	if err != nil {
		s.fail(EventAudioEncodeError, err)
		return
	}
	defer func() {
		if err := enc.Close(); err != nil {
			logger.Warn("Failed to close encoder", slog.String("error", err.Error()))
		}
		logger.Info("Encode stage stopped")
	}()

	pcm := make([]int16, s.format.Samples(s.settings.EncodeChunk))
	out := make([]byte, 0, encoder.MaxOutputSize(len(pcm)))

	logger.Info("Encode stage started", slog.Int("chunk_samples", len(pcm)))
	s.notify(EventEncodeStarted)

	for s.b.state.IsConnectingOrBroadcasting() {
		n, err := s.pcm.Read(s.ctx, pcm)
		if err != nil {
			if s.b.state.IsStoppedOrStopping() {
				break
			}
			s.fail(EventAudioEncodeError, fmt.Errorf("interrupted waiting for pcm: %w", err))
			return
		}

		out, err = s.encode(enc, out[:0], pcm[:n])
		if err != nil {
			s.fail(EventAudioEncodeError, err)
			return
		}
		if err := s.forward(out); err != nil {
			s.fail(EventFrameBufferOverflow, err)
			return
		}
	}

	out, err = enc.Flush(out[:0])
	if err != nil {
		logger.Warn("Failed to flush encoder", slog.String("error", err.Error()))
		return
	}
	if err := s.forward(out); err != nil {
		logger.Warn("Dropped flushed frames", slog.String("error", err.Error()))
	}
}

func (s *session) encode(enc encoder.Encoder, out []byte, pcm []int16) ([]byte, error) {
	switch s.cfg.Channels() {
	case 1:
		return enc.Encode(out, pcm)
	case 2:
		return enc.EncodeInterleaved(out, pcm)
	default:
		return out, fmt.Errorf("unsupported channel count %d", s.cfg.Channels())
	}
}

func (s *session) forward(frames []byte) error {
	if len(frames) == 0 {
		return nil
	}
	if err := s.frames.Put(frames, false); err != nil {
		return err
	}
	s.b.bytesEncoded.Add(uint64(len(frames)))
	return nil
}
