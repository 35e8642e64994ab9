package encoder

import (
	"fmt"
)

// Config holds the encoder parameters.
type Config struct {
	SampleRate int
	Channels   int
	Quality    int // 0 best, 9 fastest
	Bitrate    int // kbps
}

// Validate checks encoder parameters
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}
	if c.Quality < 0 || c.Quality > 9 {
		return fmt.Errorf("quality must be between 0 and 9, got %d", c.Quality)
	}
	if c.Bitrate <= 0 {
		return fmt.Errorf("bitrate must be positive, got %d", c.Bitrate)
	}
	return nil
}

// EngineQuality is the lamemp3enc encoding-engine-quality preset.
type EngineQuality int

const (
	EngineFast     EngineQuality = 0
	EngineStandard EngineQuality = 1
	EngineHigh     EngineQuality = 2
)

// EngineQuality maps the LAME algorithm quality (0 best, 9 fastest) onto the
// three presets lamemp3enc exposes.
func (c Config) EngineQuality() EngineQuality {
	switch {
	case c.Quality <= 2:
		return EngineHigh
	case c.Quality <= 6:
		return EngineStandard
	default:
		return EngineFast
	}
}

// Encoder compresses PCM into MP3 frames. Each call appends whatever
// compressed bytes are ready to out and returns the extended slice; returning
// out unchanged is valid while the encoder buffers internally.
type Encoder interface {
	// Encode compresses mono samples.
	Encode(out []byte, pcm []int16) ([]byte, error)
	// EncodeInterleaved compresses interleaved stereo samples.
	EncodeInterleaved(out []byte, pcm []int16) ([]byte, error)
	// Flush drains residual frames. No Encode calls may follow.
	Flush(out []byte) ([]byte, error)
	// Close releases the encoder.
	Close() error
}

// Factory creates encoders.
type Factory interface {
	New(cfg Config) (Encoder, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(cfg Config) (Encoder, error)

func (fn FactoryFunc) New(cfg Config) (Encoder, error) {
	return fn(cfg)
}

// MaxOutputSize returns a safe output buffer size for numSamples of input,
// following the LAME sizing rule of 1.25 * samples + 7200 bytes.
func MaxOutputSize(numSamples int) int {
	return 7200 + numSamples*5/4
}
