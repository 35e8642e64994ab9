package broadcast

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrInvalidConfig wraps every broadcast configuration validation failure.
var ErrInvalidConfig = errors.New("invalid broadcast config")

// MountLength is the length of generated mount names, excluding the slash.
const MountLength = 14

// Params are the raw inputs to NewConfig.
type Params struct {
	Bitrate     int    `json:"bitrate"` // kbps
	Channels    int    `json:"channels"`
	SampleRate  int    `json:"sample_rate"`
	Quality     int    `json:"quality"`
	DJName      string `json:"dj_name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Genre       string `json:"genre"`
	Mount       string `json:"mount"`
	Server      string `json:"server,omitempty"` // empty selects the least loaded server
}

// Config is a validated, immutable broadcast configuration.
type Config struct {
	p Params
}

// NewConfig validates p and returns the configuration
func NewConfig(p Params) (Config, error) {
	if p.Bitrate <= 0 {
		return Config{}, fmt.Errorf("%w: bitrate must be positive, got %d", ErrInvalidConfig, p.Bitrate)
	}
	if p.Channels != 1 && p.Channels != 2 {
		return Config{}, fmt.Errorf("%w: channels must be 1 or 2, got %d", ErrInvalidConfig, p.Channels)
	}
	if p.SampleRate <= 0 {
		return Config{}, fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidConfig, p.SampleRate)
	}
	if p.Quality < 0 || p.Quality > 9 {
		return Config{}, fmt.Errorf("%w: quality must be between 0 and 9, got %d", ErrInvalidConfig, p.Quality)
	}
	if p.Mount == "" || p.Mount == "/" {
		return Config{}, fmt.Errorf("%w: mount %q is invalid", ErrInvalidConfig, p.Mount)
	}
	return Config{p: p}, nil
}

func (c Config) Bitrate() int        { return c.p.Bitrate }
func (c Config) Channels() int       { return c.p.Channels }
func (c Config) SampleRate() int     { return c.p.SampleRate }
func (c Config) Quality() int        { return c.p.Quality }
func (c Config) DJName() string      { return c.p.DJName }
func (c Config) Title() string       { return c.p.Title }
func (c Config) Description() string { return c.p.Description }
func (c Config) URL() string         { return c.p.URL }
func (c Config) Genre() string       { return c.p.Genre }
func (c Config) Mount() string       { return c.p.Mount }
func (c Config) Server() string      { return c.p.Server }

// Params returns a copy of the inputs
func (c Config) Params() Params { return c.p }

// RandomMount returns "/" followed by MountLength random ASCII letters
func RandomMount() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	b := make([]byte, MountLength+1)
	b[0] = '/'
	for i := 1; i < len(b); i++ {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
