package config

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skypro1111/ladiocast/internal/audio"
	"github.com/skypro1111/ladiocast/internal/broadcast"
)

// mountLength is the length of a generated mount name without the slash.
const mountLength = 14

// Config represents the complete service configuration
type Config struct {
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Audio     AudioConfig     `yaml:"audio"`
	Encoder   EncoderConfig   `yaml:"encoder"`
	Stream    StreamConfig    `yaml:"stream"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Directory DirectoryConfig `yaml:"directory"`
	HTTP      HTTPConfig      `yaml:"http"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BroadcastConfig contains the stream parameters announced to the server
type BroadcastConfig struct {
	Bitrate     int    `yaml:"bitrate"` // kbps
	Channels    int    `yaml:"channels"`
	SampleRate  int    `yaml:"sample_rate"`
	Quality     int    `yaml:"quality"`
	DJName      string `yaml:"dj_name"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	URL         string `yaml:"url"`
	Genre       string `yaml:"genre"`
	Mount       string `yaml:"mount"`  // random when empty
	Server      string `yaml:"server"` // least loaded when empty
}

// AudioConfig contains capture parameters
type AudioConfig struct {
	Device               string `yaml:"device"` // GStreamer source element
	VolumeRate           int    `yaml:"volume_rate"`
	ReadChunkMs          int    `yaml:"read_chunk_ms"`
	PCMBufferSec         int    `yaml:"pcm_buffer_sec"`
	RecBufferSec         int    `yaml:"rec_buffer_sec"`
	LoudnessNotifyPerSec int    `yaml:"loudness_notify_per_sec"`
}

// EncoderConfig contains encode stage parameters
type EncoderConfig struct {
	PCMChunkSec    int `yaml:"pcm_chunk_sec"`
	FrameBufferSec int `yaml:"frame_buffer_sec"`
}

// StreamConfig contains network stage parameters
type StreamConfig struct {
	WarmupSec        int    `yaml:"warmup_sec"`
	UserAgentApp     string `yaml:"user_agent_app"`
	UserAgentVersion string `yaml:"user_agent_version"` // service version when empty
	SendBufferSize   int    `yaml:"send_buffer_size"`
	DialTimeoutSec   int    `yaml:"dial_timeout_sec"`
}

// ReconnectConfig controls automatic reconnection
type ReconnectConfig struct {
	Enabled    bool `yaml:"enabled"`
	IntervalMs int  `yaml:"interval_ms"`
}

// DirectoryServer is a statically configured streaming server
type DirectoryServer struct {
	Name      string `yaml:"name"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Listeners int    `yaml:"listeners"`
}

// DirectoryConfig selects and configures the server list source
type DirectoryConfig struct {
	Source           string            `yaml:"source"` // http, static or mdns
	URL              string            `yaml:"url"`
	TimeoutSec       int               `yaml:"timeout_sec"`
	MaxRetries       int               `yaml:"max_retries"`
	Servers          []DirectoryServer `yaml:"servers"`
	MDNSService      string            `yaml:"mdns_service"`
	MDNSDomain       string            `yaml:"mdns_domain"`
	BrowseTimeoutSec int               `yaml:"browse_timeout_sec"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// MQTTConfig contains the MQTT event publisher configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the built-in configuration with a random mount. Load
// applies the file on top of it.
func Default() *Config {
	c := &Config{
		Broadcast: BroadcastConfig{
			Bitrate:    32,
			Channels:   1,
			SampleRate: 44100,
			Quality:    7,
		},
		Audio: AudioConfig{
			VolumeRate:           100,
			ReadChunkMs:          50,
			PCMBufferSec:         5,
			RecBufferSec:         2,
			LoudnessNotifyPerSec: 5,
		},
		Encoder: EncoderConfig{
			PCMChunkSec:    2,
			FrameBufferSec: 40,
		},
		Stream: StreamConfig{
			WarmupSec:      5,
			UserAgentApp:   "VoiseSender",
			SendBufferSize: 16 * 1024,
			DialTimeoutSec: 10,
		},
		Reconnect: ReconnectConfig{
			Enabled:    true,
			IntervalMs: 4000,
		},
		Directory: DirectoryConfig{
			Source:           "mdns",
			TimeoutSec:       10,
			MaxRetries:       3,
			MDNSService:      "_ladio._tcp",
			MDNSDomain:       "local.",
			BrowseTimeoutSec: 3,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
		},
		MQTT: MQTTConfig{
			ClientID:    "ladiocast",
			TopicPrefix: "ladiocast",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
	c.Broadcast.ensureMount()
	return c
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	config.Broadcast.ensureMount()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (b *BroadcastConfig) ensureMount() {
	if b.Mount != "" {
		return
	}
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	m := make([]byte, mountLength+1)
	m[0] = '/'
	for i := 1; i < len(m); i++ {
		m[i] = letters[rand.Intn(len(letters))]
	}
	b.Mount = string(m)
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Broadcast.Validate(); err != nil {
		return fmt.Errorf("broadcast config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Encoder.Validate(); err != nil {
		return fmt.Errorf("encoder config: %w", err)
	}

	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}

	if err := c.Reconnect.Validate(); err != nil {
		return fmt.Errorf("reconnect config: %w", err)
	}

	if err := c.Directory.Validate(); err != nil {
		return fmt.Errorf("directory config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates broadcast configuration
func (b *BroadcastConfig) Validate() error {
	if b.Bitrate <= 0 {
		return fmt.Errorf("bitrate must be positive, got %d", b.Bitrate)
	}

	if b.Channels != 1 && b.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", b.Channels)
	}

	if b.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", b.SampleRate)
	}

	if b.Quality < 0 || b.Quality > 9 {
		return fmt.Errorf("quality must be between 0 and 9, got %d", b.Quality)
	}

	if b.Mount == "" || b.Mount == "/" {
		return fmt.Errorf("mount %q is invalid", b.Mount)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.VolumeRate < 0 || a.VolumeRate > audio.MaxVolume {
		return fmt.Errorf("volume_rate must be between 0 and %d, got %d", audio.MaxVolume, a.VolumeRate)
	}

	if a.ReadChunkMs < 1 {
		return fmt.Errorf("read_chunk_ms must be at least 1, got %d", a.ReadChunkMs)
	}

	if a.PCMBufferSec < 1 {
		return fmt.Errorf("pcm_buffer_sec must be at least 1 second, got %d", a.PCMBufferSec)
	}

	if a.RecBufferSec < 1 {
		return fmt.Errorf("rec_buffer_sec must be at least 1 second, got %d", a.RecBufferSec)
	}

	if a.LoudnessNotifyPerSec < 1 {
		return fmt.Errorf("loudness_notify_per_sec must be at least 1, got %d", a.LoudnessNotifyPerSec)
	}

	return nil
}

// Validate validates encoder configuration
func (e *EncoderConfig) Validate() error {
	if e.PCMChunkSec < 1 {
		return fmt.Errorf("pcm_chunk_sec must be at least 1 second, got %d", e.PCMChunkSec)
	}

	if e.FrameBufferSec < 1 {
		return fmt.Errorf("frame_buffer_sec must be at least 1 second, got %d", e.FrameBufferSec)
	}

	return nil
}

// Validate validates stream configuration
func (s *StreamConfig) Validate() error {
	if s.WarmupSec < 0 {
		return fmt.Errorf("warmup_sec cannot be negative, got %d", s.WarmupSec)
	}

	if s.UserAgentApp == "" {
		return fmt.Errorf("user_agent_app cannot be empty")
	}

	if s.SendBufferSize < 1024 {
		return fmt.Errorf("send_buffer_size must be at least 1024 bytes, got %d", s.SendBufferSize)
	}

	if s.DialTimeoutSec < 0 {
		return fmt.Errorf("dial_timeout_sec cannot be negative, got %d", s.DialTimeoutSec)
	}

	return nil
}

// Validate validates reconnect configuration
func (r *ReconnectConfig) Validate() error {
	if r.Enabled && r.IntervalMs < 0 {
		return fmt.Errorf("interval_ms cannot be negative, got %d", r.IntervalMs)
	}
	return nil
}

// Validate validates directory configuration
func (d *DirectoryConfig) Validate() error {
	switch d.Source {
	case "http":
		if d.URL == "" {
			return fmt.Errorf("url cannot be empty for http source")
		}
		if d.TimeoutSec < 1 {
			return fmt.Errorf("timeout_sec must be at least 1 second, got %d", d.TimeoutSec)
		}
		if d.MaxRetries < 0 {
			return fmt.Errorf("max_retries cannot be negative, got %d", d.MaxRetries)
		}
	case "static":
		if len(d.Servers) == 0 {
			return fmt.Errorf("servers cannot be empty for static source")
		}
		for i, s := range d.Servers {
			if s.Host == "" {
				return fmt.Errorf("servers[%d]: host cannot be empty", i)
			}
			if s.Port < 1 || s.Port > 65535 {
				return fmt.Errorf("servers[%d]: port must be between 1 and 65535, got %d", i, s.Port)
			}
		}
	case "mdns":
		if d.MDNSService == "" {
			return fmt.Errorf("mdns_service cannot be empty for mdns source")
		}
		if d.BrowseTimeoutSec < 1 {
			return fmt.Errorf("browse_timeout_sec must be at least 1 second, got %d", d.BrowseTimeoutSec)
		}
	default:
		return fmt.Errorf("source must be one of [http, static, mdns], got '%s'", d.Source)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates MQTT configuration
func (m *MQTTConfig) Validate() error {
	if !m.Enabled {
		return nil
	}

	if m.Broker == "" {
		return fmt.Errorf("broker cannot be empty when MQTT is enabled")
	}

	if m.TopicPrefix == "" {
		return fmt.Errorf("topic_prefix cannot be empty when MQTT is enabled")
	}

	if m.QoS < 0 || m.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", m.QoS)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetReadChunkDuration returns the capture read size as a time.Duration
func (a *AudioConfig) GetReadChunkDuration() time.Duration {
	return time.Duration(a.ReadChunkMs) * time.Millisecond
}

// GetPCMBufferDuration returns the PCM ring capacity as a time.Duration
func (a *AudioConfig) GetPCMBufferDuration() time.Duration {
	return time.Duration(a.PCMBufferSec) * time.Second
}

// GetRecBufferDuration returns the device buffer as a time.Duration
func (a *AudioConfig) GetRecBufferDuration() time.Duration {
	return time.Duration(a.RecBufferSec) * time.Second
}

// GetPCMChunkDuration returns the encoder input size as a time.Duration
func (e *EncoderConfig) GetPCMChunkDuration() time.Duration {
	return time.Duration(e.PCMChunkSec) * time.Second
}

// GetFrameBufferDuration returns the frame ring capacity as a time.Duration
func (e *EncoderConfig) GetFrameBufferDuration() time.Duration {
	return time.Duration(e.FrameBufferSec) * time.Second
}

// GetWarmupDuration returns the send delay as a time.Duration
func (s *StreamConfig) GetWarmupDuration() time.Duration {
	return time.Duration(s.WarmupSec) * time.Second
}

// GetDialTimeoutDuration returns the connect timeout as a time.Duration
func (s *StreamConfig) GetDialTimeoutDuration() time.Duration {
	return time.Duration(s.DialTimeoutSec) * time.Second
}

// GetIntervalDuration returns the reconnect backoff as a time.Duration
func (r *ReconnectConfig) GetIntervalDuration() time.Duration {
	return time.Duration(r.IntervalMs) * time.Millisecond
}

// GetTimeoutDuration returns the directory request timeout as a time.Duration
func (d *DirectoryConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(d.TimeoutSec) * time.Second
}

// GetBrowseTimeoutDuration returns the mDNS browse window as a time.Duration
func (d *DirectoryConfig) GetBrowseTimeoutDuration() time.Duration {
	return time.Duration(d.BrowseTimeoutSec) * time.Second
}

// Params converts the section into broadcast parameters
func (b *BroadcastConfig) Params() broadcast.Params {
	return broadcast.Params{
		Bitrate:     b.Bitrate,
		Channels:    b.Channels,
		SampleRate:  b.SampleRate,
		Quality:     b.Quality,
		DJName:      b.DJName,
		Title:       b.Title,
		Description: b.Description,
		URL:         b.URL,
		Genre:       b.Genre,
		Mount:       b.Mount,
		Server:      b.Server,
	}
}

// BroadcastSettings assembles session tuning from the audio, encoder, stream
// and reconnect sections
func (c *Config) BroadcastSettings() broadcast.Settings {
	return broadcast.Settings{
		PCMBuffer:         c.Audio.GetPCMBufferDuration(),
		DeviceBuffer:      c.Audio.GetRecBufferDuration(),
		ReadChunk:         c.Audio.GetReadChunkDuration(),
		EncodeChunk:       c.Encoder.GetPCMChunkDuration(),
		FrameBuffer:       c.Encoder.GetFrameBufferDuration(),
		Warmup:            c.Stream.GetWarmupDuration(),
		ReconnectEnabled:  c.Reconnect.Enabled,
		ReconnectInterval: c.Reconnect.GetIntervalDuration(),
		LoudnessPerSec:    c.Audio.LoudnessNotifyPerSec,
		SendBufferSize:    c.Stream.SendBufferSize,
		DialTimeout:       c.Stream.GetDialTimeoutDuration(),
		UserAgent:         broadcast.UserAgent(c.Stream.UserAgentApp, c.Stream.UserAgentVersion),
	}
}
