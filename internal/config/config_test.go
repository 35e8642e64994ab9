package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	c := Default()
	c.Broadcast.Mount = "/radio"
	return c
}

func TestDefaultIsValid(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got %v", err)
	}

	if c.Broadcast.Bitrate != 32 || c.Broadcast.SampleRate != 44100 || c.Broadcast.Quality != 7 {
		t.Errorf("Unexpected broadcast defaults: %+v", c.Broadcast)
	}
	if !c.Reconnect.Enabled || c.Reconnect.IntervalMs != 4000 {
		t.Errorf("Unexpected reconnect defaults: %+v", c.Reconnect)
	}
	if c.Stream.SendBufferSize != 16*1024 || c.Stream.UserAgentApp != "VoiseSender" {
		t.Errorf("Unexpected stream defaults: %+v", c.Stream)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			modify:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "zero bitrate",
			modify:      func(c *Config) { c.Broadcast.Bitrate = 0 },
			expectError: true,
			errorMsg:    "bitrate must be positive",
		},
		{
			name:        "three channels",
			modify:      func(c *Config) { c.Broadcast.Channels = 3 },
			expectError: true,
			errorMsg:    "channels must be 1 or 2",
		},
		{
			name:        "quality out of range",
			modify:      func(c *Config) { c.Broadcast.Quality = 10 },
			expectError: true,
			errorMsg:    "quality must be between 0 and 9",
		},
		{
			name:        "root mount",
			modify:      func(c *Config) { c.Broadcast.Mount = "/" },
			expectError: true,
			errorMsg:    "mount",
		},
		{
			name:        "negative volume",
			modify:      func(c *Config) { c.Audio.VolumeRate = -1 },
			expectError: true,
			errorMsg:    "volume_rate must be between 0 and 1000",
		},
		{
			name:        "volume above max",
			modify:      func(c *Config) { c.Audio.VolumeRate = 1001 },
			expectError: true,
			errorMsg:    "volume_rate must be between 0 and 1000",
		},
		{
			name:        "zero frame buffer",
			modify:      func(c *Config) { c.Encoder.FrameBufferSec = 0 },
			expectError: true,
			errorMsg:    "frame_buffer_sec",
		},
		{
			name:        "small send buffer",
			modify:      func(c *Config) { c.Stream.SendBufferSize = 512 },
			expectError: true,
			errorMsg:    "send_buffer_size must be at least 1024",
		},
		{
			name:        "http directory without url",
			modify:      func(c *Config) { c.Directory.Source = "http" },
			expectError: true,
			errorMsg:    "url cannot be empty",
		},
		{
			name: "static directory with bad port",
			modify: func(c *Config) {
				c.Directory.Source = "static"
				c.Directory.Servers = []DirectoryServer{{Name: "a", Host: "localhost", Port: 0}}
			},
			expectError: true,
			errorMsg:    "port must be between 1 and 65535",
		},
		{
			name:        "unknown directory source",
			modify:      func(c *Config) { c.Directory.Source = "ftp" },
			expectError: true,
			errorMsg:    "source must be one of",
		},
		{
			name: "mqtt without broker",
			modify: func(c *Config) {
				c.MQTT.Enabled = true
			},
			expectError: true,
			errorMsg:    "broker cannot be empty",
		},
		{
			name: "http enabled with invalid port",
			modify: func(c *Config) {
				c.HTTP.Enabled = true
				c.HTTP.Port = 70000
			},
			expectError: true,
			errorMsg:    "http port must be between 1 and 65535",
		},
		{
			name:        "invalid log level",
			modify:      func(c *Config) { c.Logging.Level = "trace" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.modify(c)
			err := c.Validate()

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
broadcast:
  bitrate: 64
  channels: 2
  sample_rate: 22050
  quality: 5
  title: "morning show"
  mount: "/morning"
directory:
  source: static
  servers:
    - name: std1
      host: "127.0.0.1"
      port: 8000
      listeners: 3
reconnect:
  enabled: false
logging:
  level: "debug"
  format: "json"
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
broadcast:
  bitrate: invalid_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "invalid field value",
			configYAML: `
broadcast:
  channels: 6
`,
			expectError: true,
			errorMsg:    "channels must be 1 or 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.configYAML), 0644)
			if err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Errorf("Expected config to be loaded but got nil")
				}
			}
		})
	}
}

func TestConfigLoadOverridesDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
broadcast:
  bitrate: 128
reconnect:
  enabled: false
`
	if err := os.WriteFile(configPath, []byte(yaml), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.Broadcast.Bitrate != 128 {
		t.Errorf("Expected bitrate 128, got %d", config.Broadcast.Bitrate)
	}
	if config.Broadcast.SampleRate != 44100 {
		t.Errorf("Expected default sample rate to survive, got %d", config.Broadcast.SampleRate)
	}
	if config.Reconnect.Enabled {
		t.Errorf("Expected reconnect to be disabled")
	}
	if config.Reconnect.IntervalMs != 4000 {
		t.Errorf("Expected default interval to survive, got %d", config.Reconnect.IntervalMs)
	}

	// An empty mount becomes a random one.
	if len(config.Broadcast.Mount) != mountLength+1 || config.Broadcast.Mount[0] != '/' {
		t.Errorf("Expected generated mount, got %q", config.Broadcast.Mount)
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Fatalf("Expected error for nonexistent file but got none")
	}
	if !contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	c := Default()

	if c.Audio.GetReadChunkDuration() != 50*time.Millisecond {
		t.Errorf("Expected 50ms, got %v", c.Audio.GetReadChunkDuration())
	}

	if c.Audio.GetPCMBufferDuration() != 5*time.Second {
		t.Errorf("Expected 5 seconds, got %v", c.Audio.GetPCMBufferDuration())
	}

	if c.Audio.GetRecBufferDuration() != 2*time.Second {
		t.Errorf("Expected 2 seconds, got %v", c.Audio.GetRecBufferDuration())
	}

	if c.Encoder.GetPCMChunkDuration() != 2*time.Second {
		t.Errorf("Expected 2 seconds, got %v", c.Encoder.GetPCMChunkDuration())
	}

	if c.Encoder.GetFrameBufferDuration() != 40*time.Second {
		t.Errorf("Expected 40 seconds, got %v", c.Encoder.GetFrameBufferDuration())
	}

	if c.Stream.GetWarmupDuration() != 5*time.Second {
		t.Errorf("Expected 5 seconds, got %v", c.Stream.GetWarmupDuration())
	}

	if c.Reconnect.GetIntervalDuration() != 4*time.Second {
		t.Errorf("Expected 4 seconds, got %v", c.Reconnect.GetIntervalDuration())
	}

	if c.Directory.GetBrowseTimeoutDuration() != 3*time.Second {
		t.Errorf("Expected 3 seconds, got %v", c.Directory.GetBrowseTimeoutDuration())
	}
}

func TestBroadcastSettings(t *testing.T) {
	c := validConfig()
	c.Stream.UserAgentApp = "Tester"
	c.Stream.UserAgentVersion = "2.1"

	s := c.BroadcastSettings()
	if s.PCMBuffer != 5*time.Second || s.FrameBuffer != 40*time.Second || s.ReconnectInterval != 4*time.Second {
		t.Errorf("Unexpected durations: %+v", s)
	}
	if !s.ReconnectEnabled || s.SendBufferSize != 16*1024 || s.LoudnessPerSec != 5 {
		t.Errorf("Unexpected settings: %+v", s)
	}
	if !contains(s.UserAgent, "Tester/2.1 (") {
		t.Errorf("Unexpected user agent %q", s.UserAgent)
	}

	p := c.Broadcast.Params()
	if p.Mount != "/radio" || p.Bitrate != 32 || p.SampleRate != 44100 {
		t.Errorf("Unexpected params: %+v", p)
	}
}

// Helper function to check if a string contains a substring
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		(len(s) > len(substr) && findSubstring(s, substr)))
}

func findSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
