package audio

import (
	"testing"
	"time"
)

func TestFormatValidate(t *testing.T) {
	tests := []struct {
		name        string
		format      Format
		expectError bool
	}{
		{"mono", Format{SampleRate: 44100, Channels: 1}, false},
		{"stereo", Format{SampleRate: 22050, Channels: 2}, false},
		{"zero rate", Format{SampleRate: 0, Channels: 1}, true},
		{"three channels", Format{SampleRate: 44100, Channels: 3}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.format.Validate()
			if tt.expectError && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestFormatSizes(t *testing.T) {
	f := Format{SampleRate: 44100, Channels: 2}
	if f.BytesPerSecond() != 176400 {
		t.Errorf("Expected 176400 bytes/s, got %d", f.BytesPerSecond())
	}
	if got := f.Samples(50 * time.Millisecond); got != 4410 {
		t.Errorf("Expected 4410 samples in 50ms, got %d", got)
	}
}

func TestPCMConversion(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 0x1234}
	data := EncodePCM(nil, samples)
	if len(data) != 2*len(samples) {
		t.Fatalf("Expected %d bytes, got %d", 2*len(samples), len(data))
	}
	if data[10] != 0x34 || data[11] != 0x12 {
		t.Errorf("Expected little-endian 0x1234, got %#x %#x", data[10], data[11])
	}

	out := make([]int16, len(samples))
	n := DecodePCM(out, append(data, 0xff))
	if n != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), n)
	}
	for i := range samples {
		if out[i] != samples[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, samples[i], out[i])
		}
	}

	short := make([]int16, 2)
	if n := DecodePCM(short, data); n != 2 {
		t.Errorf("Expected decode limited to dst length 2, got %d", n)
	}
}
