package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// BitDepth is the only sample width the pipeline carries.
const BitDepth = 16

// Format describes interleaved signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// Validate checks that the format can be captured and encoded
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", f.Channels)
	}
	return nil
}

// SamplesPerSecond returns interleaved samples per second
func (f Format) SamplesPerSecond() int {
	return f.SampleRate * f.Channels
}

// BytesPerSecond returns the PCM byte rate
func (f Format) BytesPerSecond() int {
	return f.SamplesPerSecond() * BitDepth / 8
}

// Samples returns the number of interleaved samples covering d
func (f Format) Samples(d time.Duration) int {
	return int(int64(f.SamplesPerSecond()) * int64(d) / int64(time.Second))
}

// DecodePCM converts little-endian bytes into samples. A trailing odd byte is
// ignored. It returns the number of samples written to dst.
func DecodePCM(dst []int16, src []byte) int {
	n := len(src) / 2
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(src[2*i:]))
	}
	return n
}

// EncodePCM appends samples to dst as little-endian bytes
func EncodePCM(dst []byte, samples []int16) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}
