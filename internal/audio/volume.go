package audio

import (
	"math"
	"sync/atomic"
)

// UnityVolume is the rate at which samples pass through unchanged.
const UnityVolume = 100

// MaxVolume is the highest accepted rate, a gain of 10x.
const MaxVolume = 1000

// VolumeScaler applies a linear gain, expressed in percent, to raw samples.
// The rate may be changed from any goroutine while capture is running.
type VolumeScaler struct {
	rate atomic.Int32
}

// NewVolumeScaler creates a scaler at the given rate
func NewVolumeScaler(rate int) *VolumeScaler {
	v := &VolumeScaler{}
	v.SetRate(rate)
	return v
}

// Rate returns the current gain in percent
func (v *VolumeScaler) Rate() int {
	return int(v.rate.Load())
}

// SetRate sets the gain in percent, clamped to [0, MaxVolume].
func (v *VolumeScaler) SetRate(rate int) {
	v.rate.Store(int32(ClampVolume(rate)))
}

// ClampVolume limits rate to [0, MaxVolume]
func ClampVolume(rate int) int {
	switch {
	case rate < 0:
		return 0
	case rate > MaxVolume:
		return MaxVolume
	}
	return rate
}

// Enabled reports whether Apply changes samples
func (v *VolumeScaler) Enabled() bool {
	return v.Rate() != UnityVolume
}

// Apply scales samples in place
func (v *VolumeScaler) Apply(samples []int16) {
	ScaleVolume(samples, v.Rate())
}

// ScaleVolume multiplies each sample by rate/100 and clamps the result to the
// int16 range. A rate of 100 leaves samples untouched.
func ScaleVolume(samples []int16, rate int) {
	if rate == UnityVolume {
		return
	}
	gain := float64(rate) / 100
	for i, s := range samples {
		v := int(float64(s) * gain)
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		samples[i] = int16(v)
	}
}
