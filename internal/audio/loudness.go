package audio

import "math"

// LoudnessMeter accumulates squared sample values and reports the RMS level in
// dB once per window.
type LoudnessMeter struct {
	window     int
	sumSquares float64
	count      int
}

// NewLoudnessMeter sizes the window so that it closes notifyPerSec times per
// second of audio in format f.
func NewLoudnessMeter(f Format, notifyPerSec int) *LoudnessMeter {
	if notifyPerSec <= 0 {
		notifyPerSec = 1
	}
	window := f.SamplesPerSecond() / notifyPerSec
	if window < 1 {
		window = 1
	}
	return &LoudnessMeter{window: window}
}

// Window returns the number of samples per report
func (m *LoudnessMeter) Window() int {
	return m.window
}

// Feed accumulates samples and calls emit with the level of every window that
// closes while consuming them.
func (m *LoudnessMeter) Feed(samples []int16, emit func(db float64)) {
	for _, s := range samples {
		v := float64(s)
		m.sumSquares += v * v
		m.count++
		if m.count >= m.window {
			emit(20 * math.Log10(math.Sqrt(m.sumSquares/float64(m.count))))
			m.Reset()
		}
	}
}

// Reset discards the partially accumulated window
func (m *LoudnessMeter) Reset() {
	m.sumSquares = 0
	m.count = 0
}

// SilenceFloorDB stands in for the -Inf level of digital silence where the
// value must be finite, such as JSON payloads.
const SilenceFloorDB = -100.0

// FiniteDB clamps db to SilenceFloorDB
func FiniteDB(db float64) float64 {
	if math.IsInf(db, -1) || db < SilenceFloorDB {
		return SilenceFloorDB
	}
	return db
}
