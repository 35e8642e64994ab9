// Package audio handles raw PCM capture and per-sample processing.
// It provides the input device capability, the GStreamer-backed microphone,
// linear volume scaling and the throttled RMS loudness meter.
package audio
