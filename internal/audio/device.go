package audio

import "errors"

// ErrUnsupported is returned by an Opener that cannot capture the requested
// format.
var ErrUnsupported = errors.New("unsupported recording parameters")

// Device is an open audio input.
type Device interface {
	// Read fills buf with interleaved samples and returns the count. It blocks
	// until data is available.
	Read(buf []int16) (int, error)
	// Close stops capture and releases the device.
	Close() error
}

// Opener opens capture devices. bufferSize is the device-side buffer in bytes.
type Opener interface {
	Open(f Format, bufferSize int) (Device, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(f Format, bufferSize int) (Device, error)

func (fn OpenerFunc) Open(f Format, bufferSize int) (Device, error) {
	return fn(f, bufferSize)
}
