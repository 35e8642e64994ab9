// Package ringbuf provides the bounded circular buffer that hands audio between
// pipeline stages. Each buffer has one producer and one consumer and guards its
// cursors with a single mutex/condition pair.
package ringbuf
