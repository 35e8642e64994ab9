package ringbuf

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrOverflow is returned when a put cannot be satisfied.
var ErrOverflow = errors.New("ring buffer overflow")

// Ring is a fixed capacity FIFO of T. One slot of the backing array is reserved
// to tell a full buffer from an empty one.
type Ring[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf  []T
	head int // next element to read
	tail int // next slot to write
}

// New creates a ring holding up to capacity elements.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	r := &Ring[T]{
		buf: make([]T, capacity+1),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Capacity returns the number of usable slots.
func (r *Ring[T]) Capacity() int {
	return len(r.buf) - 1
}

// PutAvailable returns how many elements can be put without overwriting.
func (r *Ring[T]) PutAvailable() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putAvailable()
}

// GetAvailable returns how many elements are buffered.
func (r *Ring[T]) GetAvailable() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getAvailable()
}

func (r *Ring[T]) putAvailable() int {
	switch {
	case r.head == r.tail:
		return len(r.buf) - 1
	case r.tail < r.head:
		return r.head - r.tail - 1
	default:
		return len(r.buf) - (r.tail - r.head) - 1
	}
}

func (r *Ring[T]) getAvailable() int {
	switch {
	case r.head == r.tail:
		return 0
	case r.tail < r.head:
		return len(r.buf) - (r.head - r.tail)
	default:
		return r.tail - r.head
	}
}

// Put copies all of data into the ring and wakes a waiting consumer.
//
// With overwrite false the put fails with ErrOverflow when data does not fit and
// the buffer is left untouched. With overwrite true the oldest elements are
// discarded to make room; only a put larger than Capacity fails.
func (r *Ring[T]) Put(data []T, overwrite bool) error {
	n := len(data)
	if n == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	avail := r.putAvailable()
	if n > avail {
		if !overwrite {
			return fmt.Errorf("%w: put %d, available %d", ErrOverflow, n, avail)
		}
		if n > len(r.buf)-1 {
			return fmt.Errorf("%w: put %d exceeds capacity %d", ErrOverflow, n, len(r.buf)-1)
		}
		r.discard(n - avail)
	}

	// At most two segments: up to the end of the array, then from the start.
	first := copy(r.buf[r.tail:], data)
	if first < n {
		copy(r.buf, data[first:])
	}
	r.tail = (r.tail + n) % len(r.buf)

	r.cond.Signal()
	return nil
}

func (r *Ring[T]) discard(n int) {
	if got := r.getAvailable(); n > got {
		n = got
	}
	r.head = (r.head + n) % len(r.buf)
}

// Get copies up to len(dst) buffered elements into dst and returns the count.
// It never blocks; zero means the ring is empty.
func (r *Ring[T]) Get(dst []T) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(dst)
}

func (r *Ring[T]) get(dst []T) int {
	n := r.getAvailable()
	if len(dst) < n {
		n = len(dst)
	}
	if n == 0 {
		return 0
	}

	end := r.head + n
	if end <= len(r.buf) {
		copy(dst, r.buf[r.head:end])
	} else {
		first := copy(dst, r.buf[r.head:])
		copy(dst[first:n], r.buf[:n-first])
	}
	r.head = end % len(r.buf)
	return n
}

// Read blocks until at least one element is buffered or ctx is done, then
// behaves like Get.
func (r *Ring[T]) Read(ctx context.Context, dst []T) (int, error) {
	stop := context.AfterFunc(ctx, r.Broadcast)
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()

	for r.getAvailable() == 0 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		r.cond.Wait()
	}
	return r.get(dst), nil
}

// Broadcast wakes every goroutine blocked in Read.
func (r *Ring[T]) Broadcast() {
	r.mu.Lock()
	r.cond.Broadcast()
	r.mu.Unlock()
}

// Clear drops all buffered elements.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.tail = 0
}
