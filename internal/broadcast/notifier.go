package broadcast

import (
	"sync"
)

// Notifier fans events out to registered callbacks. Callbacks run on the
// goroutine that raised the event and may register or remove callbacks.
type Notifier struct {
	mu       sync.Mutex
	nextID   uint64
	events   []eventEntry
	loudness []loudnessEntry
	states   []stateEntry
}

type eventEntry struct {
	id uint64
	fn func(Event)
}

type loudnessEntry struct {
	id uint64
	fn func(db float64)
}

type stateEntry struct {
	id uint64
	fn func(from, to State)
}

// NewNotifier creates an empty notifier
func NewNotifier() *Notifier {
	return &Notifier{}
}

// OnEvent registers fn for lifecycle and error events. The returned function
// removes it.
func (n *Notifier) OnEvent(fn func(Event)) (remove func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	n.events = append(n.events, eventEntry{id: id, fn: fn})
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.events = removeByID(n.events, id, func(e eventEntry) uint64 { return e.id })
	}
}

// OnLoudness registers fn for loudness samples in dB.
func (n *Notifier) OnLoudness(fn func(db float64)) (remove func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	n.loudness = append(n.loudness, loudnessEntry{id: id, fn: fn})
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.loudness = removeByID(n.loudness, id, func(e loudnessEntry) uint64 { return e.id })
	}
}

// OnStateChange registers fn for state transitions.
func (n *Notifier) OnStateChange(fn func(from, to State)) (remove func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	n.states = append(n.states, stateEntry{id: id, fn: fn})
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.states = removeByID(n.states, id, func(e stateEntry) uint64 { return e.id })
	}
}

// LoudnessObservers returns the number of loudness callbacks
func (n *Notifier) LoudnessObservers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.loudness)
}

// Notify delivers e to a snapshot of the event callbacks
func (n *Notifier) Notify(e Event) {
	n.mu.Lock()
	snapshot := append([]eventEntry(nil), n.events...)
	n.mu.Unlock()

	for _, entry := range snapshot {
		entry.fn(e)
	}
}

// NotifyLoudness delivers db to a snapshot of the loudness callbacks
func (n *Notifier) NotifyLoudness(db float64) {
	n.mu.Lock()
	snapshot := append([]loudnessEntry(nil), n.loudness...)
	n.mu.Unlock()

	for _, entry := range snapshot {
		entry.fn(db)
	}
}

// NotifyStateChange delivers a transition to a snapshot of the state callbacks
func (n *Notifier) NotifyStateChange(from, to State) {
	n.mu.Lock()
	snapshot := append([]stateEntry(nil), n.states...)
	n.mu.Unlock()

	for _, entry := range snapshot {
		entry.fn(from, to)
	}
}

func removeByID[T any](entries []T, id uint64, key func(T) uint64) []T {
	out := entries[:0:0]
	for _, e := range entries {
		if key(e) != id {
			out = append(out, e)
		}
	}
	return out
}
