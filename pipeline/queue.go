package pipeline

import (
	"sync"

	"github.com/cwbudde/algo-piano-fd/piano"
)

// DefaultQueueLimit bounds the number of events buffered between two audio
// ticks.
const DefaultQueueLimit = 1024

// EventQueue hands events from input goroutines to the audio tick. Producers
// append under a short lock; the consumer swaps the pending slice for its
// spare one so neither side holds the lock while working.
type EventQueue struct {
	mu      sync.Mutex
	pending []piano.NoteEvent
	spare   []piano.NoteEvent
	limit   int
	dropped uint64
}

// NewEventQueue creates a queue holding at most limit undrained events.
// limit <= 0 selects DefaultQueueLimit.
func NewEventQueue(limit int) *EventQueue {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &EventQueue{
		pending: make([]piano.NoteEvent, 0, limit),
		spare:   make([]piano.NoteEvent, 0, limit),
		limit:   limit,
	}
}

// Push appends ev. It returns false and counts a drop when the queue is full.
func (q *EventQueue) Push(ev piano.NoteEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) >= q.limit {
		q.dropped++
		return false
	}
	q.pending = append(q.pending, ev)
	return true
}

// Drain appends all pending events to dst in arrival order and empties the
// queue.
func (q *EventQueue) Drain(dst []piano.NoteEvent) []piano.NoteEvent {
	q.mu.Lock()
	batch := q.pending
	q.pending = q.spare[:0]
	q.mu.Unlock()

	dst = append(dst, batch...)

	q.mu.Lock()
	q.spare = batch[:0]
	q.mu.Unlock()
	return dst
}

// Len returns the number of undrained events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Dropped returns how many events were rejected because the queue was full.
func (q *EventQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
