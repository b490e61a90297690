package device

import "sync"

// ring is a fixed-size float32 FIFO shared between the audio tick (writer)
// and the device callback (reader).
type ring struct {
	mu    sync.Mutex
	buf   []float32
	r, n  int
	over  uint64
	under uint64
}

func newRing(size int) *ring {
	return &ring{buf: make([]float32, size)}
}

// write appends as much of src as fits and counts the rest as overrun.
func (q *ring) write(src []float32) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	free := len(q.buf) - q.n
	if len(src) > free {
		q.over += uint64(len(src) - free)
		src = src[:free]
	}
	w := (q.r + q.n) % len(q.buf)
	c := copy(q.buf[w:], src)
	copy(q.buf, src[c:])
	q.n += len(src)
	return len(src)
}

// read fills dst from the FIFO and zero-fills whatever is missing.
func (q *ring) read(dst []float32) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	k := min(len(dst), q.n)
	c := copy(dst[:k], q.buf[q.r:])
	copy(dst[c:k], q.buf)
	q.r = (q.r + k) % len(q.buf)
	q.n -= k
	if k < len(dst) {
		clear(dst[k:])
		q.under += uint64(len(dst) - k)
	}
	return k
}

func (q *ring) stats() (buffered int, overrun, underrun uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n, q.over, q.under
}
