// Package usage implements the fixed-capacity CPU/memory usage ring
// buffers described for the runtime manager, one buffer per registered
// device, sampled every 5s for up to 48h of history.
package usage

import (
	"container/ring"
	"sync"
	"time"
)

// Capacity is 48h of 5s samples: 48*3600/5.
const Capacity = 48 * 3600 / 5

// Sample is one CPU/memory observation.
type Sample struct {
	Timestamp time.Time
	CPUPct    float64
	MemMB     float64
}

// Buffer is a fixed-capacity circular buffer of Samples for one device.
type Buffer struct {
	mu   sync.Mutex
	r    *ring.Ring
	size int
	n    int
}

func NewBuffer() *Buffer {
	return &Buffer{r: ring.New(Capacity), size: Capacity}
}

// Add appends a sample, evicting the oldest once the buffer is full.
func (b *Buffer) Add(cpuPct, memMB float64, t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.r.Value = Sample{Timestamp: t, CPUPct: cpuPct, MemMB: memMB}
	b.r = b.r.Next()
	if b.n < b.size {
		b.n++
	}
}

// Range returns every sample with start <= Timestamp <= end, oldest
// first. A zero start means "from the first sample"; a zero end means
// "up to now".
func (b *Buffer) Range(start, end time.Time) []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()

	if end.IsZero() {
		end = time.Now()
	}

	out := make([]Sample, 0, b.n)
	// b.r currently points at the next slot to be overwritten, i.e. the
	// oldest value (or a nil slot if the buffer isn't full yet).
	b.r.Do(func(v interface{}) {
		if v == nil {
			return
		}
		s := v.(Sample)
		if !start.IsZero() && s.Timestamp.Before(start) {
			return
		}
		if s.Timestamp.After(end) {
			return
		}
		out = append(out, s)
	})
	return out
}

// Len returns the number of samples currently stored.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Clear discards every stored sample.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.r = ring.New(b.size)
	b.n = 0
}
