package hub

import (
	"sync"
	"time"

	"pulsehub/internal/pipeline"
)

// Buffer is the bounded per-source point buffer. Writes come from the
// owning connector's worker, reads from the hub's aggregation cycle; the
// internal lock keeps that handoff non-blocking for the connector. When the
// buffer is full the newest point evicts the oldest rather than blocking.
type Buffer struct {
	mu       sync.Mutex
	points   []pipeline.DataPoint
	capacity int
	lastTS   map[string]time.Time // per metric, for out-of-order flagging
	evicted  uint64
}

// NewBuffer creates a bounded buffer
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 2000
	}
	return &Buffer{
		capacity: capacity,
		points:   make([]pipeline.DataPoint, 0, capacity),
		lastTS:   make(map[string]time.Time),
	}
}

// Add buffers one point. Points older than the newest already-seen point of
// the same metric are accepted but flagged out-of-order; trend fitting
// excludes them later.
func (b *Buffer) Add(p pipeline.DataPoint) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if last, ok := b.lastTS[p.Metric]; ok && p.Timestamp.Before(last) {
		p.OutOfOrder = true
	} else {
		b.lastTS[p.Metric] = p.Timestamp
	}

	if len(b.points) >= b.capacity {
		// Oldest-first eviction.
		copy(b.points, b.points[1:])
		b.points = b.points[:len(b.points)-1]
		b.evicted++
	}
	b.points = append(b.points, p)
}

// Points returns a copy of the buffered points in arrival order
func (b *Buffer) Points() []pipeline.DataPoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]pipeline.DataPoint, len(b.points))
	copy(out, b.points)
	return out
}

// Len returns the number of buffered points
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.points)
}

// Evicted returns the total number of points dropped by capacity eviction
func (b *Buffer) Evicted() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}

// DropOlderThan evicts points whose timestamp precedes the cutoff and
// forgets idle metrics. Returns the number of points removed.
func (b *Buffer) DropOlderThan(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.points[:0]
	removed := 0
	for _, p := range b.points {
		if p.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	b.points = kept

	for metric, last := range b.lastTS {
		if last.Before(cutoff) {
			delete(b.lastTS, metric)
		}
	}
	return removed
}
