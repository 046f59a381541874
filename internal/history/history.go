// Package history keeps bounded, overwrite-oldest windows of timestamped
// values. A Buffer has exactly one writer and any number of readers; readers
// copy out a consistent window without ever blocking the writer.
package history

import (
	"math"
	"sync/atomic"
	"time"
)

// Point is one value at a time offset from the start of the stream.
type Point struct {
	At    time.Duration
	Value float64
}

// Reader is the read side of a Buffer.
type Reader interface {
	Len() int
	Cap() int
	Snapshot(dst []Point) []Point
}

// Capacity returns how many points cover display at perSecond points per
// second, rounded up and at least 1.
func Capacity(display time.Duration, perSecond float64) int {
	n := math.Ceil(display.Seconds()*perSecond - 1e-9)
	if !(n >= 1) {
		return 1
	}
	return int(n)
}

// Buffer is a fixed-capacity circular buffer of Points. Each slot is stored in
// atomics. The writer claims an index before touching its slot and publishes
// it afterwards, so a snapshot can detect and discard slots overwritten while
// it was copying.
type Buffer struct {
	values  []atomic.Uint64
	stamps  []atomic.Int64
	claimed atomic.Uint64
	written atomic.Uint64
}

// New returns an empty Buffer holding at most capacity points. A capacity
// below 1 is raised to 1.
func New(capacity int) *Buffer {
	capacity = max(capacity, 1)
	return &Buffer{
		values: make([]atomic.Uint64, capacity),
		stamps: make([]atomic.Int64, capacity),
	}
}

// Append stores a point, evicting the oldest one when full. It must only be
// called from the single writer.
func (b *Buffer) Append(at time.Duration, v float64) {
	n := b.written.Load()
	b.claimed.Store(n + 1)
	slot := n % uint64(len(b.values))
	b.values[slot].Store(math.Float64bits(v))
	b.stamps[slot].Store(int64(at))
	b.written.Store(n + 1)
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.values)
}

// Len returns the number of points currently held.
func (b *Buffer) Len() int {
	return int(min(b.written.Load(), uint64(len(b.values))))
}

// Written returns the number of points appended over the buffer's lifetime.
func (b *Buffer) Written() uint64 {
	return b.written.Load()
}

// Snapshot appends the held points, oldest first, to dst[:0] and returns it.
// Points the writer overwrote during the copy are dropped from the front, so
// the result is always a contiguous, ordered run ending at the newest point
// seen when the copy started.
func (b *Buffer) Snapshot(dst []Point) []Point {
	dst = dst[:0]
	size := uint64(len(b.values))

	end := b.written.Load()
	start := uint64(0)
	if end > size {
		start = end - size
	}
	for i := start; i < end; i++ {
		slot := i % size
		dst = append(dst, Point{
			At:    time.Duration(b.stamps[slot].Load()),
			Value: math.Float64frombits(b.values[slot].Load()),
		})
	}

	// Index i was overwritten, or is being overwritten, once i+size is claimed.
	claimed := b.claimed.Load()
	if claimed > start+size {
		drop := min(claimed-(start+size), end-start)
		dst = append(dst[:0], dst[drop:]...)
	}
	return dst
}

// Values is Snapshot without timestamps.
func (b *Buffer) Values(dst []float64) []float64 {
	dst = dst[:0]
	for _, p := range b.Snapshot(nil) {
		dst = append(dst, p.Value)
	}
	return dst
}

// Last returns the newest point, if any.
func (b *Buffer) Last() (Point, bool) {
	n := b.written.Load()
	if n == 0 {
		return Point{}, false
	}
	slot := (n - 1) % uint64(len(b.values))
	return Point{
		At:    time.Duration(b.stamps[slot].Load()),
		Value: math.Float64frombits(b.values[slot].Load()),
	}, true
}
