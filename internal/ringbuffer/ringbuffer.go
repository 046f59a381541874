// Package ringbuffer is a single-producer, single-consumer ring of int16
// samples. The producer never blocks and the consumer reads silence when
// nothing is queued, so it can sit between a real-time audio loop and an audio
// output device.
package ringbuffer

import (
	"encoding/binary"
	"math"
	"sync/atomic"
)

// RingBuffer is a lock-free SPSC ring buffer for int16 samples.
type RingBuffer struct {
	buf     []int16
	size    uint64
	head    atomic.Uint64 // next index to read
	tail    atomic.Uint64 // next index to write
	dropped atomic.Uint64
	padded  atomic.Uint64
}

// New creates a new RingBuffer holding up to size samples.
func New(size int) *RingBuffer {
	size = max(size, 1)
	return &RingBuffer{
		buf:  make([]int16, size),
		size: uint64(size),
	}
}

// AvailableWrite returns the number of samples that can be written to the buffer.
func (rb *RingBuffer) AvailableWrite() int {
	return int(rb.size - (rb.tail.Load() - rb.head.Load()))
}

// AvailableRead returns the number of samples available for reading.
func (rb *RingBuffer) AvailableRead() int {
	return int(rb.tail.Load() - rb.head.Load())
}

// Dropped returns how many samples were discarded because the buffer was full.
func (rb *RingBuffer) Dropped() uint64 {
	return rb.dropped.Load()
}

// Padded returns how many silent samples the reader produced because the
// buffer was empty.
func (rb *RingBuffer) Padded() uint64 {
	return rb.padded.Load()
}

// WritePCM queues as many samples as fit and drops the rest. It returns the
// number of samples queued. Only the producer may call it.
func (rb *RingBuffer) WritePCM(data []int16) int {
	tail := rb.tail.Load()
	free := rb.size - (tail - rb.head.Load())
	n := min(uint64(len(data)), free)

	for i := uint64(0); i < n; {
		at := (tail + i) % rb.size
		i += uint64(copy(rb.buf[at:], data[i:n]))
	}
	rb.tail.Store(tail + n)

	if rest := uint64(len(data)) - n; rest > 0 {
		rb.dropped.Add(rest)
	}
	return int(n)
}

// Write converts float samples in [-1, 1] to int16, clipping anything outside,
// and queues them like WritePCM. It does not allocate.
func (rb *RingBuffer) Write(samples []float64) int {
	tail := rb.tail.Load()
	free := rb.size - (tail - rb.head.Load())
	n := min(uint64(len(samples)), free)

	for i := uint64(0); i < n; i++ {
		rb.buf[(tail+i)%rb.size] = toPCM(samples[i])
	}
	rb.tail.Store(tail + n)

	if rest := uint64(len(samples)) - n; rest > 0 {
		rb.dropped.Add(rest)
	}
	return int(n)
}

// ReadSamples moves up to len(dst) queued samples into dst and returns the
// count. Only the consumer may call it.
func (rb *RingBuffer) ReadSamples(dst []int16) int {
	head := rb.head.Load()
	avail := rb.tail.Load() - head
	n := min(uint64(len(dst)), avail)

	for i := uint64(0); i < n; {
		at := (head + i) % rb.size
		end := min(rb.size, at+(n-i))
		i += uint64(copy(dst[i:n], rb.buf[at:end]))
	}
	rb.head.Store(head + n)
	return int(n)
}

// Read implements io.Reader for an audio player: it fills p completely with
// little-endian int16 samples, padding with silence when the buffer runs dry.
// It never returns an error and never blocks.
func (rb *RingBuffer) Read(p []byte) (int, error) {
	want := uint64(len(p) / 2)
	head := rb.head.Load()
	n := min(want, rb.tail.Load()-head)

	for i := uint64(0); i < n; i++ {
		v := rb.buf[(head+i)%rb.size]
		binary.LittleEndian.PutUint16(p[2*i:], uint16(v))
	}
	rb.head.Store(head + n)

	if n < want {
		clear(p[2*n : 2*want])
		rb.padded.Add(want - n)
	}
	return int(2 * want), nil
}

func toPCM(v float64) int16 {
	s := v * math.MaxInt16
	if s > math.MaxInt16 {
		s = math.MaxInt16
	} else if s < math.MinInt16 {
		s = math.MinInt16
	} else if s != s {
		s = 0
	}
	return int16(s)
}
