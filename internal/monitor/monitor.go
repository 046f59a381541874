// Package monitor plays the filtered band on the default audio output.
package monitor

import (
	"fmt"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"

	"bandwatch/internal/ringbuffer"
)

// Monitor owns an oto player reading from a ring buffer. The processing side
// writes into Ring; the player drains it on its own goroutine and plays
// silence whenever the ring is empty.
type Monitor struct {
	Ring   *ringbuffer.RingBuffer
	player *oto.Player
}

// BufferFor returns a ring size holding d of audio at rate.
func BufferFor(rate int, d time.Duration) int {
	return max(int(math.Round(d.Seconds()*float64(rate))), 1)
}

// Start opens the audio device at rate Hz mono and starts playback from a
// ring holding latency worth of samples. oto allows only one context per
// process, so Start must not be called twice.
func Start(rate int, latency time.Duration) (*Monitor, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   latency,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio output: %w", err)
	}
	<-ready

	ring := ringbuffer.New(BufferFor(rate, 2*latency))
	player := ctx.NewPlayer(ring)
	player.Play()

	return &Monitor{Ring: ring, player: player}, nil
}

// Write queues filtered samples for playback without blocking.
func (m *Monitor) Write(samples []float64) int {
	return m.Ring.Write(samples)
}

// Dropped returns how many samples did not fit into the ring.
func (m *Monitor) Dropped() uint64 {
	return m.Ring.Dropped()
}

// Close stops playback.
func (m *Monitor) Close() error {
	m.player.Pause()
	return m.player.Close()
}
