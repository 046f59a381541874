package source

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"bandwatch/internal/dsp"
)

// ToneConfig describes a synthetic sine source.
type ToneConfig struct {
	SampleRate int
	Channel    int
	Frequency  float64
	Amplitude  float64
	// On and Off describe an optional burst pattern. With Off zero the tone
	// is continuous.
	On  time.Duration
	Off time.Duration
	// Length ends the stream after this much audio. Zero runs forever.
	Length time.Duration
}

// Tone generates a sine wave block by block. The phase runs on through
// silent parts of a burst pattern, so every burst is a slice of one
// continuous oscillator.
type Tone struct {
	cfg    ToneConfig
	step   float64
	phase  float64
	pos    int64
	on     int64
	period int64
	total  int64
}

// NewTone validates cfg and returns a Tone positioned at sample 0.
func NewTone(cfg ToneConfig) (*Tone, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("tone: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if !(cfg.Frequency >= 0) || cfg.Frequency >= float64(cfg.SampleRate)/2 {
		return nil, fmt.Errorf("tone: frequency %g Hz outside [0, %g)", cfg.Frequency, float64(cfg.SampleRate)/2)
	}
	if math.IsNaN(cfg.Amplitude) || math.IsInf(cfg.Amplitude, 0) {
		return nil, errors.New("tone: amplitude must be finite")
	}
	if cfg.On < 0 || cfg.Off < 0 || cfg.Length < 0 {
		return nil, errors.New("tone: durations must not be negative")
	}

	t := &Tone{
		cfg:   cfg,
		step:  2 * math.Pi * cfg.Frequency / float64(cfg.SampleRate),
		total: -1,
	}
	if cfg.Off > 0 {
		t.on = samples(cfg.On, cfg.SampleRate)
		t.period = t.on + samples(cfg.Off, cfg.SampleRate)
	}
	if cfg.Length > 0 {
		t.total = samples(cfg.Length, cfg.SampleRate)
	}
	return t, nil
}

func samples(d time.Duration, rate int) int64 {
	return int64(math.Round(d.Seconds() * float64(rate)))
}

// SampleRate returns the configured rate.
func (t *Tone) SampleRate() int {
	return t.cfg.SampleRate
}

// Read fills dst with the next samples. The last block of a finite tone may be
// short; after it Read returns io.EOF.
func (t *Tone) Read(dst []float64) (dsp.Block, error) {
	n := int64(len(dst))
	if t.total >= 0 {
		n = min(n, t.total-t.pos)
		if n <= 0 {
			return dsp.Block{}, io.EOF
		}
	}

	out := dst[:n]
	for i := range out {
		v := 0.0
		if t.period == 0 || (t.pos+int64(i))%t.period < t.on {
			v = t.cfg.Amplitude * math.Sin(t.phase)
		}
		out[i] = v
		t.phase += t.step
		if t.phase >= 2*math.Pi {
			t.phase -= 2 * math.Pi
		}
	}
	t.pos += n

	return dsp.Block{
		Samples:    out,
		Channel:    t.cfg.Channel,
		SampleRate: t.cfg.SampleRate,
	}, nil
}
