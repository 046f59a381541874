package detect

import (
	"errors"
	"fmt"
	"math"
	"time"

	"bandwatch/internal/dsp"
)

var (
	ErrInvalidThreshold = errors.New("threshold must be a finite, non-negative RMS value")
	ErrInvalidDebounce  = errors.New("debounce must not be negative")
)

// Config holds the fixed trigger parameters of a Detector.
type Config struct {
	Band      dsp.Band
	Threshold float64
	Debounce  time.Duration
}

// Validate checks threshold and debounce.
func (c Config) Validate() error {
	if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) || c.Threshold < 0 {
		return fmt.Errorf("%w: %g", ErrInvalidThreshold, c.Threshold)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidDebounce, c.Debounce)
	}
	return nil
}

// State is everything the detector remembers between blocks. The zero value
// is eligible to fire immediately.
type State struct {
	// LastEvent is the end of the block that produced the last event.
	LastEvent time.Time
}

// Eligible reports whether a block starting at now lies outside the debounce
// window of the last event.
func (s State) Eligible(now time.Time, debounce time.Duration) bool {
	return s.LastEvent.IsZero() || now.Sub(s.LastEvent) > debounce
}

// Event is a debounced threshold crossing of the band envelope.
type Event struct {
	// Seq numbers events of one run starting at 1. The detector leaves it zero.
	Seq  uint64
	Time time.Time
	Span time.Duration
	Band dsp.Band
	RMS  float64
}

func (e Event) String() string {
	return fmt.Sprintf("#%d %s rms=%.4f at %s", e.Seq, e.Band, e.RMS, e.Time.Format("15:04:05.000"))
}

// Detector turns filtered blocks into envelope values and events. Its only
// mutable part is an RMS scratch buffer, so one Detector must not be shared
// between goroutines; the trigger state is passed in and returned by Evaluate.
type Detector struct {
	cfg    Config
	energy *dsp.Energy
}

// New returns a Detector that evaluates blocks of up to maxBlock samples
// without allocating.
func New(cfg Config, maxBlock int) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		cfg:    cfg,
		energy: dsp.NewEnergy(maxBlock),
	}, nil
}

// Config returns the trigger parameters.
func (d *Detector) Config() Config {
	return d.cfg
}

// Evaluate computes the RMS of block and decides whether it triggers. now is
// the capture time of the first sample of block. When the block triggers, the
// returned state records the end of the block as the last event time and ok
// is true; otherwise st is returned as is.
func (d *Detector) Evaluate(block dsp.Block, st State, now time.Time) (rms float64, next State, ev Event, ok bool) {
	rms = d.energy.RMS(block.Samples)
	if !(rms > d.cfg.Threshold) || !st.Eligible(now, d.cfg.Debounce) {
		return rms, st, Event{}, false
	}

	span := block.Duration()
	ev = Event{
		Time: now,
		Span: span,
		Band: d.cfg.Band,
		RMS:  rms,
	}
	return rms, State{LastEvent: now.Add(span)}, ev, true
}
