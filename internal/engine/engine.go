// Package engine runs the real-time chain: band-pass filter, envelope and
// event detector and history buffers. Blocks are pushed in with Feed; results
// leave through bounded channels and lock-free history snapshots, so nothing
// on the processing path waits on a consumer.
package engine

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"bandwatch/internal/detect"
	"bandwatch/internal/dsp"
	"bandwatch/internal/history"
)

// HistorySource selects which samples go into the sample history.
type HistorySource uint8

const (
	HistoryFiltered HistorySource = iota
	HistoryRaw
)

func (h HistorySource) String() string {
	if h == HistoryRaw {
		return "raw"
	}
	return "filtered"
}

// Config holds the fixed parameters of one run.
type Config struct {
	SampleRate    int
	BlockSize     int
	Channel       int
	Band          dsp.Band
	Order         int
	Threshold     float64
	Debounce      time.Duration
	Display       time.Duration
	HistorySource HistorySource
	EventQueue    int
	NoticeQueue   int
}

// Tap receives every filtered block, e.g. to play the band back. Write must
// not block.
type Tap interface {
	Write(samples []float64) int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithTap sends filtered blocks to t.
func WithTap(t Tap) Option {
	return func(e *Engine) { e.tap = t }
}

// WithClock replaces the clock used to measure processing time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

// Result describes one processed block.
type Result struct {
	RMS   float64
	Event detect.Event
	Fired bool
	Took  time.Duration
	// Fault is set when the block was dropped.
	Fault error
}

const (
	phaseIdle int32 = iota
	phaseBusy
	phaseStopped
)

// Engine owns all mutable processing state. Feed must be called from one
// goroutine at a time; every other method is safe for concurrent use.
type Engine struct {
	cfg    Config
	filter dsp.Description
	det    *detect.Detector
	tap    Tap
	clock  func() time.Time

	cur, next dsp.State
	dstate    detect.State
	out       []float64
	origin    time.Time
	last      time.Time
	seq       uint64

	samples  *history.Buffer
	envelope *history.Buffer

	events  chan detect.Event
	notices chan Notice
	phase   atomic.Int32
	stats   counters
}

// New designs the filter and allocates everything the processing path needs.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", cfg.BlockSize)
	}
	if cfg.Display <= 0 {
		return nil, fmt.Errorf("display duration must be positive, got %v", cfg.Display)
	}

	filter, err := dsp.DesignBandpass(cfg.Band, float64(cfg.SampleRate), cfg.Order)
	if err != nil {
		return nil, err
	}
	det, err := detect.New(detect.Config{
		Band:      cfg.Band,
		Threshold: cfg.Threshold,
		Debounce:  cfg.Debounce,
	}, cfg.BlockSize)
	if err != nil {
		return nil, err
	}

	rate := float64(cfg.SampleRate)
	e := &Engine{
		cfg:      cfg,
		filter:   filter,
		det:      det,
		clock:    time.Now,
		cur:      dsp.NewState(filter),
		next:     dsp.NewState(filter),
		out:      make([]float64, cfg.BlockSize),
		samples:  history.New(history.Capacity(cfg.Display, rate)),
		envelope: history.New(history.Capacity(cfg.Display, rate/float64(cfg.BlockSize))),
		events:   make(chan detect.Event, max(cfg.EventQueue, 1)),
		notices:  make(chan Notice, max(cfg.NoticeQueue, 1)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the run parameters.
func (e *Engine) Config() Config {
	return e.cfg
}

// Filter returns the designed cascade.
func (e *Engine) Filter() dsp.Description {
	return e.filter
}

// Events delivers detected events in order. It is closed by Stop.
func (e *Engine) Events() <-chan detect.Event {
	return e.events
}

// Notices delivers faults and deadline misses. It is closed by Stop.
func (e *Engine) Notices() <-chan Notice {
	return e.notices
}

// SampleHistory returns the read side of the sample history.
func (e *Engine) SampleHistory() history.Reader {
	return e.samples
}

// EnvelopeHistory returns the read side of the envelope history.
func (e *Engine) EnvelopeHistory() history.Reader {
	return e.envelope
}

// Feed processes one block whose first sample was captured at now. It returns
// ErrStopped after Stop and ErrBusy when another Feed is in flight; in both
// cases nothing is touched. A block that cannot be processed is dropped with
// the fault in Result.Fault and a notice, leaving all state as it was.
func (e *Engine) Feed(block dsp.Block, now time.Time) (Result, error) {
	if !e.phase.CompareAndSwap(phaseIdle, phaseBusy) {
		if e.phase.Load() == phaseStopped {
			return Result{}, ErrStopped
		}
		return Result{}, ErrBusy
	}
	defer e.phase.Store(phaseIdle)

	began := e.clock()

	if block.Status != 0 {
		e.stats.streamFaults.Add(1)
		e.notify(Notice{Kind: NoticeStreamFault, At: now, Status: block.Status})
	}

	if err := e.check(block, now); err != nil {
		return e.drop(now, err), nil
	}

	n := len(block.Samples)
	if n == 0 {
		return Result{}, nil
	}

	out := e.out[:n]
	if err := e.filter.ProcessInto(out, block.Samples, e.cur, e.next); err != nil {
		return e.drop(now, err), nil
	}
	e.cur, e.next = e.next, e.cur

	filtered := dsp.Block{Samples: out, Channel: block.Channel, SampleRate: block.SampleRate}
	rms, dstate, ev, fired := e.det.Evaluate(filtered, e.dstate, now)
	e.dstate = dstate

	if e.origin.IsZero() {
		e.origin = now
	}
	e.last = now
	at := now.Sub(e.origin)

	recorded := out
	if e.cfg.HistorySource == HistoryRaw {
		recorded = block.Samples
	}
	for i, v := range recorded {
		e.samples.Append(at+dsp.SamplesDuration(i, e.cfg.SampleRate), v)
	}
	e.envelope.Append(at, rms)

	if e.tap != nil {
		e.tap.Write(out)
	}

	if fired {
		e.seq++
		ev.Seq = e.seq
		e.stats.events.Add(1)
		select {
		case e.events <- ev:
		default:
			e.stats.eventsDropped.Add(1)
		}
	}

	e.stats.blocks.Add(1)
	e.stats.samples.Add(uint64(n))

	took := e.clock().Sub(began)
	if budget := block.Duration(); took > budget {
		e.stats.deadlineMisses.Add(1)
		e.notify(Notice{Kind: NoticeDeadlineMiss, At: now, Took: took, Budget: budget})
	}

	return Result{RMS: rms, Event: ev, Fired: fired, Took: took}, nil
}

func (e *Engine) check(block dsp.Block, now time.Time) error {
	switch {
	case block.SampleRate != e.cfg.SampleRate:
		return ErrSampleRate
	case block.Channel != e.cfg.Channel:
		return ErrChannel
	case len(block.Samples) > e.cfg.BlockSize:
		return ErrBlockTooLarge
	case !e.last.IsZero() && now.Before(e.last):
		return ErrTimeOutOfOrder
	}
	return nil
}

func (e *Engine) drop(now time.Time, err error) Result {
	e.stats.processingFaults.Add(1)
	e.notify(Notice{Kind: NoticeProcessingFault, At: now, Cause: err})
	return Result{Fault: &ProcessingFault{At: now, Err: err}}
}

func (e *Engine) notify(n Notice) {
	select {
	case e.notices <- n:
	default:
		e.stats.noticesDropped.Add(1)
	}
}

// Stop waits for an in-flight Feed to finish, then refuses any further
// blocks and closes the event and notice channels. History stays readable.
// Stop may be called more than once and from any goroutine.
func (e *Engine) Stop() {
	for !e.phase.CompareAndSwap(phaseIdle, phaseStopped) {
		if e.phase.Load() == phaseStopped {
			return
		}
		runtime.Gosched()
	}
	close(e.events)
	close(e.notices)
}

// Stopped reports whether Stop has completed.
func (e *Engine) Stopped() bool {
	return e.phase.Load() == phaseStopped
}

// Snapshot is a copy of both histories and the counters at one moment.
type Snapshot struct {
	Samples  []history.Point
	Envelope []history.Point
	Stats    Stats
}

// Snapshot copies both histories. It never blocks Feed.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Samples:  e.samples.Snapshot(nil),
		Envelope: e.envelope.Snapshot(nil),
		Stats:    e.Stats(),
	}
}
