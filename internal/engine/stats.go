package engine

import "sync/atomic"

// Stats are lifetime counters of an Engine.
type Stats struct {
	Blocks           uint64
	Samples          uint64
	Events           uint64
	EventsDropped    uint64
	NoticesDropped   uint64
	StreamFaults     uint64
	ProcessingFaults uint64
	DeadlineMisses   uint64
}

type counters struct {
	blocks           atomic.Uint64
	samples          atomic.Uint64
	events           atomic.Uint64
	eventsDropped    atomic.Uint64
	noticesDropped   atomic.Uint64
	streamFaults     atomic.Uint64
	processingFaults atomic.Uint64
	deadlineMisses   atomic.Uint64
}

// Stats returns the current counters.
func (e *Engine) Stats() Stats {
	c := &e.stats
	return Stats{
		Blocks:           c.blocks.Load(),
		Samples:          c.samples.Load(),
		Events:           c.events.Load(),
		EventsDropped:    c.eventsDropped.Load(),
		NoticesDropped:   c.noticesDropped.Load(),
		StreamFaults:     c.streamFaults.Load(),
		ProcessingFaults: c.processingFaults.Load(),
		DeadlineMisses:   c.deadlineMisses.Load(),
	}
}
