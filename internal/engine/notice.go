package engine

import (
	"errors"
	"fmt"
	"time"

	"bandwatch/internal/dsp"
)

var (
	ErrStopped = errors.New("engine stopped")
	ErrBusy    = errors.New("engine is processing another block")

	ErrSampleRate     = errors.New("block sample rate differs from the configured rate")
	ErrChannel        = errors.New("block channel differs from the configured channel")
	ErrBlockTooLarge  = errors.New("block exceeds the configured block size")
	ErrTimeOutOfOrder = errors.New("block timestamp precedes the previous block")
)

// NoticeKind classifies a Notice.
type NoticeKind uint8

const (
	NoticeStreamFault NoticeKind = iota + 1
	NoticeProcessingFault
	NoticeDeadlineMiss
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeStreamFault:
		return "stream fault"
	case NoticeProcessingFault:
		return "processing fault"
	case NoticeDeadlineMiss:
		return "deadline miss"
	default:
		return fmt.Sprintf("notice(%d)", uint8(k))
	}
}

// Notice is a non-fatal condition raised while processing a block. It is a
// plain value so the processing path can queue it without allocating.
type Notice struct {
	Kind   NoticeKind
	At     time.Time
	Status dsp.Status
	Took   time.Duration
	Budget time.Duration
	Cause  error
}

// Err returns the notice as one of StreamFault, ProcessingFault or DeadlineMiss.
func (n Notice) Err() error {
	switch n.Kind {
	case NoticeStreamFault:
		return &StreamFault{At: n.At, Status: n.Status}
	case NoticeProcessingFault:
		return &ProcessingFault{At: n.At, Err: n.Cause}
	case NoticeDeadlineMiss:
		return &DeadlineMiss{At: n.At, Took: n.Took, Budget: n.Budget}
	default:
		return fmt.Errorf("unknown notice %v", n.Kind)
	}
}

// StreamFault is an overrun or underrun reported by the audio source. The
// block is still processed.
type StreamFault struct {
	At     time.Time
	Status dsp.Status
}

func (e *StreamFault) Error() string {
	return fmt.Sprintf("stream fault at %s: %v", e.At.Format(time.RFC3339Nano), e.Status)
}

// ProcessingFault means a block was dropped without touching any state.
type ProcessingFault struct {
	At  time.Time
	Err error
}

func (e *ProcessingFault) Error() string {
	return fmt.Sprintf("block at %s dropped: %v", e.At.Format(time.RFC3339Nano), e.Err)
}

func (e *ProcessingFault) Unwrap() error {
	return e.Err
}

// DeadlineMiss means processing a block took longer than the block lasts.
type DeadlineMiss struct {
	At     time.Time
	Took   time.Duration
	Budget time.Duration
}

func (e *DeadlineMiss) Error() string {
	return fmt.Sprintf("block at %s took %v of a %v budget", e.At.Format(time.RFC3339Nano), e.Took, e.Budget)
}
