package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"bandwatch/internal/dsp"
)

// Source supplies blocks of mono samples. Read fills a prefix of dst and
// returns it as a block; io.EOF ends the stream.
type Source interface {
	Read(dst []float64) (dsp.Block, error)
}

// lagBlocks is how many block durations the driver may fall behind real time
// before it flags the block as an input overflow.
const lagBlocks = 2

type driveOptions struct {
	paced bool
	start time.Time
	now   func() time.Time
}

// DriveOption customizes Drive.
type DriveOption func(*driveOptions)

// Unpaced feeds blocks as fast as the source delivers them. Timestamps still
// advance by the block duration.
func Unpaced() DriveOption {
	return func(o *driveOptions) { o.paced = false }
}

// StartAt sets the capture time of the first sample.
func StartAt(t time.Time) DriveOption {
	return func(o *driveOptions) { o.start = t }
}

func withClock(now func() time.Time) DriveOption {
	return func(o *driveOptions) { o.now = now }
}

// Drive reads blocks from src and feeds them to e until the source ends, the
// context is cancelled or the engine is stopped. By default it releases one
// block per block duration, like an audio device would, and runs on a locked
// OS thread.
func Drive(ctx context.Context, e *Engine, src Source, opts ...DriveOption) error {
	o := driveOptions{paced: true, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.start.IsZero() {
		o.start = o.now()
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	rate := e.cfg.SampleRate
	period := dsp.SamplesDuration(e.cfg.BlockSize, rate)
	buf := make([]float64, e.cfg.BlockSize)

	var tick <-chan time.Time
	if o.paced {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}

	var pos int
	for {
		if o.paced {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		block, err := src.Read(buf)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}

		now := o.start.Add(dsp.SamplesDuration(pos, rate))
		pos += block.Len()
		if o.paced {
			due := now.Add(block.Duration())
			if o.now().Sub(due) > lagBlocks*period {
				block.Status |= dsp.StatusInputOverflow
			}
		}

		if _, err := e.Feed(block, now); err != nil {
			if errors.Is(err, ErrStopped) {
				return nil
			}
			return err
		}
	}
}
