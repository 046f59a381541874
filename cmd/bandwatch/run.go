package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/echocat/slf4g"
	"github.com/google/uuid"

	"bandwatch/internal/config"
	"bandwatch/internal/engine"
	"bandwatch/internal/monitor"
	"bandwatch/internal/source"
	"bandwatch/internal/ui"
)

type closingSource interface {
	engine.Source
	Close() error
}

func (this *app) run() error {
	c, err := this.configuration()
	if err != nil {
		return err
	}

	restore, err := this.redirectLogs(c.Viewer.Enabled)
	if err != nil {
		return err
	}
	defer restore()

	runID := uuid.New().String()
	lg := log.With("run", runID)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	src, describe, err := openSource(c)
	if err != nil {
		return err
	}
	defer func() {
		if cs, ok := src.(closingSource); ok {
			if err := cs.Close(); err != nil {
				lg.WithError(err).Warn("Cannot close source.")
			}
		}
	}()

	var opts []engine.Option
	var mon *monitor.Monitor
	if c.Monitor.Enabled {
		if mon, err = monitor.Start(c.SampleRate, c.Monitor.Latency); err != nil {
			return err
		}
		defer func() { _ = mon.Close() }()
		opts = append(opts, engine.WithTap(mon))
	}

	e, err := engine.New(c.Engine(), opts...)
	if err != nil {
		return err
	}

	lg.With("band", c.Band.String()).
		With("order", c.Order).
		With("sections", e.Filter().Len()).
		With("sampleRate", c.SampleRate).
		With("blockSize", c.BlockSize).
		With("threshold", c.Threshold).
		With("debounce", c.Debounce).
		With("source", describe).
		Info("Watching band.")

	var program *tea.Program
	if c.Viewer.Enabled {
		program = tea.NewProgram(ui.NewModel(e, ui.Settings{
			Band:      c.Band,
			Threshold: c.Threshold,
			Display:   c.Display,
			Refresh:   c.Viewer.Refresh,
			Source:    describe,
			RunID:     runID[:8],
		}), tea.WithAltScreen())
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		consume(lg, e, program)
	}()

	driveErr := make(chan error, 1)
	go func() {
		err := engine.Drive(ctx, e, src)
		e.Stop()
		if program != nil {
			program.Send(ui.DoneMsg{Err: err})
		}
		driveErr <- err
	}()

	if program != nil {
		if _, err := program.Run(); err != nil {
			lg.WithError(err).Warn("Viewer failed.")
		}
		cancel()
	}

	err = <-driveErr
	wg.Wait()

	st := e.Stats()
	lg.With("blocks", st.Blocks).
		With("samples", st.Samples).
		With("events", st.Events).
		With("eventsDropped", st.EventsDropped).
		With("streamFaults", st.StreamFaults).
		With("processingFaults", st.ProcessingFaults).
		With("deadlineMisses", st.DeadlineMisses).
		With("noticesDropped", st.NoticesDropped).
		Info("Stopped.")
	if mon != nil {
		lg.With("dropped", mon.Dropped()).
			Debug("Monitor statistics.")
	}

	return err
}

// consume logs events and notices until the engine closes both channels and
// forwards them to the viewer when there is one.
func consume(lg log.Logger, e *engine.Engine, program *tea.Program) {
	events, notices := e.Events(), e.Notices()
	for events != nil || notices != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			lg.With("seq", ev.Seq).
				With("at", ev.Time.Format(time.RFC3339Nano)).
				With("band", ev.Band.String()).
				With("rms", fmt.Sprintf("%.5f", ev.RMS)).
				Info("Band event.")
			if program != nil {
				program.Send(ui.EventMsg(ev))
			}
		case n, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			lg.WithError(n.Err()).
				With("kind", n.Kind).
				Warn("Processing notice.")
			if program != nil {
				program.Send(ui.NoticeMsg(n))
			}
		}
	}
}

func openSource(c config.Config) (engine.Source, string, error) {
	switch c.Source.Kind {
	case config.SourceWAV:
		w, err := source.OpenWAV(c.Source.File, c.Channel, c.SampleRate)
		if err != nil {
			return nil, "", err
		}
		describe := fmt.Sprintf("wav %s", c.Source.File)
		if f := w.Decimation(); f > 1 {
			describe += fmt.Sprintf(" (%d Hz / %d)", w.FileSampleRate(), f)
		}
		return w, describe, nil
	case config.SourceTone:
		t, err := source.NewTone(c.ToneSource())
		if err != nil {
			return nil, "", err
		}
		describe := fmt.Sprintf("tone %g Hz", c.Source.Tone.Frequency)
		if c.Source.Tone.Off > 0 {
			describe += fmt.Sprintf(" bursts %v/%v", c.Source.Tone.On, c.Source.Tone.Off)
		}
		return t, describe, nil
	default:
		return nil, "", errors.New("no source configured")
	}
}
