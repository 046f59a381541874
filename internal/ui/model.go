// Package ui provides the Bubbletea terminal viewer for bandwatch
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"bandwatch/internal/detect"
	"bandwatch/internal/dsp"
	"bandwatch/internal/engine"
	"bandwatch/internal/history"
)

// keptEvents is how many recent events the viewer lists
const keptEvents = 6

// Snapshotter is the part of the engine the viewer reads
type Snapshotter interface {
	Snapshot() engine.Snapshot
}

// Settings are the static facts the viewer displays
type Settings struct {
	Band      dsp.Band
	Threshold float64
	Display   time.Duration
	Refresh   time.Duration
	Source    string
	RunID     string
}

// Model is the Bubbletea model for the live view
type Model struct {
	Settings Settings
	Engine   Snapshotter

	Samples  []history.Point
	Envelope []history.Point
	Stats    engine.Stats

	Events     []detect.Event
	LastNotice *engine.Notice
	Notices    int

	StartTime time.Time
	Done      bool
	Err       error

	// Terminal dimensions
	Width  int
	Height int
}

// NewModel creates a viewer pulling snapshots from e
func NewModel(e Snapshotter, settings Settings) Model {
	if settings.Refresh <= 0 {
		settings.Refresh = 200 * time.Millisecond
	}
	return Model{
		Settings:  settings,
		Engine:    e,
		StartTime: time.Now(),
	}
}

// Init starts the refresh timer
func (m Model) Init() tea.Cmd {
	return tick(m.Settings.Refresh)
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case tickMsg:
		m = m.refresh()
		return m, tick(m.Settings.Refresh)

	case EventMsg:
		m.Events = append(m.Events, detect.Event(msg))
		if len(m.Events) > keptEvents {
			m.Events = m.Events[len(m.Events)-keptEvents:]
		}

	case NoticeMsg:
		n := engine.Notice(msg)
		m.LastNotice = &n
		m.Notices++

	case DoneMsg:
		m.Done = true
		m.Err = msg.Err
		m = m.refresh()
	}

	return m, nil
}

func (m Model) refresh() Model {
	if m.Engine == nil {
		return m
	}
	snap := m.Engine.Snapshot()
	m.Samples = snap.Samples
	m.Envelope = snap.Envelope
	m.Stats = snap.Stats
	return m
}

// View renders the UI
func (m Model) View() string {
	if m.Width == 0 {
		return "Initializing...\n"
	}
	return renderView(m)
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
