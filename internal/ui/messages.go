package ui

import (
	"time"

	"bandwatch/internal/detect"
	"bandwatch/internal/engine"
)

// tickMsg asks the model to pull a new snapshot
type tickMsg time.Time

// EventMsg carries one detected event from the engine
type EventMsg detect.Event

// NoticeMsg carries a fault or deadline miss from the engine
type NoticeMsg engine.Notice

// DoneMsg indicates the audio source has ended or failed
type DoneMsg struct {
	Err error
}
