package autosave

import (
	"time"

	"github.com/zeusync/autosave/internal/core/events/bus"
)

const (
	// Topic is the bus topic save outcomes are published on.
	Topic = "autosave"

	EventCompleted = "autosave.completed"
	EventFailed    = "autosave.failed"

	eventSource = "autosaver"
)

// Report describes one completed save.
type Report struct {
	Generation string        `json:"generation"`
	Sequence   uint64        `json:"sequence"`
	StartedAt  time.Time     `json:"started_at"`
	DrainedAt  time.Time     `json:"drained_at"`
	SavedAt    time.Time     `json:"saved_at"`
	Changed    int           `json:"changed"`
	Removed    int           `json:"removed"`
	Destroyed  int           `json:"destroyed"`
	Entities   int           `json:"entities"`
	Bytes      int           `json:"bytes"`
	Checksum   string        `json:"checksum"`
	Path       string        `json:"path"`
	Duration   time.Duration `json:"duration"`
}

// Failure is the payload of EventFailed.
type Failure struct {
	Sequence uint64    `json:"sequence"`
	At       time.Time `json:"at"`
	Error    string    `json:"error"`
}

func newCompletedEvent(r Report) bus.Event {
	return bus.NewEvent(EventCompleted, eventSource, r)
}

func newFailedEvent(f Failure) bus.Event {
	return bus.NewEvent(EventFailed, eventSource, f)
}
