package ui

import "time"

// EventType classifies campaign events for the UI.
type EventType int

const (
	EvtInfo EventType = iota
	EvtWarning
	EvtAttempt
	EvtLocked
	EvtProgress
	EvtCracked
	EvtDone
)

// Event is a single event emitted by the campaign to the UI.
type Event struct {
	Type  EventType
	Msg   string // for EvtInfo/EvtWarning/EvtLocked
	PIN   string // for EvtAttempt/EvtCracked
	Stats Stats  // for EvtProgress
	Time  time.Time
}

// Stats is the periodic progress snapshot.
type Stats struct {
	Tested        int
	Total         int
	Attempts      int // rejected candidates this run
	Progress      float64
	Elapsed       time.Duration
	SecondsPerPin float64
	KeyStatus     string
	MAC           string
}

// Mode selects the UI output mode.
type Mode int

const (
	ModeTUI    Mode = iota // full bubbletea interactive
	ModeText               // line-oriented status lines
	ModeSilent             // no terminal output
)
