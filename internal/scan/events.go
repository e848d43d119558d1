package scan

import (
	"adwatcher/internal/listing"
)

// Phase names the orchestrator's position in one scan cycle.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDiscovering Phase = "discovering"
	PhaseFetching    Phase = "fetching"
	PhaseCompleted   Phase = "completed"
	PhaseAborted     Phase = "aborted"
)

// EventType discriminates stream events.
type EventType string

const (
	// EventStatus carries out-of-band progress text.
	EventStatus EventType = "status"
	// EventRecord carries one enriched listing observation.
	EventRecord EventType = "record"
	// EventError reports a soft per-candidate failure or, together with a
	// terminal done event, a fatal one.
	EventError EventType = "error"
	// EventDone terminates the stream with the final phase.
	EventDone EventType = "done"
)

// Enriched is the engine's output record: the observation, how it relates to
// the stored state, and the summarized price trend.
type Enriched struct {
	Record  listing.Record  `json:"record"`
	Verdict listing.Verdict `json:"verdict"`
	Trend   string          `json:"trend"`
}

// Event is one element of a cycle's output stream. Exactly one EventDone is
// emitted per cycle, always last.
type Event struct {
	Type    EventType
	Message string
	Current int
	Total   int
	Record  *Enriched

	// Phase accompanies status events and, terminally, the done event.
	Phase Phase

	// Set on EventDone only.
	SoftFailures int
	Err          error
}
