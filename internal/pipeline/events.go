package pipeline

import "tonearm/internal/analysis"

// EventKind discriminates the messages on a run's event stream.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventResult   EventKind = "result"
	EventError    EventKind = "error"
)

// Progress is the payload of one progress event.
type Progress struct {
	Phase    string  `json:"phase"`
	Fraction float64 `json:"progress"`
	Detail   string  `json:"detail,omitempty"`
}

// Event is one message on a run's event stream. Exactly one payload field is
// populated, selected by Kind.
type Event struct {
	Kind     EventKind
	Progress *Progress
	Result   *analysis.AudioAnalysis
	Message  string
}

func progressEvent(payload Progress) Event {
	return Event{Kind: EventProgress, Progress: &payload}
}

func resultEvent(record *analysis.AudioAnalysis) Event {
	return Event{Kind: EventResult, Result: record}
}

func errorEvent(message string) Event {
	return Event{Kind: EventError, Message: message}
}
