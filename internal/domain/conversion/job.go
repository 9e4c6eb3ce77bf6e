package conversion

import (
	"encoding/json"
	"time"
)

// Status describes where a conversion job is in its lifecycle.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Job is one playlist-to-file conversion request.
type Job struct {
	ID         string
	Status     Status
	OutputPath string
	CreatedAt  time.Time
	Progress   int
	Error      string
}

const (
	channelPrefix = "file-conversion-"

	// ProgressEventName is the event name clients bind to on a job channel.
	ProgressEventName = "progress"

	// ErrorSentinel replaces the percentage when a conversion fails.
	ErrorSentinel = "error"
)

// ChannelName returns the real-time channel a job publishes progress on.
func ChannelName(jobID string) string {
	return channelPrefix + jobID
}

// ProgressEvent is a single progress report for a job.
type ProgressEvent struct {
	JobID   string
	Percent int
	Failed  bool
}

// Payload returns the wire payload for the event.
func (e ProgressEvent) Payload() ProgressPayload {
	return ProgressPayload{Percent: e.Percent, Failed: e.Failed}
}

// ProgressPayload is sent to subscribers as {"progress": <int>|"error"}.
type ProgressPayload struct {
	Percent int
	Failed  bool
}

// MarshalJSON keeps the sentinel a string so clients can tell it from a percentage.
func (p ProgressPayload) MarshalJSON() ([]byte, error) {
	if p.Failed {
		return json.Marshal(map[string]string{"progress": ErrorSentinel})
	}
	return json.Marshal(map[string]int{"progress": p.Percent})
}
