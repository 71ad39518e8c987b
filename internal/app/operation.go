package app

import "time"

// Run records one CLI command invocation. Its ID tags every log line the
// command writes, and Close logs the outcome.
type Run struct {
	ID        string
	Command   string
	StartedAt time.Time
	Status    string // "success" or "error"
	Err       error
}

// NewRun creates a Run for command starting at now. The ID is the UTC start
// time, which sorts runs chronologically in the log.
func NewRun(command string, now time.Time) *Run {
	return &Run{
		ID:        now.UTC().Format("20060102T150405Z"),
		Command:   command,
		StartedAt: now,
		Status:    "success",
	}
}

// Fail marks the run as failed with err. A nil err is ignored.
func (r *Run) Fail(err error) {
	if err == nil {
		return
	}
	r.Status = "error"
	r.Err = err
}

// Failed reports whether Fail recorded an error.
func (r *Run) Failed() bool {
	return r.Err != nil
}
