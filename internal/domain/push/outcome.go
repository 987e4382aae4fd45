package push

import (
	"context"
	"time"
)

// Outcome summarizes one ping fan-out. It exists for logs and metrics only
// and is never returned to the caller that requested the ping.
type Outcome struct {
	Attempted     int
	Delivered     int
	InvalidTokens int
	Failed        int
	LookupFailed  bool
	Dropped       bool // never dispatched because the relay was saturated
	Duration      time.Duration
}

// Recorder receives the outcome of every fan-out.
type Recorder interface {
	RecordOutcome(ctx context.Context, o Outcome)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, o Outcome)

// RecordOutcome calls f.
func (f RecorderFunc) RecordOutcome(ctx context.Context, o Outcome) {
	f(ctx, o)
}
