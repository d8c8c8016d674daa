// Package eventstest provides an in-memory events.Publisher for tests.
package eventstest

import (
	"context"
	"sync"

	"blogfeed/events"
)

// Recorder keeps published events in memory. A non-nil Err makes every
// Publish fail without recording.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
	Err    error
}

var _ events.Publisher = (*Recorder)(nil)

func (r *Recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}
