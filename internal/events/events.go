// Package events provides best-effort event publication for constructs.
//
// Events run only after an invocation reaches a success state (and, when a
// transaction was used, after commit). Publication never participates in
// the transaction: failures are logged and swallowed, they cannot
// invalidate an already-committed response.
package events

import "context"

// Event is one published event.
type Event struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// Rule declares an event a construct publishes on success. Either Static
// carries a fixed payload, or Payload derives one from the handler output.
type Rule struct {
	Topic string

	// Static is published as-is when Payload is nil.
	Static any

	// Payload derives the event payload from the validated handler output.
	Payload func(out any) any
}

// Eval produces the event for a given handler output.
func (r Rule) Eval(out any) Event {
	if r.Payload != nil {
		return Event{Topic: r.Topic, Payload: r.Payload(out)}
	}
	return Event{Topic: r.Topic, Payload: r.Static}
}

// Publisher delivers events, best-effort.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function into a Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error {
	return f(ctx, e)
}
