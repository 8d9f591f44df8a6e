package events

import (
	"context"
	"expvar"
	"log"

	"hospitalops/queue-service/internal/queue"
)

var (
	eventsDelivered = expvar.NewInt("transition_events_delivered")
	eventsDropped   = expvar.NewInt("transition_events_dropped")
)

// Sink consumes committed transition events off the request path.
type Sink interface {
	Handle(ctx context.Context, event queue.TransitionEvent) error
}

// Outbox decouples the engine from its sinks. Record never blocks: when the
// buffer is full the event is dropped and counted, because a slow sink must
// not stall a queue transition.
type Outbox struct {
	events chan queue.TransitionEvent
	sinks  []Sink
}

func NewOutbox(buffer int, sinks ...Sink) *Outbox {
	if buffer <= 0 {
		buffer = 256
	}
	return &Outbox{
		events: make(chan queue.TransitionEvent, buffer),
		sinks:  sinks,
	}
}

func (o *Outbox) Record(event queue.TransitionEvent) {
	select {
	case o.events <- event:
	default:
		eventsDropped.Add(1)
	}
}

// Run delivers buffered events to every sink until ctx is cancelled. Sink
// errors are logged and the event is abandoned; sinks own their own retries.
func (o *Outbox) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-o.events:
			for _, sink := range o.sinks {
				if err := sink.Handle(ctx, event); err != nil {
					log.Printf("event sink error ticket=%s to=%s: %v", event.TicketID, event.To, err)
					continue
				}
			}
			eventsDelivered.Add(1)
		}
	}
}
