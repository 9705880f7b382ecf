// Package events implements the typed event channel every subsystem
// publishes onto (design note §9, spec §6 event surface): a fixed enum of
// variants with a fan-out broadcaster, replacing ad hoc listener hooks.
package events

import "time"

// Variant enumerates every event the orchestration core can emit. Keeping
// this a named Go type with declared constants (rather than a free-form
// string) gives every event a fixed tag that consumers switch on; the
// compiler does not check that such a switch covers every variant.
type Variant string

const (
	// Bus events (spec §4.B, §6)
	AgentRegistered    Variant = "agent:registered"
	AgentUnregistered  Variant = "agent:unregistered"
	MessageSent        Variant = "message:sent"
	MessageDelivered   Variant = "message:delivered"
	MessageFailed      Variant = "message:failed"
	MessageRetry       Variant = "message:retry"
	MessageExpired     Variant = "message:expired"
	MessageBroadcast   Variant = "message:broadcast"

	// Context events (spec §4.C, §6)
	ContextSet     Variant = "context:set"
	ContextGet     Variant = "context:get"
	ContextDeleted Variant = "context:delete"
	ContextShared  Variant = "context:shared"
	ContextExpired Variant = "context:expired"

	// Graph events (spec §4.D, §6)
	ExecutionStarted Variant = "execution:started"
	ExecutionDone    Variant = "execution:completed"
	ExecutionFailed  Variant = "execution:failed"
	NodeStarted      Variant = "node:started"
	NodeCompleted    Variant = "node:completed"
	NodeFailed       Variant = "node:failed"
	NodeRetry        Variant = "node:retry"
	NodeBlocked      Variant = "node:blocked"

	// Monitor events (spec §6)
	PipelineStarted    Variant = "pipeline:started"
	PipelineCompleted  Variant = "pipeline:completed"
	PipelineFailed     Variant = "pipeline:failed"
	BottleneckDetected Variant = "bottleneck:detected"

	// SLO events (spec §4.G, §6)
	SLOViolation  Variant = "violation"
	SLORegression Variant = "regression"
)

// Event is the payload carried across every subsystem's typed channel.
type Event struct {
	Variant Variant
	At      time.Time
	Data    map[string]any
}

// Bus is a minimal fan-out broadcaster: Publish never blocks the
// publisher — slow or absent subscribers simply miss events rather than
// stall the scheduler/bus/context store that produced them.
type Bus struct {
	subscribe   chan chan Event
	unsubscribe chan chan Event
	publish     chan Event
	done        chan struct{}
}

// NewBus starts a Bus's dispatch loop and returns it.
func NewBus() *Bus {
	b := &Bus{
		subscribe:   make(chan chan Event),
		unsubscribe: make(chan chan Event),
		publish:     make(chan Event, 256),
		done:        make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Bus) loop() {
	subscribers := make(map[chan Event]struct{})
	for {
		select {
		case ch := <-b.subscribe:
			subscribers[ch] = struct{}{}
		case ch := <-b.unsubscribe:
			delete(subscribers, ch)
			close(ch)
		case ev := <-b.publish:
			for ch := range subscribers {
				select {
				case ch <- ev:
				default:
					// Slow subscriber: drop rather than block publishers.
				}
			}
		case <-b.done:
			for ch := range subscribers {
				close(ch)
			}
			return
		}
	}
}

// Subscribe returns a channel that receives every subsequently published
// Event, buffered so a momentarily slow reader doesn't lose the very next
// event.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 64)
	select {
	case b.subscribe <- ch:
	case <-b.done:
	}
	return ch
}

// Unsubscribe stops delivering to ch and closes it.
func (b *Bus) Unsubscribe(ch chan Event) {
	select {
	case b.unsubscribe <- ch:
	case <-b.done:
	}
}

// Publish emits an event with the current time. Never blocks.
func (b *Bus) Publish(variant Variant, data map[string]any) {
	select {
	case b.publish <- Event{Variant: variant, At: time.Now(), Data: data}:
	case <-b.done:
	default:
		// Dispatch loop momentarily backed up; drop rather than block the
		// caller, which is almost always on a scheduling hot path.
	}
}

// Close stops the dispatch loop and closes every subscriber channel.
func (b *Bus) Close() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}
