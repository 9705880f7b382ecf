package bus

import (
	"context"
	"time"

	"github.com/R3E-Network/pipeline-orchestrator/domain/messaging"
	"github.com/R3E-Network/pipeline-orchestrator/engine/events"
	"github.com/R3E-Network/pipeline-orchestrator/obsmetrics"
)

// scheduleDelivery starts a delivery pass for state if none is already
// running; otherwise it marks that the running pass should re-check the
// queue once more before giving up the delivery lock (spec §4.B: "at most
// one delivery pass runs per agent at a time ... new enqueues await its
// completion and then re-check the queue").
func (b *Bus) scheduleDelivery(state *agentState) {
	state.mu.Lock()
	if state.running {
		state.pending = true
		state.mu.Unlock()
		return
	}
	state.running = true
	state.mu.Unlock()

	go b.deliveryLoop(state)
}

func (b *Bus) deliveryLoop(state *agentState) {
	for {
		b.deliverOnce(state)

		state.mu.Lock()
		if state.pending {
			state.pending = false
			state.mu.Unlock()
			continue
		}
		state.running = false
		state.mu.Unlock()
		return
	}
}

// deliverOnce drains every non-expired envelope currently queued for
// state, calling the registered handler for each in priority order. This
// is the single in-flight pass per agent that gives handler authors
// single-threaded semantics for their agent's state (spec §5).
func (b *Bus) deliverOnce(state *agentState) {
	now := time.Now()

	for {
		state.mu.Lock()
		if len(state.queue) == 0 {
			state.mu.Unlock()
			return
		}
		env := state.queue[0]
		if env.Expired(now) {
			state.queue = removeEnvelope(state.queue, 0)
			state.mu.Unlock()
			b.metrics.mu.Lock()
			b.metrics.expired++
			b.metrics.mu.Unlock()
			b.publish(events.MessageExpired, map[string]any{"messageId": env.Message.ID, "agentId": string(state.id)})
			continue
		}
		handler, ok := state.handlers[env.Message.Type]
		limiter := state.limiter
		state.mu.Unlock()

		if !ok {
			b.failEnvelope(state, env, nil)
			continue
		}

		if limiter != nil {
			// Throttle the drain rate, not admission: a slow agent's queue
			// can still fill and overflow, but its handler is never fed
			// faster than its configured rate (spec §5 backpressure).
			_ = limiter.Wait(context.Background())
		}

		result, err := handler(context.Background(), env.Message)
		if err != nil {
			b.failEnvelope(state, env, err)
			continue
		}

		b.succeedEnvelope(state, env, result)
	}
}

func (b *Bus) succeedEnvelope(state *agentState, env *messaging.Envelope, result any) {
	state.mu.Lock()
	state.queue = dropEnvelope(state.queue, env)
	depth := len(state.queue)
	state.mu.Unlock()

	obsmetrics.SetBusQueueDepth(string(state.id), depth)
	env.DeliveredAt = time.Now()
	latency := env.DeliveredAt.Sub(env.Message.Timestamp).Seconds()
	obsmetrics.ObserveBusDeliveryLatency(latency)
	obsmetrics.IncBusMessages("delivered")

	b.metrics.mu.Lock()
	b.metrics.delivered++
	b.metrics.mu.Unlock()

	b.publish(events.MessageDelivered, map[string]any{
		"messageId": env.Message.ID,
		"agentId":   string(state.id),
	})

	if env.Message.Type == messaging.TypeRequest && result != nil && env.Message.CorrelationID != "" {
		_, _ = b.Send(messaging.Message{
			Type:          messaging.TypeResponse,
			From:          state.id,
			To:            []messaging.AgentID{env.Message.From},
			Payload:       result,
			Priority:      env.Message.Priority,
			CorrelationID: env.Message.CorrelationID,
		})
	}
}

func (b *Bus) failEnvelope(state *agentState, env *messaging.Envelope, handlerErr error) {
	env.Retries++
	maxRetries := b.cfg.DefaultMaxRetry

	state.mu.Lock()
	exceeded := env.Retries > maxRetries
	if exceeded {
		state.queue = dropEnvelope(state.queue, env)
	}
	state.mu.Unlock()

	if !exceeded {
		obsmetrics.IncBusMessages("retry")
		b.publish(events.MessageRetry, map[string]any{
			"messageId": env.Message.ID,
			"agentId":   string(state.id),
			"retries":   env.Retries,
		})
		return
	}

	obsmetrics.IncBusMessages("failed")
	b.metrics.mu.Lock()
	b.metrics.failed++
	b.metrics.mu.Unlock()

	reason := "no handler registered for message type"
	if handlerErr != nil {
		reason = handlerErr.Error()
	}
	b.publish(events.MessageFailed, map[string]any{
		"messageId": env.Message.ID,
		"agentId":   string(state.id),
		"reason":    reason,
	})

	if env.Message.Type == messaging.TypeRequest && env.Message.CorrelationID != "" {
		_, _ = b.Send(messaging.Message{
			Type:          messaging.TypeError,
			From:          state.id,
			To:            []messaging.AgentID{env.Message.From},
			Payload:       reason,
			Priority:      env.Message.Priority,
			CorrelationID: env.Message.CorrelationID,
		})
	}
}

func dropEnvelope(queue []*messaging.Envelope, target *messaging.Envelope) []*messaging.Envelope {
	for i, e := range queue {
		if e == target {
			return removeEnvelope(queue, i)
		}
	}
	return queue
}
