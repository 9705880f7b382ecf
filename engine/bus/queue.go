package bus

import (
	"time"

	"github.com/R3E-Network/pipeline-orchestrator/domain/messaging"
)

// insertEnvelope inserts env into queue maintaining priority-descending,
// insertion-order-preserving order (spec §4.B): scan from the head and
// insert before the first envelope of strictly lower priority; ties
// (equal priority) preserve FIFO by falling through to append-after.
func insertEnvelope(queue []*messaging.Envelope, env *messaging.Envelope) []*messaging.Envelope {
	for i, existing := range queue {
		if existing.Message.Priority < env.Message.Priority {
			queue = append(queue, nil)
			copy(queue[i+1:], queue[i:])
			queue[i] = env
			return queue
		}
	}
	return append(queue, env)
}

// removeEnvelope removes the envelope at index i, preserving order.
func removeEnvelope(queue []*messaging.Envelope, i int) []*messaging.Envelope {
	return append(queue[:i], queue[i+1:]...)
}

// expiresAt computes an envelope's absolute expiry given the message TTL
// and the bus-wide default.
func expiresAt(msg messaging.Message, defaultTTL time.Duration) time.Time {
	ttl := msg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if ttl <= 0 {
		return time.Time{}
	}
	return msg.Timestamp.Add(ttl)
}
