package bus

import (
	"testing"

	"github.com/R3E-Network/pipeline-orchestrator/domain/messaging"
)

func env(priority messaging.Priority, tag string) *messaging.Envelope {
	return &messaging.Envelope{Message: messaging.Message{Priority: priority, Payload: tag}}
}

func tags(queue []*messaging.Envelope) []string {
	out := make([]string, len(queue))
	for i, e := range queue {
		out[i] = e.Message.Payload.(string)
	}
	return out
}

func TestInsertEnvelopePriorityFIFO(t *testing.T) {
	var queue []*messaging.Envelope
	queue = insertEnvelope(queue, env(messaging.PriorityNormal, "m1"))
	queue = insertEnvelope(queue, env(messaging.PriorityUrgent, "m2"))
	queue = insertEnvelope(queue, env(messaging.PriorityNormal, "m3"))

	got := tags(queue)
	want := []string{"m2", "m1", "m3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestInsertEnvelopeEqualPriorityPreservesInsertionOrder(t *testing.T) {
	var queue []*messaging.Envelope
	queue = insertEnvelope(queue, env(messaging.PriorityLow, "a"))
	queue = insertEnvelope(queue, env(messaging.PriorityLow, "b"))
	queue = insertEnvelope(queue, env(messaging.PriorityLow, "c"))

	got := tags(queue)
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
