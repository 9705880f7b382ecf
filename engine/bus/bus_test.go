package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/R3E-Network/pipeline-orchestrator/domain/messaging"
)

func newTestBus() *Bus {
	return New(DefaultConfig(), nil, nil)
}

func TestRoundTripRequestResponse(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()

	b.RegisterAgent("A")
	b.RegisterAgent("B")
	_ = b.RegisterHandler("B", messaging.TypeRequest, func(ctx context.Context, msg messaging.Message) (any, error) {
		return "pong:" + msg.Payload.(string), nil
	})

	result, err := b.Request(context.Background(), "A", "B", "ping", 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "pong:ping" {
		t.Fatalf("got %v", result)
	}
}

func TestRoundTripRequestRejectionCarriesMessageOnly(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()

	b.RegisterAgent("A")
	b.RegisterAgent("B")
	_ = b.RegisterHandler("B", messaging.TypeRequest, func(ctx context.Context, msg messaging.Message) (any, error) {
		return nil, errors.New("boom: stack trace details")
	})

	_, err := b.Request(context.Background(), "A", "B", "ping", 1000)
	if err == nil {
		t.Fatalf("expected error")
	}
	if err.Error() == "" {
		t.Fatalf("expected non-empty error message")
	}
}

func TestRequestTimeout(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()

	b.RegisterAgent("A")
	b.RegisterAgent("B")
	block := make(chan struct{})
	_ = b.RegisterHandler("B", messaging.TypeRequest, func(ctx context.Context, msg messaging.Message) (any, error) {
		<-block
		return "late", nil
	})
	defer close(block)

	_, err := b.Request(context.Background(), "A", "B", "ping", 50)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestPerAgentSerialization(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()

	b.RegisterAgent("sender")
	b.RegisterAgent("X")

	var running int32
	var maxObserved int32
	var mu sync.Mutex
	var wg sync.WaitGroup

	_ = b.RegisterHandler("X", messaging.TypeNotification, func(ctx context.Context, msg messaging.Message) (any, error) {
		n := atomic.AddInt32(&running, 1)
		mu.Lock()
		if n > maxObserved {
			maxObserved = n
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		wg.Done()
		return nil, nil
	})

	const n = 20
	wg.Add(n)
	for i := 0; i < n; i++ {
		_, _ = b.Send(messaging.Message{Type: messaging.TypeNotification, From: "sender", To: []messaging.AgentID{"X"}, Payload: i})
	}
	wg.Wait()

	if maxObserved > 1 {
		t.Fatalf("expected at most 1 concurrent handler invocation, observed %d", maxObserved)
	}
}

func TestOverflowRejectsSend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxQueueSize = 1
	b := New(cfg, nil, nil)
	defer b.Shutdown()

	b.RegisterAgent("sender")
	b.RegisterAgent("X")
	block := make(chan struct{})
	_ = b.RegisterHandler("X", messaging.TypeNotification, func(ctx context.Context, msg messaging.Message) (any, error) {
		<-block
		return nil, nil
	})
	defer close(block)

	if _, err := b.Send(messaging.Message{Type: messaging.TypeNotification, From: "sender", To: []messaging.AgentID{"X"}}); err != nil {
		t.Fatalf("first send should succeed: %v", err)
	}
	time.Sleep(5 * time.Millisecond) // let delivery pick up the first message
	if _, err := b.Send(messaging.Message{Type: messaging.TypeNotification, From: "sender", To: []messaging.AgentID{"X"}}); err == nil {
		t.Fatalf("second send should overflow: the in-flight first message stays queued until its handler returns")
	}
	if _, err := b.Send(messaging.Message{Type: messaging.TypeNotification, From: "sender", To: []messaging.AgentID{"X"}}); err == nil {
		t.Fatalf("expected overflow error once queue is at capacity")
	}
}

func TestSendToUnregisteredRecipientFails(t *testing.T) {
	b := newTestBus()
	defer b.Shutdown()
	b.RegisterAgent("sender")

	_, err := b.Send(messaging.Message{Type: messaging.TypeNotification, From: "sender", To: []messaging.AgentID{"ghost"}})
	if err == nil {
		t.Fatalf("expected not-found error")
	}
}
