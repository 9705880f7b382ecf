// Package bus implements the Message Bus (spec §4.B): per-recipient
// priority-ordered delivery, request/response correlation, TTL expiry,
// retries, and per-agent delivery-lock serialization.
package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/R3E-Network/pipeline-orchestrator/domain/messaging"
	"github.com/R3E-Network/pipeline-orchestrator/engine/events"
	"github.com/R3E-Network/pipeline-orchestrator/obsmetrics"
	"github.com/R3E-Network/pipeline-orchestrator/orcherrors"
	"github.com/R3E-Network/pipeline-orchestrator/pkg/logging"
)

// Handler processes one message for a registered agent. A non-nil, non-nil
// return value on a REQUEST causes the bus to auto-emit a RESPONSE back to
// the sender carrying that value (spec §4.B).
type Handler func(ctx context.Context, msg messaging.Message) (any, error)

// Config controls bus-wide defaults (spec §4.B).
type Config struct {
	MaxQueueSize    int
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
	DefaultMaxRetry int

	// PerAgentRPS and PerAgentBurst throttle how fast a single agent's
	// delivery pass drains its queue (spec §5 "backpressure" companion to
	// the queue-size bound: a bursty sender can still fill the queue, but
	// a slow-processing agent can't be force-fed faster than it can keep
	// up). Zero disables throttling, the same "no limiter" convention the
	// teacher's infrastructure/ratelimit package uses.
	PerAgentRPS   float64
	PerAgentBurst int
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize:    10000,
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: time.Minute,
		DefaultMaxRetry: 3,
	}
}

type agentState struct {
	id       messaging.AgentID
	handlers map[messaging.MessageType]Handler
	limiter  *rate.Limiter

	mu      sync.Mutex
	queue   []*messaging.Envelope
	running bool
	pending bool
}

type pendingRequest struct {
	resultCh chan requestResult
}

type requestResult struct {
	value any
	err   error
}

// Bus is the in-process multi-producer multi-consumer message router.
type Bus struct {
	cfg Config
	log *logging.Logger
	evt *events.Bus

	mu     sync.RWMutex
	agents map[messaging.AgentID]*agentState

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest

	metrics struct {
		mu        sync.Mutex
		delivered int64
		failed    int64
		expired   int64
	}

	cleanupStop chan struct{}
	closeOnce   sync.Once
}

// New constructs a Bus and starts its periodic TTL cleanup sweep.
func New(cfg Config, log *logging.Logger, evt *events.Bus) *Bus {
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 10000
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.DefaultMaxRetry < 0 {
		cfg.DefaultMaxRetry = 3
	}
	if log == nil {
		log = logging.NewDefault("bus")
	}
	b := &Bus{
		cfg:         cfg,
		log:         log,
		evt:         evt,
		agents:      make(map[messaging.AgentID]*agentState),
		pending:     make(map[string]*pendingRequest),
		cleanupStop: make(chan struct{}),
	}
	go b.cleanupLoop()
	return b
}

func (b *Bus) publish(variant events.Variant, data map[string]any) {
	if b.evt != nil {
		b.evt.Publish(variant, data)
	}
}

// RegisterAgent adds id to the set of known recipients.
func (b *Bus) RegisterAgent(id messaging.AgentID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.agents[id]; exists {
		return
	}
	state := &agentState{id: id, handlers: map[messaging.MessageType]Handler{}}
	if b.cfg.PerAgentRPS > 0 {
		burst := b.cfg.PerAgentBurst
		if burst <= 0 {
			burst = int(b.cfg.PerAgentRPS)
			if burst <= 0 {
				burst = 1
			}
		}
		state.limiter = rate.NewLimiter(rate.Limit(b.cfg.PerAgentRPS), burst)
	}
	b.agents[id] = state
	b.publish(events.AgentRegistered, map[string]any{"agentId": string(id)})
}

// UnregisterAgent removes id; its queue is discarded.
func (b *Bus) UnregisterAgent(id messaging.AgentID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.agents, id)
	b.publish(events.AgentUnregistered, map[string]any{"agentId": string(id)})
}

// RegisterHandler registers the handler an agent uses for a message type.
func (b *Bus) RegisterHandler(agentID messaging.AgentID, msgType messaging.MessageType, handler Handler) error {
	b.mu.RLock()
	state, ok := b.agents[agentID]
	b.mu.RUnlock()
	if !ok {
		return orcherrors.NotFound("agent not registered: " + string(agentID))
	}
	state.mu.Lock()
	state.handlers[msgType] = handler
	state.mu.Unlock()
	return nil
}

// GetRegisteredAgents returns the currently registered agent ids.
func (b *Bus) GetRegisteredAgents() []messaging.AgentID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]messaging.AgentID, 0, len(b.agents))
	for id := range b.agents {
		out = append(out, id)
	}
	return out
}

// GetQueueSize returns the current queue depth for agentID.
func (b *Bus) GetQueueSize(agentID messaging.AgentID) int {
	b.mu.RLock()
	state, ok := b.agents[agentID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return len(state.queue)
}

// Metrics is a snapshot of bus-wide delivery counters.
type Metrics struct {
	Delivered int64
	Failed    int64
	Expired   int64
}

// GetMetrics returns a snapshot of delivery counters.
func (b *Bus) GetMetrics() Metrics {
	b.metrics.mu.Lock()
	defer b.metrics.mu.Unlock()
	return Metrics{Delivered: b.metrics.delivered, Failed: b.metrics.failed, Expired: b.metrics.expired}
}

// Send validates and routes msg, stamping an id and timestamp if absent.
// A direct message to an unregistered recipient fails with NotFoundError;
// broadcast (empty To) fans out to every other registered agent.
func (b *Bus) Send(msg messaging.Message) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	if msg.IsBroadcast() {
		b.mu.RLock()
		recipients := make([]messaging.AgentID, 0, len(b.agents))
		for id := range b.agents {
			if id != msg.From {
				recipients = append(recipients, id)
			}
		}
		b.mu.RUnlock()
		b.publish(events.MessageBroadcast, map[string]any{"messageId": msg.ID, "from": string(msg.From)})
		for _, r := range recipients {
			_ = b.deliverTo(r, msg)
		}
		return msg.ID, nil
	}

	var firstErr error
	for _, r := range msg.To {
		if err := b.deliverTo(r, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return msg.ID, firstErr
}

// deliverTo routes a single copy of msg to recipient, handling the
// request/response correlation shortcut before falling back to the
// priority queue.
func (b *Bus) deliverTo(recipient messaging.AgentID, msg messaging.Message) error {
	if (msg.Type == messaging.TypeResponse || msg.Type == messaging.TypeError) && msg.CorrelationID != "" {
		if b.resolvePending(msg) {
			return nil
		}
	}

	b.mu.RLock()
	state, ok := b.agents[recipient]
	b.mu.RUnlock()
	if !ok {
		b.log.WithField("agentId", string(recipient)).Warn("send: recipient not registered")
		return orcherrors.NotFound("recipient not registered: " + string(recipient))
	}

	env := &messaging.Envelope{
		Message:    msg,
		EnqueuedAt: time.Now(),
		ExpiresAt:  expiresAt(msg, b.cfg.DefaultTTL),
	}

	state.mu.Lock()
	if len(state.queue) >= b.cfg.MaxQueueSize {
		state.mu.Unlock()
		return orcherrors.Overflow("queue full for agent " + string(recipient))
	}
	state.queue = insertEnvelope(state.queue, env)
	depth := len(state.queue)
	state.mu.Unlock()

	obsmetrics.SetBusQueueDepth(string(recipient), depth)
	b.publish(events.MessageSent, map[string]any{"messageId": msg.ID, "to": string(recipient)})
	b.scheduleDelivery(state)
	return nil
}

func (b *Bus) resolvePending(msg messaging.Message) bool {
	b.pendingMu.Lock()
	pr, ok := b.pending[msg.CorrelationID]
	if ok {
		delete(b.pending, msg.CorrelationID)
	}
	b.pendingMu.Unlock()
	if !ok {
		return false
	}
	if msg.Type == messaging.TypeError {
		errMsg, _ := msg.Payload.(string)
		if errMsg == "" {
			errMsg = "remote handler error"
		}
		pr.resultCh <- requestResult{err: orcherrors.HandlerFailure(errors.New(errMsg))}
	} else {
		pr.resultCh <- requestResult{value: msg.Payload}
	}
	return true
}

// Request sends a REQUEST from 'from' to 'to' and blocks until a matching
// RESPONSE/ERROR arrives or timeoutMs elapses (spec §4.B).
func (b *Bus) Request(ctx context.Context, from, to messaging.AgentID, payload any, timeoutMs int64) (any, error) {
	if timeoutMs <= 0 {
		timeoutMs = 30000
	}
	correlationID := uuid.NewString()
	resultCh := make(chan requestResult, 1)

	b.pendingMu.Lock()
	b.pending[correlationID] = &pendingRequest{resultCh: resultCh}
	b.pendingMu.Unlock()

	cleanup := func() {
		b.pendingMu.Lock()
		delete(b.pending, correlationID)
		b.pendingMu.Unlock()
	}

	_, err := b.Send(messaging.Message{
		Type:          messaging.TypeRequest,
		From:          from,
		To:            []messaging.AgentID{to},
		Payload:       payload,
		Priority:      messaging.PriorityNormal,
		CorrelationID: correlationID,
	})
	if err != nil {
		cleanup()
		return nil, err
	}

	timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		return res.value, res.err
	case <-timer.C:
		cleanup()
		return nil, orcherrors.Timeout("request timed out waiting for response from " + string(to))
	case <-ctx.Done():
		cleanup()
		return nil, ctx.Err()
	}
}

// Shutdown rejects every pending request and stops the cleanup loop.
func (b *Bus) Shutdown() {
	b.closeOnce.Do(func() {
		close(b.cleanupStop)
		b.pendingMu.Lock()
		for id, pr := range b.pending {
			pr.resultCh <- requestResult{err: orcherrors.Shutdown("bus is shutting down")}
			delete(b.pending, id)
		}
		b.pendingMu.Unlock()
	})
}

func (b *Bus) cleanupLoop() {
	ticker := time.NewTicker(b.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.sweepExpired()
		case <-b.cleanupStop:
			return
		}
	}
}

func (b *Bus) sweepExpired() {
	now := time.Now()
	b.mu.RLock()
	states := make([]*agentState, 0, len(b.agents))
	for _, s := range b.agents {
		states = append(states, s)
	}
	b.mu.RUnlock()

	for _, s := range states {
		s.mu.Lock()
		kept := s.queue[:0:0]
		for _, env := range s.queue {
			if env.Expired(now) {
				b.metrics.mu.Lock()
				b.metrics.expired++
				b.metrics.mu.Unlock()
				b.publish(events.MessageExpired, map[string]any{"messageId": env.Message.ID, "agentId": string(s.id)})
				continue
			}
			kept = append(kept, env)
		}
		s.queue = kept
		s.mu.Unlock()
	}
}
