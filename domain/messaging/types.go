// Package messaging defines the wire types for the in-process Message Bus
// (spec §3/§4.B): Message, Priority, Envelope, and the request/response
// correlation record.
package messaging

import "time"

// AgentID identifies a registered message-bus participant.
type AgentID string

// MessageType enumerates the kinds of message the bus routes.
type MessageType string

const (
	TypeRequest      MessageType = "REQUEST"
	TypeResponse     MessageType = "RESPONSE"
	TypeNotification MessageType = "NOTIFICATION"
	TypeBroadcast    MessageType = "BROADCAST"
	TypeError        MessageType = "ERROR"
)

// Priority orders per-recipient delivery; higher values deliver first.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
	PriorityUrgent Priority = 3
)

// Message is a single routed unit on the bus. To is nil/empty for a
// broadcast; payload is opaque to the bus itself.
type Message struct {
	ID            string
	Type          MessageType
	From          AgentID
	To            []AgentID
	Payload       any
	Priority      Priority
	CorrelationID string
	Timestamp     time.Time
	TTL           time.Duration
	Metadata      map[string]any
}

// IsBroadcast reports whether this message has no explicit recipients.
func (m *Message) IsBroadcast() bool {
	return len(m.To) == 0
}

// Envelope wraps a Message with delivery bookkeeping. It is created on
// send and removed on success, expiry, or exhausted retries (spec §3).
type Envelope struct {
	Message     Message
	EnqueuedAt  time.Time
	ExpiresAt   time.Time
	DeliveredAt time.Time
	Retries     int
	insertSeq   uint64
}

// Expired reports whether now is past the envelope's expiry.
func (e *Envelope) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}
