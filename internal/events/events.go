package events

import "context"

// Event names carried on the wire. These match what external observers
// subscribe to, so they change only with the consumers.
const (
	EventQRObtained        = "qr_obtained"
	EventAuthenticated     = "authenticated"
	EventReady             = "ready"
	EventDisconnected      = "disconnected"
	EventError             = "error"
	EventMessageReceived   = "message_received"
	EventDispatchCompleted = "dispatch_completed"
)

// Envelope is the stable shape every published event travels in.
type Envelope struct {
	Event     string `json:"eventName"`
	SessionID string `json:"sessionId"`
	Payload   any    `json:"payload"`
}

// Publisher forwards envelopes to external observers. Implementations
// must fail independently: a publish error never blocks or rolls back
// the state transition that triggered it. Callers log and move on.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}
