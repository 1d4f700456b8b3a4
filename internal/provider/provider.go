package provider

import (
	"context"
	"errors"

	"github.com/creditoya/whatsapp-gateway/internal/model"
)

type EventType string

const (
	EventQRChallenge     EventType = "qr"
	EventAuthenticated   EventType = "authenticated"
	EventAuthFailed      EventType = "auth_failure"
	EventReady           EventType = "ready"
	EventDisconnected    EventType = "disconnected"
	EventMessageReceived EventType = "message"
)

// Event is one lifecycle emission from the underlying engine. Only the
// fields relevant to the Type are populated: QR for EventQRChallenge,
// Credentials for EventAuthenticated, Reason for EventAuthFailed and
// EventDisconnected, From/Body for EventMessageReceived.
type Event struct {
	Type        EventType
	QR          string
	Reason      string
	Credentials []byte
	From        string
	Body        string
}

type AuthConfig struct {
	// Resume asks the engine to restore from previously persisted
	// credentials instead of starting a fresh QR challenge.
	Resume bool
}

var ErrHandleClosed = errors.New("provider handle is closed")

// Handle is one live connection to the messaging engine. SendMessage
// and IsRegisteredUser are safe to call concurrently for different
// addresses on the same handle. Dispose is idempotent and waits for
// in-flight sends before releasing the connection.
type Handle interface {
	// Events yields lifecycle events in emission order. The channel is
	// closed when the handle is disposed or the engine drops it.
	Events() <-chan Event
	IsRegisteredUser(ctx context.Context, address string) (bool, error)
	SendMessage(ctx context.Context, address, body string, attachments []model.Attachment) error
	Dispose(ctx context.Context) error
}

// Provider creates handles. Initialize starts the connect/auth sequence
// and returns immediately; completion is signaled only through events.
type Provider interface {
	Initialize(ctx context.Context, sessionID string, auth AuthConfig) (Handle, error)
}
