package model

import "time"

type SessionState string

const (
	StateCreated        SessionState = "created"
	StateAwaitingQRScan SessionState = "awaiting_qr_scan"
	StateAuthenticating SessionState = "authenticating"
	StateReady          SessionState = "ready"
	StateDisconnected   SessionState = "disconnected"
	StateFailed         SessionState = "failed"
)

// SessionInfo is the externally visible snapshot of a tracked session.
// The live session (provider handle included) never leaves the registry.
type SessionInfo struct {
	ID        string       `json:"id"`
	State     SessionState `json:"state"`
	LastError string       `json:"lastError,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	ReadyAt   *time.Time   `json:"readyAt,omitempty"`
}
