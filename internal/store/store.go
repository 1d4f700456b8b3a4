package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Record is the durable authentication material for one session,
// keyed uniquely by session id.
type Record struct {
	SessionID string    `json:"sessionId"`
	Payload   []byte    `json:"payload"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var ErrNotFound = errors.New("credential record not found")

// PersistenceError wraps a backing-store failure so callers can tell
// storage trouble apart from missing records. The registry treats it
// as non-fatal and degrades to a warning.
type PersistenceError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("credential store %s failed for session %q: %v", e.Op, e.SessionID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CredentialStore is the contract every persistence strategy satisfies.
// Save has upsert semantics: repeated saves for one session id leave
// exactly one record. Delete of an absent id is not an error.
type CredentialStore interface {
	Exists(ctx context.Context, sessionID string) (bool, error)
	Load(ctx context.Context, sessionID string) (Record, error)
	Save(ctx context.Context, sessionID string, payload []byte) error
	Delete(ctx context.Context, sessionID string) error
}
