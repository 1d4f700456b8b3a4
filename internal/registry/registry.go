package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/creditoya/whatsapp-gateway/internal/events"
	"github.com/creditoya/whatsapp-gateway/internal/model"
	"github.com/creditoya/whatsapp-gateway/internal/provider"
	"github.com/creditoya/whatsapp-gateway/internal/store"
)

var (
	// ErrAlreadyExists is returned together with the existing session's
	// snapshot. Callers treat it as "already tracked", not as a failure.
	ErrAlreadyExists = errors.New("session already exists")

	ErrNotFound        = errors.New("session not found")
	ErrNoCredentials   = errors.New("no credentials persisted for session")
	ErrNotDisconnected = errors.New("session is live; reconnect requires a disconnected session")
	ErrSessionNotReady = errors.New("session is not ready")
)

// ProviderInitError marks an initialization failure. It is fatal only
// to the affected session, which stays tracked in state Failed.
type ProviderInitError struct {
	SessionID string
	Err       error
}

func (e *ProviderInitError) Error() string {
	return fmt.Sprintf("provider initialization failed for session %q: %v", e.SessionID, e.Err)
}

func (e *ProviderInitError) Unwrap() error { return e.Err }

// Registry owns every live session and is the only place session state
// mutates. Transitions are driven exclusively by provider events; the
// external surface can create, look up, delete and reconnect sessions
// but never set a state directly.
type Registry struct {
	provider provider.Provider
	store    store.CredentialStore
	pub      events.Publisher
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	id string

	// opMu serializes create/delete/reconnect for this id, including
	// the blocking Initialize call. Operations on other ids never wait
	// on it.
	opMu sync.Mutex

	// stMu guards the fields below and is only ever held briefly.
	stMu       sync.Mutex
	state      model.SessionState
	handle     provider.Handle
	lastErr    string
	createdAt  time.Time
	readyAt    *time.Time
	credsSaved bool
}

func New(p provider.Provider, cs store.CredentialStore, pub events.Publisher, log *slog.Logger) *Registry {
	return &Registry{
		provider: p,
		store:    cs,
		pub:      pub,
		log:      log,
		sessions: make(map[string]*session),
	}
}

// CreateSession tracks a new session and starts its connect sequence.
// If id is already live the existing snapshot is returned along with
// ErrAlreadyExists and no second provider handle is created.
func (r *Registry) CreateSession(ctx context.Context, id string) (model.SessionInfo, error) {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return s.snapshot(), ErrAlreadyExists
	}
	s := &session{id: id, state: model.StateCreated, createdAt: time.Now().UTC()}
	s.opMu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	return r.initialize(ctx, s, provider.AuthConfig{})
}

// GetSession is a memory-only lookup. A session that is not live must
// be reconnected explicitly; it is never rehydrated from the store here,
// which would risk spinning up a duplicate provider handle.
func (r *Registry) GetSession(id string) (model.SessionInfo, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return model.SessionInfo{}, ErrNotFound
	}
	return s.snapshot(), nil
}

// DeleteSession disposes the provider handle, removes the in-memory
// entry and best-effort deletes the durable credential record. Deleting
// an unknown id is a no-op. A failed durable delete still removes the
// in-memory entry; it is reported as a warning, never as a zombie.
func (r *Registry) DeleteSession(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.stMu.Lock()
	h := s.handle
	s.handle = nil
	s.stMu.Unlock()

	if h != nil {
		if err := h.Dispose(ctx); err != nil {
			r.log.Warn("provider dispose failed", "session", id, "error", err)
		}
	}

	if err := r.store.Delete(ctx, id); err != nil {
		r.log.Warn("credential delete failed", "session", id, "error", err)
		r.publish(ctx, events.Envelope{
			Event:     events.EventError,
			SessionID: id,
			Payload:   map[string]any{"id": id, "message": "credential delete failed: " + err.Error()},
		})
	}
	return nil
}

// ReconnectSession restores a session from persisted credentials. Valid
// only when the session is disconnected or not tracked at all; fails
// with ErrNoCredentials before touching the provider if nothing was
// persisted, rather than silently starting a fresh QR flow.
func (r *Registry) ReconnectSession(ctx context.Context, id string) (model.SessionInfo, error) {
	ok, err := r.store.Exists(ctx, id)
	if err != nil {
		return model.SessionInfo{}, err
	}
	if !ok {
		return model.SessionInfo{}, ErrNoCredentials
	}

	r.mu.Lock()
	s, live := r.sessions[id]
	if !live {
		s = &session{id: id, state: model.StateCreated, createdAt: time.Now().UTC()}
		s.opMu.Lock()
		r.sessions[id] = s
		r.mu.Unlock()
		return r.initialize(ctx, s, provider.AuthConfig{Resume: true})
	}
	r.mu.Unlock()

	s.opMu.Lock()

	s.stMu.Lock()
	if s.state != model.StateDisconnected {
		snap := s.snapshotLocked()
		s.stMu.Unlock()
		s.opMu.Unlock()
		return snap, ErrNotDisconnected
	}
	h := s.handle
	s.handle = nil
	s.state = model.StateCreated
	s.lastErr = ""
	s.readyAt = nil
	s.credsSaved = false
	s.createdAt = time.Now().UTC()
	s.stMu.Unlock()

	if h != nil {
		if err := h.Dispose(ctx); err != nil {
			r.log.Warn("provider dispose failed", "session", id, "error", err)
		}
	}

	return r.initialize(ctx, s, provider.AuthConfig{Resume: true})
}

// ReadyHandle resolves id to the handle of a Ready session, the only
// state in which dispatch may use it.
func (r *Registry) ReadyHandle(id string) (provider.Handle, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotReady
	}

	s.stMu.Lock()
	defer s.stMu.Unlock()
	if s.state != model.StateReady || s.handle == nil {
		return nil, ErrSessionNotReady
	}
	return s.handle, nil
}

// Snapshot lists every tracked session.
func (r *Registry) Snapshot() []model.SessionInfo {
	r.mu.Lock()
	all := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	out := make([]model.SessionInfo, 0, len(all))
	for _, s := range all {
		out = append(out, s.snapshot())
	}
	return out
}

// Close disposes every live provider handle without touching durable
// credential records, so sessions resume after a restart.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	all := make([]*session, 0, len(r.sessions))
	for id, s := range r.sessions {
		all = append(all, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range all {
		s.opMu.Lock()
		s.stMu.Lock()
		h := s.handle
		s.handle = nil
		s.stMu.Unlock()
		s.opMu.Unlock()

		if h != nil {
			if err := h.Dispose(ctx); err != nil {
				r.log.Warn("provider dispose failed", "session", s.id, "error", err)
			}
		}
	}
}

// initialize starts the provider connect sequence for s. The caller
// must hold s.opMu; it is released here.
func (r *Registry) initialize(ctx context.Context, s *session, auth provider.AuthConfig) (model.SessionInfo, error) {
	defer s.opMu.Unlock()

	h, err := r.provider.Initialize(ctx, s.id, auth)
	if err != nil {
		s.stMu.Lock()
		s.state = model.StateFailed
		s.lastErr = err.Error()
		snap := s.snapshotLocked()
		s.stMu.Unlock()

		r.publish(ctx, events.Envelope{
			Event:     events.EventError,
			SessionID: s.id,
			Payload:   map[string]any{"id": s.id, "message": "error initializing session: " + err.Error()},
		})
		return snap, &ProviderInitError{SessionID: s.id, Err: err}
	}

	s.stMu.Lock()
	s.handle = h
	snap := s.snapshotLocked()
	s.stMu.Unlock()

	go r.consume(s, h)
	return snap, nil
}

// consume drains one handle's event stream in emission order. Each
// session has its own consume goroutine, so a slow event on one session
// never delays another session's transitions.
func (r *Registry) consume(s *session, h provider.Handle) {
	for ev := range h.Events() {
		r.apply(s, h, ev)
	}
}

func (r *Registry) apply(s *session, h provider.Handle, ev provider.Event) {
	ctx := context.Background()

	s.stMu.Lock()
	if s.handle != h {
		// Stale handle: the session was deleted or reconnected while
		// this event was in flight.
		s.stMu.Unlock()
		return
	}

	switch ev.Type {
	case provider.EventQRChallenge:
		s.state = model.StateAwaitingQRScan
		s.stMu.Unlock()
		r.publish(ctx, events.Envelope{
			Event:     events.EventQRObtained,
			SessionID: s.id,
			Payload:   map[string]any{"qr": ev.QR},
		})

	case provider.EventAuthenticated:
		s.state = model.StateAuthenticating
		s.lastErr = ""
		save := !s.credsSaved
		s.credsSaved = true
		s.stMu.Unlock()

		r.publish(ctx, events.Envelope{
			Event:     events.EventAuthenticated,
			SessionID: s.id,
			Payload:   map[string]any{"isAuth": true},
		})

		// Credentials are persisted once per authentication, not on
		// every event. A store failure degrades to a warning: the
		// session still becomes Ready, it just cannot be resumed.
		if save {
			if err := r.store.Save(ctx, s.id, ev.Credentials); err != nil {
				r.log.Warn("credential persistence failed", "session", s.id, "error", err)
				r.publish(ctx, events.Envelope{
					Event:     events.EventError,
					SessionID: s.id,
					Payload:   map[string]any{"id": s.id, "message": "credential persistence degraded: " + err.Error()},
				})
			}
		}

	case provider.EventAuthFailed:
		s.state = model.StateFailed
		s.lastErr = ev.Reason
		s.stMu.Unlock()
		r.publish(ctx, events.Envelope{
			Event:     events.EventAuthenticated,
			SessionID: s.id,
			Payload:   map[string]any{"isAuth": false},
		})
		r.publish(ctx, events.Envelope{
			Event:     events.EventError,
			SessionID: s.id,
			Payload:   map[string]any{"id": s.id, "message": "authentication failed: " + ev.Reason},
		})

	case provider.EventReady:
		now := time.Now().UTC()
		s.state = model.StateReady
		s.readyAt = &now
		s.lastErr = ""
		s.stMu.Unlock()
		r.publish(ctx, events.Envelope{
			Event:     events.EventReady,
			SessionID: s.id,
			Payload:   map[string]any{"id": s.id},
		})

	case provider.EventDisconnected:
		s.state = model.StateDisconnected
		s.lastErr = ev.Reason
		s.stMu.Unlock()
		r.publish(ctx, events.Envelope{
			Event:     events.EventDisconnected,
			SessionID: s.id,
			Payload:   map[string]any{"id": s.id, "reason": ev.Reason},
		})

	case provider.EventMessageReceived:
		s.stMu.Unlock()
		r.publish(ctx, events.Envelope{
			Event:     events.EventMessageReceived,
			SessionID: s.id,
			Payload:   map[string]any{"from": ev.From, "body": ev.Body},
		})
		if ev.Body == "ping" {
			go func() {
				if err := h.SendMessage(context.Background(), ev.From, "pong", nil); err != nil {
					r.log.Warn("ping reply failed", "session", s.id, "to", ev.From, "error", err)
				}
			}()
		}

	default:
		s.stMu.Unlock()
		r.log.Warn("unknown provider event", "session", s.id, "type", string(ev.Type))
	}
}

func (r *Registry) publish(ctx context.Context, env events.Envelope) {
	if err := r.pub.Publish(ctx, env); err != nil {
		r.log.Warn("event publish failed", "event", env.Event, "session", env.SessionID, "error", err)
	}
}

func (s *session) snapshot() model.SessionInfo {
	s.stMu.Lock()
	defer s.stMu.Unlock()
	return s.snapshotLocked()
}

func (s *session) snapshotLocked() model.SessionInfo {
	info := model.SessionInfo{
		ID:        s.id,
		State:     s.state,
		LastError: s.lastErr,
		CreatedAt: s.createdAt,
	}
	if s.readyAt != nil {
		t := *s.readyAt
		info.ReadyAt = &t
	}
	return info
}
