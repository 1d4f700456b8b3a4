package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creditoya/whatsapp-gateway/internal/model"
)

// SessionSource is the slice of the registry the sweeper needs.
type SessionSource interface {
	Snapshot() []model.SessionInfo
	DeleteSession(ctx context.Context, id string) error
}

// Sweeper periodically deletes sessions stuck in awaiting_qr_scan
// longer than maxAge. The registry never expires sessions on its own;
// this is the caller-imposed timeout policy, and it only runs when
// explicitly started.
type Sweeper struct {
	interval time.Duration
	maxAge   time.Duration
	source   SessionSource
	log      *slog.Logger

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(interval, maxAge time.Duration, source SessionSource, log *slog.Logger) (*Sweeper, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if maxAge <= 0 {
		return nil, errors.New("maxAge must be > 0")
	}
	if source == nil {
		return nil, errors.New("source must not be nil")
	}
	return &Sweeper{
		interval: interval,
		maxAge:   maxAge,
		source:   source,
		log:      log,
		done:     make(chan struct{}),
	}, nil
}

func (s *Sweeper) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info("qr sweeper started", "interval", s.interval.String(), "max_age", s.maxAge.String())

		for {
			select {
			case <-ctx.Done():
				s.log.Info("qr sweeper stopping")
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()

	return true
}

func (s *Sweeper) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	s.log.Info("qr sweeper stopped")
	return true
}

func (s *Sweeper) IsRunning() bool {
	return s.running.Load()
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.maxAge)

	for _, info := range s.source.Snapshot() {
		if info.State != model.StateAwaitingQRScan || !info.CreatedAt.Before(cutoff) {
			continue
		}
		s.log.Info("sweeping abandoned qr session", "session", info.ID, "age", time.Since(info.CreatedAt).String())
		if err := s.source.DeleteSession(ctx, info.ID); err != nil {
			s.log.Warn("sweep delete failed", "session", info.ID, "error", err)
		}
	}
}
