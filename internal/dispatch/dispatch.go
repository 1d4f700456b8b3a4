package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/creditoya/whatsapp-gateway/internal/events"
	"github.com/creditoya/whatsapp-gateway/internal/model"
	"github.com/creditoya/whatsapp-gateway/internal/provider"
)

var ErrNoRecipients = errors.New("dispatch job has no recipients")

// HandleResolver resolves a session id to a send-ready provider handle.
// The registry implements it; anything not in state Ready resolves to
// an error.
type HandleResolver interface {
	ReadyHandle(sessionID string) (provider.Handle, error)
}

// ReportSink receives the completed report for observability storage.
// Failures are logged, never surfaced into the job result.
type ReportSink interface {
	StoreReport(ctx context.Context, report model.DispatchReport) error
}

type Job struct {
	SessionID    string             `json:"sessionId"`
	Recipients   []model.Recipient  `json:"recipients"`
	BodyTemplate string             `json:"bodyTemplate"`
	Attachments  []model.Attachment `json:"attachments,omitempty"`
}

// Engine fans one job out across its recipients with bounded
// concurrency. One recipient's failure never aborts the others, and
// jobs on different sessions share no state beyond the engine config.
type Engine struct {
	sessions      HandleResolver
	pub           events.Publisher
	log           *slog.Logger
	countryPrefix string
	addressSuffix string
	maxInFlight   int64

	sink   ReportSink
	onSent func(ctx context.Context, rcpt model.Recipient, body string)
}

func NewEngine(sessions HandleResolver, pub events.Publisher, log *slog.Logger, countryPrefix, addressSuffix string, maxInFlight int) *Engine {
	if maxInFlight <= 0 {
		maxInFlight = 8
	}
	return &Engine{
		sessions:      sessions,
		pub:           pub,
		log:           log,
		countryPrefix: countryPrefix,
		addressSuffix: addressSuffix,
		maxInFlight:   int64(maxInFlight),
	}
}

// WithReportSink stores each completed report, e.g. in Redis for the
// "last dispatch" lookup.
func (e *Engine) WithReportSink(sink ReportSink) *Engine {
	e.sink = sink
	return e
}

// WithSentHook runs after each successful per-recipient send. Used for
// downstream side effects such as the notification mail; errors inside
// the hook never touch the recipient's outcome.
func (e *Engine) WithSentHook(hook func(ctx context.Context, rcpt model.Recipient, body string)) *Engine {
	e.onSent = hook
	return e
}

// Dispatch runs the job to completion and returns the aggregate report.
// Every recipient ends with a terminal outcome; results keep the order
// recipients were submitted in.
func (e *Engine) Dispatch(ctx context.Context, job Job) (model.DispatchReport, error) {
	if len(job.Recipients) == 0 {
		return model.DispatchReport{}, ErrNoRecipients
	}

	handle, err := e.sessions.ReadyHandle(job.SessionID)
	if err != nil {
		return model.DispatchReport{}, err
	}

	report := model.DispatchReport{
		JobID:        uuid.NewString(),
		SessionID:    job.SessionID,
		PerRecipient: make([]model.RecipientResult, len(job.Recipients)),
		StartedAt:    time.Now().UTC(),
	}

	e.log.Info("dispatch started",
		"job", report.JobID,
		"session", job.SessionID,
		"recipients", len(job.Recipients),
		"attachments", len(job.Attachments),
	)

	sem := semaphore.NewWeighted(e.maxInFlight)
	var wg sync.WaitGroup

	for i, rcpt := range job.Recipients {
		addr, err := NormalizeAddress(rcpt.Phone, e.countryPrefix, e.addressSuffix)
		if err != nil {
			// Malformed entries get a result entry, never a silent drop.
			report.PerRecipient[i] = model.RecipientResult{
				Recipient: rcpt,
				Outcome:   model.OutcomeFailed,
				Reason:    "invalid address",
			}
			continue
		}

		wg.Add(1)
		go func(i int, rcpt model.Recipient, addr string) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				report.PerRecipient[i] = model.RecipientResult{
					Recipient: rcpt,
					Address:   addr,
					Outcome:   model.OutcomeFailed,
					Reason:    err.Error(),
				}
				return
			}
			defer sem.Release(1)
			report.PerRecipient[i] = e.sendOne(ctx, handle, job, rcpt, addr)
		}(i, rcpt, addr)
	}
	wg.Wait()

	report.FinishedAt = time.Now().UTC()
	for _, res := range report.PerRecipient {
		switch res.Outcome {
		case model.OutcomeSent:
			report.Sent++
		case model.OutcomeNotRegistered:
			report.NotRegistered++
		case model.OutcomeFailed:
			report.Failed++
		}
	}

	e.log.Info("dispatch completed",
		"job", report.JobID,
		"session", job.SessionID,
		"sent", report.Sent,
		"not_registered", report.NotRegistered,
		"failed", report.Failed,
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)

	if err := e.pub.Publish(ctx, events.Envelope{
		Event:     events.EventDispatchCompleted,
		SessionID: job.SessionID,
		Payload:   report,
	}); err != nil {
		e.log.Warn("dispatch report publish failed", "job", report.JobID, "error", err)
	}

	if e.sink != nil {
		if err := e.sink.StoreReport(ctx, report); err != nil {
			e.log.Warn("dispatch report store failed", "job", report.JobID, "error", err)
		}
	}

	return report, nil
}

func (e *Engine) sendOne(ctx context.Context, handle provider.Handle, job Job, rcpt model.Recipient, addr string) model.RecipientResult {
	res := model.RecipientResult{Recipient: rcpt, Address: addr}

	registered, err := handle.IsRegisteredUser(ctx, addr)
	if err != nil {
		res.Outcome = model.OutcomeFailed
		res.Reason = fmt.Sprintf("registration check: %v", err)
		return res
	}
	if !registered {
		res.Outcome = model.OutcomeNotRegistered
		return res
	}

	body := RenderBody(job.BodyTemplate, rcpt.DisplayName)
	if err := handle.SendMessage(ctx, addr, body, nil); err != nil {
		res.Outcome = model.OutcomeFailed
		res.Reason = err.Error()
		return res
	}

	// Attachments go out concurrently once the body is through. A
	// failed attachment fails this recipient only; siblings finish.
	if len(job.Attachments) > 0 {
		var (
			mu   sync.Mutex
			errs []error
			awg  sync.WaitGroup
		)
		for _, att := range job.Attachments {
			awg.Add(1)
			go func(att model.Attachment) {
				defer awg.Done()
				if err := handle.SendMessage(ctx, addr, "", []model.Attachment{att}); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("attachment %q: %w", att.Name, err))
					mu.Unlock()
				}
			}(att)
		}
		awg.Wait()
		if len(errs) > 0 {
			res.Outcome = model.OutcomeFailed
			res.Reason = errors.Join(errs...).Error()
			return res
		}
	}

	res.Outcome = model.OutcomeSent
	if e.onSent != nil {
		e.onSent(ctx, rcpt, body)
	}
	return res
}

// NormalizeAddress turns a raw phone entry into the canonical provider
// address: whitespace and the leading "+" stripped, the default country
// prefix prepended when missing, and the address-domain suffix appended.
func NormalizeAddress(phone, countryPrefix, addressSuffix string) (string, error) {
	s := strings.Join(strings.Fields(phone), "")
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return "", errors.New("empty phone number")
	}
	if !strings.HasPrefix(s, countryPrefix) {
		s = countryPrefix + s
	}
	return s + addressSuffix, nil
}

// RenderBody substitutes the recipient's display name into the body
// template. The single {{name}} placeholder mirrors what campaign
// templates actually use.
func RenderBody(template, displayName string) string {
	return strings.ReplaceAll(template, "{{name}}", displayName)
}
