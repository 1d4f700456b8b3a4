package mail

import (
	"context"
	"log/slog"

	"github.com/creditoya/whatsapp-gateway/internal/model"
)

type Renderer interface {
	Render(ctx context.Context, mjml string) (string, error)
}

type Mailer interface {
	Send(to, subject, html string) error
}

// Notifier is the dispatch sent-hook: after a successful send it mails
// the delivered message to recipients that carry an email. Strictly
// best effort; a mail failure never touches the dispatch outcome.
type Notifier struct {
	renderer Renderer
	mailer   Mailer
	subject  string
	log      *slog.Logger
}

func NewNotifier(renderer Renderer, mailer Mailer, subject string, log *slog.Logger) *Notifier {
	return &Notifier{renderer: renderer, mailer: mailer, subject: subject, log: log}
}

func (n *Notifier) NotifySent(ctx context.Context, rcpt model.Recipient, body string) {
	if rcpt.Email == "" {
		return
	}

	html, err := n.renderer.Render(ctx, InfoMailMJML(rcpt.DisplayName, body))
	if err != nil {
		n.log.Warn("mail render failed", "email", rcpt.Email, "error", err)
		return
	}

	if err := n.mailer.Send(rcpt.Email, n.subject, html); err != nil {
		n.log.Warn("mail delivery failed", "email", rcpt.Email, "error", err)
	}
}
