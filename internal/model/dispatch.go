package model

import "time"

type Recipient struct {
	Phone       string `json:"phone"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
}

type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Bytes    []byte `json:"bytes"`
}

type Outcome string

const (
	OutcomeSent          Outcome = "sent"
	OutcomeNotRegistered Outcome = "not_registered"
	OutcomeFailed        Outcome = "failed"
)

// RecipientResult is one recipient's terminal outcome. Results are
// reported in the order recipients were submitted, not completion order.
type RecipientResult struct {
	Recipient Recipient `json:"recipient"`
	Address   string    `json:"address,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
}

type DispatchReport struct {
	JobID         string            `json:"jobId"`
	SessionID     string            `json:"sessionId"`
	Sent          int               `json:"sentCount"`
	NotRegistered int               `json:"notRegisteredCount"`
	Failed        int               `json:"failedCount"`
	PerRecipient  []RecipientResult `json:"perRecipient"`
	StartedAt     time.Time         `json:"startedAt"`
	FinishedAt    time.Time         `json:"finishedAt"`
}
