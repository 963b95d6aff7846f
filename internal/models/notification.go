package models

import (
	"time"

	"github.com/lib/pq"
)

// NotificationStatus tracks outbox delivery progress.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
)

// Notification kinds produced by the core.
const (
	NotificationKindApplicationReceived = "APPLICATION_RECEIVED"
	NotificationKindReviewDecision      = "REVIEW_DECISION"
	NotificationKindApprovalRequested   = "APPROVAL_REQUESTED"
	NotificationKindApprovalDecided     = "APPROVAL_DECIDED"
	NotificationKindReviewReminder      = "REVIEW_REMINDER"
	NotificationKindOfferExpired        = "OFFER_EXPIRED"
)

// Notification is a durable outbox record handed to the external dispatcher.
// Delivery is fire-and-forget with retry; the core never waits on it.
// DedupeKey carries a unique constraint so periodic producers stay idempotent.
type Notification struct {
	ID           string             `db:"id" json:"id"`
	RecipientIDs pq.StringArray     `db:"recipient_ids" json:"recipient_ids"`
	Kind         string             `db:"kind" json:"kind"`
	Subject      string             `db:"subject" json:"subject"`
	Body         string             `db:"body" json:"body"`
	Metadata     []byte             `db:"metadata" json:"metadata,omitempty"`
	DedupeKey    *string            `db:"dedupe_key" json:"-"`
	Status       NotificationStatus `db:"status" json:"status"`
	Attempts     int                `db:"attempts" json:"attempts"`
	LastError    *string            `db:"last_error" json:"last_error,omitempty"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	SentAt       *time.Time         `db:"sent_at" json:"sent_at,omitempty"`
}
