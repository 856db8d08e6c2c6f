package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
)

type Kind string

const (
	KindRegistrationConfirmed  Kind = "registration_confirmed"
	KindRegistrationWaitlisted Kind = "registration_waitlisted"
	KindRegistrationCancelled  Kind = "registration_cancelled"
	KindRegistrationRefunded   Kind = "registration_refunded"
	KindRefundFailed           Kind = "refund_failed"
)

type Notification struct {
	Kind           Kind                       `json:"kind"`
	Participant    identitydomain.Participant `json:"participant"`
	EventID        snowflake.ID               `json:"event_id"`
	RegistrationID snowflake.ID               `json:"registration_id"`
	Message        string                     `json:"message"`
	OccurredAt     time.Time                  `json:"occurred_at"`

	// Recipient is filled by the dispatcher from the identity service.
	Recipient *identitydomain.Contact `json:"recipient,omitempty"`
}

// Sink accepts notifications without reporting delivery.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// Sender delivers a notification over one transport.
type Sender interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}
