package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusWaitlisted Status = "waitlisted"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusRejected   Status = "rejected"
)

// Active reports whether the registration still claims a place or queue spot.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusWaitlisted:
		return true
	default:
		return false
	}
}

// HoldsSlot reports whether the registration counts against capacity.
func (s Status) HoldsSlot() bool {
	return s == StatusPending || s == StatusConfirmed
}

func ParseStatus(value string) (Status, bool) {
	switch status := Status(value); status {
	case StatusPending, StatusConfirmed, StatusWaitlisted, StatusCancelled, StatusRefunded, StatusRejected:
		return status, true
	default:
		return "", false
	}
}

type Registration struct {
	ID              snowflake.ID                   `json:"id"`
	EventID         snowflake.ID                   `json:"event_id"`
	ParticipantKind identitydomain.ParticipantKind `json:"participant_kind"`
	ParticipantID   snowflake.ID                   `json:"participant_id"`
	Status          Status                         `json:"status"`
	PaymentID       *snowflake.ID                  `json:"payment_id,omitempty"`
	RefundAttempted bool                           `json:"refund_attempted"`
	RefundError     *string                        `json:"refund_error,omitempty"`
	CancelledAt     *time.Time                     `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time                      `json:"created_at"`
	UpdatedAt       time.Time                      `json:"updated_at"`
}

func (r Registration) Participant() identitydomain.Participant {
	return identitydomain.Participant{Kind: r.ParticipantKind, ID: r.ParticipantID}
}
