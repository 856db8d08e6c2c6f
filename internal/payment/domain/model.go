package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

func ParseMode(value string) (Mode, bool) {
	switch Mode(value) {
	case "", ModeOnline:
		return ModeOnline, true
	case ModeOffline:
		return ModeOffline, true
	default:
		return "", false
	}
}

type Payment struct {
	ID                  snowflake.ID                   `json:"id"`
	RegistrationID      *snowflake.ID                  `json:"registration_id,omitempty"`
	EventID             snowflake.ID                   `json:"event_id"`
	ParticipantKind     identitydomain.ParticipantKind `json:"participant_kind"`
	ParticipantID       snowflake.ID                   `json:"participant_id"`
	Amount              int64                          `json:"amount"`
	Currency            string                         `json:"currency"`
	Mode                Mode                           `json:"mode"`
	Provider            string                         `json:"provider"`
	Status              Status                         `json:"status"`
	TransactionID       *string                        `json:"transaction_id,omitempty"`
	RefundTransactionID *string                        `json:"refund_transaction_id,omitempty"`
	RefundReason        *string                        `json:"refund_reason,omitempty"`
	FailureReason       *string                        `json:"failure_reason,omitempty"`
	CreatedAt           time.Time                      `json:"created_at"`
	UpdatedAt           time.Time                      `json:"updated_at"`
	CompletedAt         *time.Time                     `json:"completed_at,omitempty"`
	RefundedAt          *time.Time                     `json:"refunded_at,omitempty"`
}

func (p Payment) Participant() identitydomain.Participant {
	return identitydomain.Participant{Kind: p.ParticipantKind, ID: p.ParticipantID}
}

// EventRecord is the stored copy of a gateway callback, unique per provider event.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	PaymentID       snowflake.ID   `json:"payment_id" gorm:"not null;index"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
	EventTypeRefunded         = "refunded"
)

// PaymentEvent is the canonical callback parsed by webhook adapters.
type PaymentEvent struct {
	Provider          string
	ProviderEventID   string
	ProviderPaymentID string
	Type              string
	PaymentID         snowflake.ID
	Amount            int64
	Currency          string
	FailureReason     string
	OccurredAt        time.Time
	RawPayload        []byte
}

type RefundResult struct {
	Payment             Payment `json:"payment"`
	RefundTransactionID string  `json:"refund_transaction_id"`
}
