package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventreg/pkg/db/pagination"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeSystem      ActorType = "system"
	ActorTypeParticipant ActorType = "participant"
	ActorTypeOperator    ActorType = "operator"
	ActorTypeGateway     ActorType = "gateway"
)

const (
	ActionRegistrationCreated   = "registration.created"
	ActionRegistrationCancelled = "registration.cancelled"
	ActionRegistrationRefunded  = "registration.refunded"
	ActionRefundFailed          = "registration.refund_failed"
	ActionBulkRegistered        = "registration.bulk_created"
	ActionPaymentCompleted      = "payment.completed"
	ActionPaymentRefunded       = "payment.refunded"
	ActionPaymentCompensated    = "payment.compensated"
	ActionCompensationQueued    = "payment.compensation_queued"
	ActionCompensationAbandoned = "payment.compensation_abandoned"
	ActionLedgerEntryCreated    = "ledger.entry_created"
	ActionEventCreated          = "event.created"
	ActionEventStatusChanged    = "event.status_changed"
)

type AuditLog struct {
	ID         snowflake.ID      `json:"id"`
	ActorType  string            `json:"actor_type"`
	ActorID    *string           `json:"actor_id,omitempty"`
	Action     string            `json:"action"`
	TargetType string            `json:"target_type"`
	TargetID   *string           `json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	IPAddress  *string           `json:"ip_address,omitempty"`
	UserAgent  *string           `json:"user_agent,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// TargetType names the aggregate an entry is about.
type TargetType string

const (
	TargetEvent        TargetType = "event"
	TargetRegistration TargetType = "registration"
	TargetPayment      TargetType = "payment"
)

// Entry is one audit record before the service stamps it. An empty ActorType
// takes the actor carried on the request context.
type Entry struct {
	ActorType  ActorType
	ActorID    string
	Action     string
	TargetType TargetType
	TargetID   string
	Metadata   map[string]any
}

type ListFilter struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
}
