package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"github.com/smallbiznis/eventreg/pkg/db/pagination"
)

type CreateRegistrationRequest struct {
	EventID         snowflake.ID
	Participant     identitydomain.Participant
	RequestedAmount int64
	Mode            paymentdomain.Mode
	// SkipWaitlist rejects with capacity_reached instead of queueing.
	SkipWaitlist bool
}

type CancelResult struct {
	Registration    Registration `json:"registration"`
	AlreadyFinal    bool         `json:"already_final"`
	Refunded        bool         `json:"refunded"`
	RefundAttempted bool         `json:"refund_attempted"`
	RefundError     string       `json:"refund_error,omitempty"`
}

type BulkItem struct {
	EventID     snowflake.ID
	Participant identitydomain.Participant
}

type BulkResult struct {
	Index        int          `json:"index"`
	Registration Registration `json:"registration"`
}

// BulkItemError reports which batch item aborted a bulk registration.
type BulkItemError struct {
	Index int
	Err   error
}

func (e *BulkItemError) Error() string {
	return fmt.Sprintf("bulk item %d: %v", e.Index, e.Err)
}

func (e *BulkItemError) Unwrap() error {
	return e.Err
}

type ListRegistrationRequest struct {
	EventID   snowflake.ID
	Status    string
	PageToken string
	PageSize  int32
}

type ListRegistrationResponse struct {
	pagination.PageInfo
	Registrations []Registration `json:"registrations"`
}

type Service interface {
	CreateRegistration(ctx context.Context, req CreateRegistrationRequest) (Registration, error)
	CancelRegistration(ctx context.Context, id snowflake.ID, attemptRefund bool) (CancelResult, error)
	BulkRegister(ctx context.Context, items []BulkItem) ([]BulkResult, error)
	Get(ctx context.Context, id snowflake.ID) (Registration, error)
	List(ctx context.Context, req ListRegistrationRequest) (ListRegistrationResponse, error)
}

var (
	ErrEventClosed           = errors.New("event_closed")
	ErrCapacityReached       = errors.New("capacity_reached")
	ErrDuplicateRegistration = errors.New("duplicate_registration")
	ErrAmountMismatch        = errors.New("amount_mismatch")
	ErrTypeMismatch          = errors.New("type_mismatch")
	ErrBulkPaidEvent         = errors.New("bulk_paid_event")
	ErrBulkEmpty             = errors.New("bulk_empty")
	ErrBulkTooLarge          = errors.New("bulk_too_large")
	ErrRegistrationNotFound  = errors.New("registration_not_found")
	ErrInvalidStatus         = errors.New("invalid_status")
)
