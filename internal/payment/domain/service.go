package domain

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
	"gorm.io/gorm"
)

// ChargeTarget is the slice of event facts payment validation needs.
type ChargeTarget struct {
	EventID  snowflake.ID
	IsPaid   bool
	Fee      int64
	Currency string
}

type CreatePaymentRequest struct {
	Event          ChargeTarget
	RegistrationID snowflake.ID
	Participant    identitydomain.Participant
	Amount         int64
	Mode           Mode
}

type Service interface {
	// CreatePayment inserts and charges a payment inside the caller's
	// transaction. It returns a completed payment or an error.
	CreatePayment(ctx context.Context, tx *gorm.DB, req CreatePaymentRequest) (Payment, error)
	// Compensate refunds a charge whose surrounding transaction rolled back.
	Compensate(ctx context.Context, payment Payment, reason string) error
	Refund(ctx context.Context, paymentID snowflake.ID, reason string) (RefundResult, error)
	ProcessCallback(ctx context.Context, provider string, payload []byte, headers http.Header) error
	Get(ctx context.Context, id snowflake.ID) (Payment, error)
	// RetryCompensations re-attempts refunds that failed during compensation
	// and reports how many rows it settled or gave up on.
	RetryCompensations(ctx context.Context, limit int) (int, error)
}

var (
	ErrAmountMismatch         = errors.New("amount_mismatch")
	ErrPaymentFailed          = errors.New("payment_failed")
	ErrPaymentNotFound        = errors.New("payment_not_found")
	ErrPaymentNotRefundable   = errors.New("payment_not_refundable")
	ErrPaymentAlreadyRefunded = errors.New("payment_already_refunded")
	ErrRefundFailed           = errors.New("refund_failed")
	ErrInvalidMode            = errors.New("invalid_payment_mode")
	ErrGatewayNotConfigured   = errors.New("gateway_not_configured")

	ErrProviderNotFound = errors.New("payment_provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_payment_provider_config")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrInvalidPayment   = errors.New("invalid_payment_reference")
	ErrEventIgnored     = errors.New("event_ignored")
)
