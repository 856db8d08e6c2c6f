package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
)

type ChargeRequest struct {
	PaymentID   snowflake.ID
	EventID     snowflake.ID
	Participant identitydomain.Participant
	Amount      int64
	Currency    string
	Mode        Mode
}

// ChargeResult carries the gateway verdict. Only StatusCompleted is trusted
// as money taken; StatusPending means completion arrives by callback.
type ChargeResult struct {
	Status        Status
	TransactionID string
	FailureReason string
}

type GatewayRefundRequest struct {
	PaymentID     snowflake.ID
	TransactionID string
	Amount        int64
	Currency      string
	Reason        string
}

type GatewayRefundResult struct {
	TransactionID string
}

// Gateway moves money for one provider.
type Gateway interface {
	Provider() string
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, req GatewayRefundRequest) (GatewayRefundResult, error)
}

type AdapterConfig struct {
	Provider string
	Config   map[string]any
}

// WebhookAdapter verifies and decodes provider callbacks.
type WebhookAdapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (WebhookAdapter, error)
}
