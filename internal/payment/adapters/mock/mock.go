// Package mock provides an in-process gateway and a signed webhook format
// for local runs and tests.
package mock

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
)

const (
	Provider        = "mock"
	SignatureHeader = "X-Mock-Signature"
)

// Gateway completes every charge synchronously unless configured otherwise.
type Gateway struct {
	mu sync.Mutex

	// Async makes Charge return pending; completion arrives by callback.
	Async bool
	// OnPending is invoked for async charges with the provider payment id.
	OnPending func(req paymentdomain.ChargeRequest, transactionID string)
	ChargeErr error
	RefundErr error

	charges int
	refunds int
}

func NewGateway() *Gateway {
	return &Gateway{}
}

func (g *Gateway) Provider() string {
	return Provider
}

func (g *Gateway) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.ChargeResult, error) {
	g.mu.Lock()
	g.charges++
	async := g.Async
	onPending := g.OnPending
	chargeErr := g.ChargeErr
	g.mu.Unlock()

	if chargeErr != nil {
		return paymentdomain.ChargeResult{}, chargeErr
	}

	txnID := "mock_txn_" + req.PaymentID.String()
	if async {
		if onPending != nil {
			onPending(req, txnID)
		}
		return paymentdomain.ChargeResult{Status: paymentdomain.StatusPending, TransactionID: txnID}, nil
	}
	return paymentdomain.ChargeResult{Status: paymentdomain.StatusCompleted, TransactionID: txnID}, nil
}

func (g *Gateway) Refund(ctx context.Context, req paymentdomain.GatewayRefundRequest) (paymentdomain.GatewayRefundResult, error) {
	g.mu.Lock()
	g.refunds++
	refundErr := g.RefundErr
	g.mu.Unlock()

	if refundErr != nil {
		return paymentdomain.GatewayRefundResult{}, refundErr
	}
	return paymentdomain.GatewayRefundResult{TransactionID: "mock_refund_" + req.PaymentID.String()}, nil
}

func (g *Gateway) SetChargeErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ChargeErr = err
}

func (g *Gateway) SetRefundErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.RefundErr = err
}

func (g *Gateway) Charges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.charges
}

func (g *Gateway) Refunds() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunds
}

// Event is the mock callback wire format.
type Event struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	PaymentID     string `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	FailureReason string `json:"failure_reason,omitempty"`
	Created       int64  `json:"created"`
}

// Sign returns the signature header value for payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return Provider
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.WebhookAdapter, error) {
	secret, _ := cfg.Config["webhook_secret"].(string)
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return &Adapter{secret: secret}, nil
}

type Adapter struct {
	secret string
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get(SignatureHeader))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if !hmac.Equal([]byte(signature), []byte(Sign(a.secret, payload))) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var eventType string
	switch strings.TrimSpace(event.Type) {
	case "payment.succeeded":
		eventType = paymentdomain.EventTypePaymentSucceeded
	case "payment.failed":
		eventType = paymentdomain.EventTypePaymentFailed
	case "payment.refunded":
		eventType = paymentdomain.EventTypeRefunded
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	paymentID, err := snowflake.ParseString(strings.TrimSpace(event.PaymentID))
	if err != nil || paymentID == 0 {
		return nil, paymentdomain.ErrInvalidPayment
	}

	occurredAt := time.Now().UTC()
	if event.Created > 0 {
		occurredAt = time.Unix(event.Created, 0).UTC()
	}

	return &paymentdomain.PaymentEvent{
		Provider:          Provider,
		ProviderEventID:   event.ID,
		ProviderPaymentID: strings.TrimSpace(event.TransactionID),
		Type:              eventType,
		PaymentID:         paymentID,
		Amount:            event.Amount,
		Currency:          strings.ToUpper(strings.TrimSpace(event.Currency)),
		FailureReason:     event.FailureReason,
		OccurredAt:        occurredAt,
		RawPayload:        payload,
	}, nil
}

var ErrDeclined = errors.New("card_declined")
