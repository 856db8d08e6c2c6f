package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
)

const (
	Provider = "stripe"

	signatureHeaderName = "Stripe-Signature"
	defaultTolerance    = 5 * time.Minute
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return Provider
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.WebhookAdapter, error) {
	secret, _ := cfg.Config["webhook_secret"].(string)
	if strings.TrimSpace(secret) == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return NewAdapter(strings.TrimSpace(secret)), nil
}

// Adapter verifies Stripe webhook signatures and maps payment intent and
// charge events onto payment events. Payments are matched through the
// payment_id metadata key the gateway sets on every intent.
type Adapter struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewAdapter(secret string) *Adapter {
	return &Adapter{secret: []byte(secret), tolerance: defaultTolerance, now: time.Now}
}

func (a *Adapter) Verify(_ context.Context, payload []byte, headers http.Header) error {
	sig, err := parseSignatureHeader(headers.Get(signatureHeaderName))
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	if a.tolerance > 0 {
		age := a.now().Sub(time.Unix(sig.timestamp, 0))
		if age > a.tolerance || age < -a.tolerance {
			return paymentdomain.ErrInvalidSignature
		}
	}

	expected := sign(a.secret, sig.timestamp, payload)
	for _, candidate := range sig.v1 {
		if hmac.Equal(candidate, expected) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

type signature struct {
	timestamp int64
	v1        [][]byte
}

// parseSignatureHeader reads "t=<unix>,v1=<hex>[,v1=<hex>...]". Other
// schemes, such as v0, are skipped.
func parseSignatureHeader(header string) (signature, error) {
	var sig signature
	for _, field := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return signature{}, err
			}
			sig.timestamp = ts
		case "v1":
			if mac, err := hex.DecodeString(value); err == nil {
				sig.v1 = append(sig.v1, mac)
			}
		}
	}
	if sig.timestamp == 0 || len(sig.v1) == 0 {
		return signature{}, errors.New("incomplete stripe signature")
	}
	return sig, nil
}

func sign(secret []byte, timestamp int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return mac.Sum(nil)
}

var eventTypes = map[string]string{
	"payment_intent.succeeded":      paymentdomain.EventTypePaymentSucceeded,
	"payment_intent.payment_failed": paymentdomain.EventTypePaymentFailed,
	"payment_intent.canceled":       paymentdomain.EventTypePaymentFailed,
	"charge.refunded":               paymentdomain.EventTypeRefunded,
}

type envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// object covers the PaymentIntent and Charge fields read here.
type object struct {
	ID               string            `json:"id"`
	PaymentIntent    string            `json:"payment_intent"`
	Amount           int64             `json:"amount"`
	AmountReceived   int64             `json:"amount_received"`
	AmountRefunded   int64             `json:"amount_refunded"`
	Currency         string            `json:"currency"`
	Created          int64             `json:"created"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func (a *Adapter) Parse(_ context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(env.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	eventType, ok := eventTypes[strings.TrimSpace(env.Type)]
	if !ok {
		return nil, paymentdomain.ErrEventIgnored
	}

	var obj object
	if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	paymentID, err := snowflake.ParseString(strings.TrimSpace(obj.Metadata["payment_id"]))
	if err != nil || paymentID <= 0 {
		return nil, paymentdomain.ErrInvalidPayment
	}

	event := &paymentdomain.PaymentEvent{
		Provider:          Provider,
		ProviderEventID:   env.ID,
		ProviderPaymentID: obj.ID,
		Type:              eventType,
		PaymentID:         paymentID,
		Amount:            firstPositive(obj.AmountReceived, obj.Amount),
		Currency:          strings.ToUpper(strings.TrimSpace(obj.Currency)),
		OccurredAt:        a.occurredAt(obj.Created, env.Created),
		RawPayload:        payload,
	}
	switch eventType {
	case paymentdomain.EventTypeRefunded:
		event.Amount = firstPositive(obj.AmountRefunded, obj.Amount)
		if obj.PaymentIntent != "" {
			event.ProviderPaymentID = obj.PaymentIntent
		}
	case paymentdomain.EventTypePaymentFailed:
		if e := obj.LastPaymentError; e != nil {
			event.FailureReason = firstNonEmpty(e.Code, e.Message)
		}
	}
	return event, nil
}

func (a *Adapter) occurredAt(unix ...int64) time.Time {
	for _, ts := range unix {
		if ts > 0 {
			return time.Unix(ts, 0).UTC()
		}
	}
	return a.now().UTC()
}

func firstPositive(values ...int64) int64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
