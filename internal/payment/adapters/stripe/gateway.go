package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
)

const defaultBaseURL = "https://api.stripe.com"

// Gateway creates PaymentIntents and refunds through the Stripe REST API.
// Charges come back pending; completion arrives through the webhook.
type Gateway struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewGateway(apiKey, baseURL string, client *http.Client) *Gateway {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Gateway{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (g *Gateway) Provider() string {
	return Provider
}

type apiObject struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Gateway) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.ChargeResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("metadata[payment_id]", req.PaymentID.String())
	form.Set("metadata[event_id]", req.EventID.String())
	form.Set("metadata[participant]", req.Participant.String())

	var intent apiObject
	if err := g.post(ctx, "/v1/payment_intents", req.PaymentID.String(), form, &intent); err != nil {
		return paymentdomain.ChargeResult{}, err
	}

	switch intent.Status {
	case "succeeded":
		return paymentdomain.ChargeResult{Status: paymentdomain.StatusCompleted, TransactionID: intent.ID}, nil
	case "canceled":
		return paymentdomain.ChargeResult{Status: paymentdomain.StatusFailed, TransactionID: intent.ID, FailureReason: "canceled"}, nil
	default:
		return paymentdomain.ChargeResult{Status: paymentdomain.StatusPending, TransactionID: intent.ID}, nil
	}
}

func (g *Gateway) Refund(ctx context.Context, req paymentdomain.GatewayRefundRequest) (paymentdomain.GatewayRefundResult, error) {
	form := url.Values{}
	form.Set("payment_intent", req.TransactionID)
	if req.Amount > 0 {
		form.Set("amount", strconv.FormatInt(req.Amount, 10))
	}
	form.Set("metadata[payment_id]", req.PaymentID.String())
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		form.Set("metadata[reason]", reason)
	}

	var refund apiObject
	if err := g.post(ctx, "/v1/refunds", "refund-"+req.PaymentID.String(), form, &refund); err != nil {
		return paymentdomain.GatewayRefundResult{}, err
	}
	if refund.Status == "failed" || refund.Status == "canceled" {
		return paymentdomain.GatewayRefundResult{}, fmt.Errorf("stripe refund %s: %s", refund.ID, refund.Status)
	}
	return paymentdomain.GatewayRefundResult{TransactionID: refund.ID}, nil
}

func (g *Gateway) post(ctx context.Context, path, idempotencyKey string, form url.Values, out *apiObject) error {
	if g.apiKey == "" {
		return paymentdomain.ErrGatewayNotConfigured
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	httpReq.SetBasicAuth(g.apiKey, "")
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("stripe %s: decode response: %w", path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if out.Error != nil {
			return fmt.Errorf("stripe %s: %s", path, out.Error.Code+" "+out.Error.Message)
		}
		return fmt.Errorf("stripe %s: status %d", path, resp.StatusCode)
	}
	return nil
}
