// Package offline settles payments collected outside the platform, such as
// cash at the registration desk.
package offline

import (
	"context"

	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
)

const Provider = "offline"

type Gateway struct{}

func NewGateway() *Gateway {
	return &Gateway{}
}

func (g *Gateway) Provider() string {
	return Provider
}

func (g *Gateway) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.ChargeResult, error) {
	return paymentdomain.ChargeResult{
		Status:        paymentdomain.StatusCompleted,
		TransactionID: "offline_" + req.PaymentID.String(),
	}, nil
}

func (g *Gateway) Refund(ctx context.Context, req paymentdomain.GatewayRefundRequest) (paymentdomain.GatewayRefundResult, error) {
	return paymentdomain.GatewayRefundResult{
		TransactionID: "offline_refund_" + req.PaymentID.String(),
	}, nil
}
