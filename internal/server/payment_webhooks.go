package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	"github.com/smallbiznis/eventreg/internal/observability/obscontext"
)

const maxWebhookPayload = 1 << 20

// HandlePaymentWebhook hands a signed gateway callback to the payment
// service. The raw body is passed through untouched for signature checks and
// everything the callback changes is attributed to the gateway.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	if provider == "" {
		AbortWithError(c, newValidationError("provider", "invalid_provider", "invalid provider"))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayload+1))
	switch {
	case err != nil:
		AbortWithError(c, invalidRequestError())
		return
	case len(payload) > maxWebhookPayload:
		AbortWithError(c, newValidationError("body", "payload_too_large", "webhook payload too large"))
		return
	}

	ctx := obscontext.WithActor(c.Request.Context(), string(auditdomain.ActorTypeGateway), provider)
	if err := s.paymentSvc.ProcessCallback(ctx, provider, payload, c.Request.Header); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
