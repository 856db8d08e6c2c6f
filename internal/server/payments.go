package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type refundPaymentRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) GetPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := s.paymentSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// RefundPayment is the operator refund. It does not touch the registration;
// cancelling through the registration endpoint is the participant path.
func (s *Server) RefundPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req refundPaymentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "operator_refund"
	}

	resp, err := s.paymentSvc.Refund(c.Request.Context(), id, reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
