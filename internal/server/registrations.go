package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	registrationdomain "github.com/smallbiznis/eventreg/internal/registration/domain"
	"github.com/smallbiznis/eventreg/pkg/db/pagination"
)

type participantRequest struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (p participantRequest) toDomain() (identitydomain.Participant, error) {
	kind, ok := identitydomain.ParseKind(p.Kind)
	if !ok {
		return identitydomain.Participant{}, identitydomain.ErrInvalidParticipant
	}
	id, err := parseID(p.ID)
	if err != nil {
		return identitydomain.Participant{}, identitydomain.ErrInvalidParticipant
	}
	return identitydomain.Participant{Kind: kind, ID: id}, nil
}

type createRegistrationRequest struct {
	Participant  participantRequest `json:"participant"`
	Amount       int64              `json:"amount"`
	PaymentMode  string             `json:"payment_mode"`
	SkipWaitlist bool               `json:"skip_waitlist"`
}

type bulkRegisterRequest struct {
	Items []struct {
		EventID     string             `json:"event_id"`
		Participant participantRequest `json:"participant"`
	} `json:"items"`
}

type cancelRegistrationRequest struct {
	Refund *bool `json:"refund"`
}

func (s *Server) CreateRegistration(c *gin.Context) {
	eventID, ok := pathID(c)
	if !ok {
		return
	}

	var req createRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	participant, err := req.Participant.toDomain()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.registrationSvc.CreateRegistration(c.Request.Context(), registrationdomain.CreateRegistrationRequest{
		EventID:         eventID,
		Participant:     participant,
		RequestedAmount: req.Amount,
		Mode:            paymentdomain.Mode(strings.ToLower(strings.TrimSpace(req.PaymentMode))),
		SkipWaitlist:    req.SkipWaitlist,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListRegistrations(c *gin.Context) {
	eventID, ok := pathID(c)
	if !ok {
		return
	}

	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.registrationSvc.List(c.Request.Context(), registrationdomain.ListRegistrationRequest{
		EventID:   eventID,
		Status:    strings.TrimSpace(query.Status),
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) BulkRegister(c *gin.Context) {
	var req bulkRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items := make([]registrationdomain.BulkItem, 0, len(req.Items))
	for i, item := range req.Items {
		eventID, err := parseID(item.EventID)
		if err != nil {
			AbortWithError(c, &registrationdomain.BulkItemError{Index: i, Err: ErrInvalidRequest})
			return
		}
		participant, err := item.Participant.toDomain()
		if err != nil {
			AbortWithError(c, &registrationdomain.BulkItemError{Index: i, Err: err})
			return
		}
		items = append(items, registrationdomain.BulkItem{EventID: eventID, Participant: participant})
	}

	resp, err := s.registrationSvc.BulkRegister(c.Request.Context(), items)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetRegistration(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := s.registrationSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelRegistration(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	// An empty body cancels with a refund attempt.
	var req cancelRegistrationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	refund := true
	if req.Refund != nil {
		refund = *req.Refund
	}

	resp, err := s.registrationSvc.CancelRegistration(c.Request.Context(), id, refund)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
