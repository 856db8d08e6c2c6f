package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/eventreg/internal/catalog/domain"
	"github.com/smallbiznis/eventreg/internal/observability/obscontext"
	"github.com/smallbiznis/eventreg/pkg/db/pagination"
)

type createEventRequest struct {
	Name             string `json:"name"`
	Capacity         int    `json:"capacity"`
	Fee              int64  `json:"fee"`
	Currency         string `json:"currency"`
	IsPaid           bool   `json:"is_paid"`
	RegistrationType string `json:"registration_type"`
}

type updateEventStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) CreateEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.Create(c.Request.Context(), catalogdomain.CreateEventRequest{
		Name:             strings.TrimSpace(req.Name),
		Capacity:         req.Capacity,
		Fee:              req.Fee,
		Currency:         strings.TrimSpace(req.Currency),
		IsPaid:           req.IsPaid,
		RegistrationType: strings.TrimSpace(req.RegistrationType),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditEvent(c, auditdomain.ActionEventCreated, resp, map[string]any{
		"name":     resp.Name,
		"capacity": resp.Capacity,
		"is_paid":  resp.IsPaid,
		"fee":      resp.Fee,
	})

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListEvents(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.List(c.Request.Context(), catalogdomain.ListEventRequest{
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  int32(query.PageSize),
		Status:    strings.TrimSpace(query.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetEvent(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	resp, err := s.catalogSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateEventStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req updateEventStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	status, ok := catalogdomain.ParseStatus(strings.TrimSpace(req.Status))
	if !ok {
		AbortWithError(c, catalogdomain.ErrInvalidStatus)
		return
	}

	resp, err := s.catalogSvc.UpdateStatus(c.Request.Context(), id, status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditEvent(c, auditdomain.ActionEventStatusChanged, resp, map[string]any{
		"status": string(resp.Status),
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) auditEvent(c *gin.Context, action string, event catalogdomain.Event, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	ctx := c.Request.Context()
	_, actorID := obscontext.ActorFromContext(ctx)
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeOperator,
		ActorID:    actorID,
		Action:     action,
		TargetType: auditdomain.TargetEvent,
		TargetID:   event.ID.String(),
		Metadata:   metadata,
	})
}
