package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	"github.com/smallbiznis/eventreg/pkg/db/pagination"
)

type auditLogFilter struct {
	pagination.Pagination
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
	TargetID   string `form:"target_id"`
	ActorType  string `form:"actor_type"`
	ActorID    string `form:"actor_id"`
	StartAt    string `form:"start_at"`
	EndAt      string `form:"end_at"`
}

func (f auditLogFilter) request() (auditdomain.ListAuditLogRequest, error) {
	req := auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: strings.TrimSpace(f.PageToken), PageSize: f.PageSize},
		Action:     strings.TrimSpace(f.Action),
		TargetType: strings.TrimSpace(f.TargetType),
		TargetID:   strings.TrimSpace(f.TargetID),
		ActorType:  strings.TrimSpace(f.ActorType),
		ActorID:    strings.TrimSpace(f.ActorID),
	}
	var err error
	if req.StartAt, err = timeParam("start_at", f.StartAt); err != nil {
		return req, err
	}
	req.EndAt, err = timeParam("end_at", f.EndAt)
	return req, err
}

// ListAuditLogs pages through the audit trail, newest first.
func (s *Server) ListAuditLogs(c *gin.Context) {
	if s.auditSvc == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	var filter auditLogFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req, err := filter.request()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.AuditLogs, "page_info": resp.PageInfo})
}
