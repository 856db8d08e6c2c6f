package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	"github.com/smallbiznis/eventreg/internal/audit/masking"
	"github.com/smallbiznis/eventreg/internal/observability/obscontext"
	"github.com/smallbiznis/eventreg/pkg/db/pagination"
	"github.com/smallbiznis/eventreg/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
	Now   func() time.Time `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
	now   func() time.Time
}

func NewService(p Params) auditdomain.Service {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
		now:   now,
	}
}

// Record stamps the entry with the request's actor, origin and correlation
// data, masks sensitive metadata, then stores it outside any caller tx.
func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	action := strings.TrimSpace(entry.Action)
	if !validAction(action) {
		return auditdomain.ErrInvalidAction
	}

	actorType, actorID := entry.ActorType, strings.TrimSpace(entry.ActorID)
	if actorType == "" {
		ctxType, ctxID := obscontext.ActorFromContext(ctx)
		actorType = auditdomain.ActorType(ctxType)
		if actorID == "" {
			actorID = ctxID
		}
	}
	if actorType == "" {
		actorType = auditdomain.ActorTypeSystem
	}

	targetType := entry.TargetType
	if targetType == "" {
		targetType = auditdomain.TargetType(strings.SplitN(action, ".", 2)[0])
	}

	metadata := masking.Metadata(entry.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}
	if correlationID := correlation.ExtractCorrelationID(ctx); correlationID != "" {
		metadata["correlation_id"] = correlationID
	}

	row := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  string(actorType),
		ActorID:    optional(actorID),
		Action:     action,
		TargetType: string(targetType),
		TargetID:   optional(entry.TargetID),
		Metadata:   datatypes.JSONMap(metadata),
		IPAddress:  optional(obscontext.IPAddressFromContext(ctx)),
		UserAgent:  optional(obscontext.UserAgentFromContext(ctx)),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, &row); err != nil {
		s.log.Warn("audit write failed",
			zap.String("action", action),
			zap.String("target_type", row.TargetType),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		if _, err := pagination.DecodeCursor(token); err != nil {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
	}

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		Pagination: req.Pagination,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorType:  req.ActorType,
		ActorID:    req.ActorID,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	items, pageInfo := pagination.Page(items, req.Size(), func(item *auditdomain.AuditLog) pagination.Cursor {
		return pagination.NewCursor(item.ID, item.CreatedAt)
	})
	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		logs = append(logs, *item)
	}
	return auditdomain.ListAuditLogResponse{AuditLogs: logs, PageInfo: pageInfo}, nil
}

// validAction accepts "<target>.<verb>" with both halves present.
func validAction(action string) bool {
	target, verb, ok := strings.Cut(action, ".")
	return ok && target != "" && verb != "" && !strings.ContainsAny(action, " \t")
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
