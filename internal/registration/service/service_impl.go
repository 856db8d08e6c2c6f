package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	"github.com/smallbiznis/eventreg/internal/capacity"
	catalogdomain "github.com/smallbiznis/eventreg/internal/catalog/domain"
	"github.com/smallbiznis/eventreg/internal/clock"
	"github.com/smallbiznis/eventreg/internal/config"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
	notificationdomain "github.com/smallbiznis/eventreg/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/eventreg/internal/observability/metrics"
	"github.com/smallbiznis/eventreg/internal/observability/obscontext"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"github.com/smallbiznis/eventreg/internal/registration/domain"
	"github.com/smallbiznis/eventreg/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Policy     *config.PolicyHolder
	Ledger     *capacity.Ledger
	Repo       domain.Repository
	Catalog    catalogdomain.Service
	Identity   identitydomain.Service
	PaymentSvc paymentdomain.Service
	Notifier   notificationdomain.Sink         `optional:"true"`
	AuditSvc   auditdomain.Service             `optional:"true"`
	ObsMetrics *obsmetrics.Metrics             `optional:"true"`
	RegMetrics *obsmetrics.RegistrationMetrics `optional:"true"`
	Clock      clock.Clock                     `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	policy     *config.PolicyHolder
	ledger     *capacity.Ledger
	repo       domain.Repository
	catalog    catalogdomain.Service
	identity   identitydomain.Service
	paymentSvc paymentdomain.Service
	notifier   notificationdomain.Sink
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
	regMetrics *obsmetrics.RegistrationMetrics
	clock      clock.Clock
}

func New(p Params) domain.Service {
	c := clock.Or(p.Clock)
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("registration.service"),
		policy:     p.Policy,
		ledger:     p.Ledger,
		repo:       p.Repo,
		catalog:    p.Catalog,
		identity:   p.Identity,
		paymentSvc: p.PaymentSvc,
		notifier:   p.Notifier,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
		regMetrics: p.RegMetrics,
		clock:      c,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Registration, error) {
	registration, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Registration{}, err
	}
	if registration == nil {
		return domain.Registration{}, domain.ErrRegistrationNotFound
	}
	return *registration, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRegistrationRequest) (domain.ListRegistrationResponse, error) {
	if _, err := s.catalog.Get(ctx, req.EventID); err != nil {
		return domain.ListRegistrationResponse{}, err
	}

	filter := domain.ListFilter{EventID: req.EventID}
	if raw := strings.ToLower(strings.TrimSpace(req.Status)); raw != "" {
		status, ok := domain.ParseStatus(raw)
		if !ok {
			return domain.ListRegistrationResponse{}, domain.ErrInvalidStatus
		}
		filter.Status = status
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: int(req.PageSize)}
	items, err := s.repo.List(ctx, s.db, filter, page)
	if err != nil {
		return domain.ListRegistrationResponse{}, err
	}

	items, pageInfo := pagination.Page(items, page.Size(), func(registration *domain.Registration) pagination.Cursor {
		return pagination.NewCursor(registration.ID, registration.CreatedAt)
	})

	registrations := make([]domain.Registration, 0, len(items))
	for _, item := range items {
		if item != nil {
			registrations = append(registrations, *item)
		}
	}
	return domain.ListRegistrationResponse{Registrations: registrations, PageInfo: pageInfo}, nil
}

// notify hands a notification to the sink. Delivery problems never reach the caller.
func (s *Service) notify(ctx context.Context, kind notificationdomain.Kind, registration domain.Registration, message string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(context.WithoutCancel(ctx), notificationdomain.Notification{
		Kind:           kind,
		Participant:    registration.Participant(),
		EventID:        registration.EventID,
		RegistrationID: registration.ID,
		Message:        message,
		OccurredAt:     s.clock.Now(),
	})
}

func (s *Service) audit(ctx context.Context, action string, registrationID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	entry := auditdomain.Entry{
		Action:     action,
		TargetType: auditdomain.TargetRegistration,
		TargetID:   registrationID.String(),
		Metadata:   metadata,
	}
	// calls without a request actor come from the participant surface
	if ctxType, _ := obscontext.ActorFromContext(ctx); ctxType == "" {
		entry.ActorType = auditdomain.ActorTypeParticipant
	}
	_ = s.auditSvc.Record(ctx, entry)
}

func (s *Service) recordDecision(ctx context.Context, outcome capacity.Outcome, err error) {
	if s.obsMetrics == nil {
		return
	}
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	s.obsMetrics.RecordRegistration(ctx, string(outcome), reason)
}

func decisionKind(status domain.Status) (notificationdomain.Kind, string) {
	if status == domain.StatusWaitlisted {
		return notificationdomain.KindRegistrationWaitlisted, "The event is full. You have been added to the waitlist."
	}
	return notificationdomain.KindRegistrationConfirmed, "Your registration is confirmed."
}
