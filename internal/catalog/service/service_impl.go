package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/eventreg/internal/catalog/domain"
	"github.com/smallbiznis/eventreg/internal/clock"
	"github.com/smallbiznis/eventreg/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	clk := clock.Or(p.Clock)
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateEventRequest) (domain.Event, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Event{}, domain.ErrInvalidName
	}
	if req.Capacity < 0 {
		return domain.Event{}, domain.ErrInvalidCapacity
	}
	if req.Fee < 0 || (req.IsPaid && req.Fee == 0) || (!req.IsPaid && req.Fee != 0) {
		return domain.Event{}, domain.ErrInvalidFee
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return domain.Event{}, domain.ErrInvalidCurrency
	}

	regType := domain.RegistrationType(strings.ToLower(strings.TrimSpace(req.RegistrationType)))
	switch regType {
	case "":
		regType = domain.RegistrationIndividual
	case domain.RegistrationIndividual, domain.RegistrationTeam:
	default:
		return domain.Event{}, domain.ErrInvalidRegistrationType
	}

	now := s.clock.Now()
	event := domain.Event{
		ID:               s.genID.Generate(),
		Name:             name,
		Capacity:         req.Capacity,
		Fee:              req.Fee,
		Currency:         currency,
		IsPaid:           req.IsPaid,
		Status:           domain.EventStatusDraft,
		RegistrationType: regType,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	eventSlug, err := s.uniqueSlug(ctx, name, event.ID)
	if err != nil {
		return domain.Event{}, err
	}
	event.Slug = eventSlug

	if err := s.repo.Insert(ctx, s.db, &event); err != nil {
		return domain.Event{}, err
	}

	s.log.Info("event created",
		zap.String("event_id", event.ID.String()),
		zap.String("slug", event.Slug),
		zap.Int("capacity", event.Capacity),
		zap.Bool("is_paid", event.IsPaid),
	)
	return event, nil
}

func (s *Service) uniqueSlug(ctx context.Context, name string, id snowflake.ID) (string, error) {
	base := slug.Make(name)
	if base == "" {
		return id.String(), nil
	}
	existing, err := s.repo.FindBySlug(ctx, s.db, base)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return base, nil
	}
	return base + "-" + id.String(), nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Event, error) {
	if id == 0 {
		return domain.Event{}, domain.ErrEventNotFound
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Event{}, err
	}
	if item == nil {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListEventRequest) (domain.ListEventResponse, error) {
	filter := domain.ListEventFilter{}
	if raw := strings.ToLower(strings.TrimSpace(req.Status)); raw != "" {
		status, ok := domain.ParseStatus(raw)
		if !ok {
			return domain.ListEventResponse{}, domain.ErrInvalidStatus
		}
		filter.Status = status
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: int(req.PageSize)}
	items, err := s.repo.List(ctx, s.db, filter, page)
	if err != nil {
		return domain.ListEventResponse{}, err
	}

	items, pageInfo := pagination.Page(items, page.Size(), func(event *domain.Event) pagination.Cursor {
		return pagination.NewCursor(event.ID, event.CreatedAt)
	})

	events := make([]domain.Event, 0, len(items))
	for _, item := range items {
		if item != nil {
			events = append(events, *item)
		}
	}
	return domain.ListEventResponse{Events: events, PageInfo: pageInfo}, nil
}

// UpdateStatus moves the event through its lifecycle. The row lock makes the
// change wait for in-flight registrations on the same event.
func (s *Service) UpdateStatus(ctx context.Context, id snowflake.ID, status domain.EventStatus) (domain.Event, error) {
	if _, ok := domain.ParseStatus(string(status)); !ok {
		return domain.Event{}, domain.ErrInvalidStatus
	}

	var updated domain.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := s.repo.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if event == nil {
			return domain.ErrEventNotFound
		}
		if event.Status == status {
			updated = *event
			return nil
		}
		if !domain.CanTransition(event.Status, status) {
			return domain.ErrInvalidTransition
		}

		now := s.clock.Now()
		if err := s.repo.UpdateStatus(ctx, tx, id, status, now); err != nil {
			return err
		}
		event.Status = status
		event.UpdatedAt = now
		updated = *event
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidTransition) && !errors.Is(err, domain.ErrEventNotFound) {
			s.log.Error("update event status failed", zap.String("event_id", id.String()), zap.Error(err))
		}
		return domain.Event{}, err
	}

	s.log.Info("event status updated",
		zap.String("event_id", id.String()),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}
