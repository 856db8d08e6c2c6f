package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	"github.com/smallbiznis/eventreg/internal/capacity"
	catalogdomain "github.com/smallbiznis/eventreg/internal/catalog/domain"
	"github.com/smallbiznis/eventreg/internal/registration/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BulkRegister reserves every item in one transaction. Any rejected item
// rolls back the whole batch. Paid events are not accepted in bulk.
func (s *Service) BulkRegister(ctx context.Context, items []domain.BulkItem) ([]domain.BulkResult, error) {
	if len(items) == 0 {
		return nil, domain.ErrBulkEmpty
	}
	if limit := s.policy.Get().BulkMaxItems; limit > 0 && len(items) > limit {
		return nil, domain.ErrBulkTooLarge
	}

	events := map[snowflake.ID]catalogdomain.Event{}
	eventIDs := make([]snowflake.ID, 0, len(items))
	for i, item := range items {
		if err := item.Participant.Validate(); err != nil {
			return nil, &domain.BulkItemError{Index: i, Err: err}
		}
		event, ok := events[item.EventID]
		if !ok {
			var err error
			event, err = s.catalog.Get(ctx, item.EventID)
			if err != nil {
				return nil, &domain.BulkItemError{Index: i, Err: err}
			}
			events[item.EventID] = event
			eventIDs = append(eventIDs, item.EventID)
		}
		if event.IsPaid {
			return nil, &domain.BulkItemError{Index: i, Err: domain.ErrBulkPaidEvent}
		}
		if !event.Accepts(item.Participant.Kind) {
			return nil, &domain.BulkItemError{Index: i, Err: domain.ErrTypeMismatch}
		}
		if err := s.identity.Resolve(ctx, item.Participant); err != nil {
			return nil, &domain.BulkItemError{Index: i, Err: err}
		}
	}

	results := make([]domain.BulkResult, 0, len(items))
	err := s.ledger.WithEventLocks(ctx, eventIDs, func(tx *gorm.DB, locked map[snowflake.ID]*catalogdomain.Event) error {
		results = results[:0]
		for i, item := range items {
			event := locked[item.EventID]
			if event.IsPaid {
				return &domain.BulkItemError{Index: i, Err: domain.ErrBulkPaidEvent}
			}
			decision, err := s.ledger.ReserveTx(ctx, tx, event, item.Participant, capacity.ReserveOptions{})
			if err != nil {
				return &domain.BulkItemError{Index: i, Err: err}
			}
			if decision.Rejected() {
				return &domain.BulkItemError{Index: i, Err: decision.Reason}
			}
			results = append(results, domain.BulkResult{Index: i, Registration: *decision.Registration})
		}
		return nil
	})
	if err != nil {
		s.regMetrics.IncTxError("bulk", err)
		return nil, err
	}

	s.log.Info("bulk registration committed",
		zap.Int("items", len(results)),
		zap.Int("events", len(eventIDs)),
	)
	ids := make([]string, 0, len(results))
	for _, result := range results {
		s.recordDecision(ctx, outcomeFor(result.Registration.Status), nil)
		kind, message := decisionKind(result.Registration.Status)
		s.notify(ctx, kind, result.Registration, message)
		ids = append(ids, result.Registration.ID.String())
	}
	if len(results) > 0 {
		s.audit(ctx, auditdomain.ActionBulkRegistered, results[0].Registration.ID, map[string]any{
			"items":            len(results),
			"registration_ids": ids,
		})
	}
	return results, nil
}

func outcomeFor(status domain.Status) capacity.Outcome {
	if status == domain.StatusWaitlisted {
		return capacity.OutcomeWaitlisted
	}
	return capacity.OutcomeConfirmed
}
