package service

import (
	"context"
	"errors"

	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	"github.com/smallbiznis/eventreg/internal/capacity"
	catalogdomain "github.com/smallbiznis/eventreg/internal/catalog/domain"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"github.com/smallbiznis/eventreg/internal/registration/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateRegistration validates the request, reserves capacity and collects
// payment inside one transaction. A charge taken before the transaction
// fails is refunded.
func (s *Service) CreateRegistration(ctx context.Context, req domain.CreateRegistrationRequest) (domain.Registration, error) {
	if err := req.Participant.Validate(); err != nil {
		return domain.Registration{}, err
	}
	mode, ok := paymentdomain.ParseMode(string(req.Mode))
	if !ok {
		return domain.Registration{}, paymentdomain.ErrInvalidMode
	}

	event, err := s.catalog.Get(ctx, req.EventID)
	if err != nil {
		return domain.Registration{}, err
	}
	if err := s.identity.Resolve(ctx, req.Participant); err != nil {
		return domain.Registration{}, err
	}
	if !event.Accepts(req.Participant.Kind) {
		return domain.Registration{}, domain.ErrTypeMismatch
	}
	if req.RequestedAmount != event.ExpectedAmount() {
		return domain.Registration{}, domain.ErrAmountMismatch
	}

	var (
		registration domain.Registration
		decision     capacity.Decision
		charged      paymentdomain.Payment
	)
	err = s.ledger.WithEventLock(ctx, req.EventID, func(tx *gorm.DB, locked *catalogdomain.Event) error {
		if req.RequestedAmount != locked.ExpectedAmount() {
			return domain.ErrAmountMismatch
		}

		var err error
		decision, err = s.ledger.ReserveTx(ctx, tx, locked, req.Participant, capacity.ReserveOptions{
			Pending:          locked.IsPaid,
			WaitlistDisabled: req.SkipWaitlist,
		})
		if err != nil {
			return err
		}
		if decision.Rejected() {
			return decision.Reason
		}
		registration = *decision.Registration

		if !locked.IsPaid || decision.Outcome != capacity.OutcomeConfirmed {
			return nil
		}

		charged, err = s.paymentSvc.CreatePayment(ctx, tx, paymentdomain.CreatePaymentRequest{
			Event: paymentdomain.ChargeTarget{
				EventID:  locked.ID,
				IsPaid:   locked.IsPaid,
				Fee:      locked.Fee,
				Currency: locked.Currency,
			},
			RegistrationID: registration.ID,
			Participant:    req.Participant,
			Amount:         req.RequestedAmount,
			Mode:           mode,
		})
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if err := s.repo.LinkPayment(ctx, tx, registration.ID, charged.ID, domain.StatusConfirmed, now); err != nil {
			return err
		}
		paymentID := charged.ID
		registration.PaymentID = &paymentID
		registration.Status = domain.StatusConfirmed
		registration.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.compensateCharge(ctx, charged)
		outcome := capacity.OutcomeRejected
		if !decision.Rejected() {
			s.regMetrics.IncTxError("create", err)
			outcome = "failed"
		}
		s.recordDecision(ctx, outcome, err)
		return domain.Registration{}, err
	}

	s.recordDecision(ctx, decision.Outcome, nil)
	s.log.Info("registration created",
		zap.String("registration_id", registration.ID.String()),
		zap.String("event_id", registration.EventID.String()),
		zap.String("status", string(registration.Status)),
	)

	kind, message := decisionKind(registration.Status)
	s.notify(ctx, kind, registration, message)
	metadata := map[string]any{
		"event_id":    registration.EventID.String(),
		"participant": registration.Participant().String(),
		"status":      string(registration.Status),
	}
	if registration.PaymentID != nil {
		metadata["payment_id"] = registration.PaymentID.String()
		metadata["amount"] = req.RequestedAmount
	}
	s.audit(ctx, auditdomain.ActionRegistrationCreated, registration.ID, metadata)
	return registration, nil
}

// compensateCharge refunds a charge whose registration did not commit.
func (s *Service) compensateCharge(ctx context.Context, payment paymentdomain.Payment) {
	if payment.ID == 0 || payment.Status != paymentdomain.StatusCompleted {
		return
	}
	if err := s.paymentSvc.Compensate(context.WithoutCancel(ctx), payment, "registration_rolled_back"); err != nil {
		if !errors.Is(err, paymentdomain.ErrRefundFailed) {
			s.log.Error("compensate charge", zap.String("payment_id", payment.ID.String()), zap.Error(err))
		}
	}
}
