package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/eventreg/internal/catalog/domain"
	notificationdomain "github.com/smallbiznis/eventreg/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"github.com/smallbiznis/eventreg/internal/registration/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const refundReasonCancelled = "registration_cancelled"

// CancelRegistration releases the registration's place under the event lock,
// then refunds an attached payment. A failed refund is recorded on the
// registration and never undoes the cancellation.
func (s *Service) CancelRegistration(ctx context.Context, id snowflake.ID, attemptRefund bool) (domain.CancelResult, error) {
	current, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.CancelResult{}, err
	}
	if current == nil {
		return domain.CancelResult{}, domain.ErrRegistrationNotFound
	}
	if !current.Status.Active() {
		return domain.CancelResult{Registration: *current, AlreadyFinal: true}, nil
	}

	var (
		cancelled    domain.Registration
		alreadyFinal bool
	)
	err = s.ledger.WithEventLock(ctx, current.EventID, func(tx *gorm.DB, _ *catalogdomain.Event) error {
		locked, err := s.repo.LockByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrRegistrationNotFound
		}
		if !locked.Status.Active() {
			alreadyFinal = true
			cancelled = *locked
			return nil
		}
		if err := s.ledger.Release(ctx, tx, locked); err != nil {
			return err
		}
		cancelled = *locked
		return nil
	})
	if err != nil {
		s.regMetrics.IncTxError("cancel", err)
		return domain.CancelResult{}, err
	}
	if alreadyFinal {
		return domain.CancelResult{Registration: cancelled, AlreadyFinal: true}, nil
	}

	s.log.Info("registration cancelled",
		zap.String("registration_id", cancelled.ID.String()),
		zap.String("event_id", cancelled.EventID.String()),
	)
	s.audit(ctx, auditdomain.ActionRegistrationCancelled, cancelled.ID, map[string]any{
		"event_id":       cancelled.EventID.String(),
		"attempt_refund": attemptRefund,
	})

	result := domain.CancelResult{Registration: cancelled}
	if attemptRefund && cancelled.PaymentID != nil {
		result = s.refund(ctx, result)
	}

	switch {
	case result.Refunded:
		s.notify(ctx, notificationdomain.KindRegistrationRefunded, result.Registration, "Your registration was cancelled and your payment refunded.")
	case result.RefundAttempted:
		s.notify(ctx, notificationdomain.KindRefundFailed, result.Registration, "Your registration was cancelled. The refund could not be processed yet.")
	default:
		s.notify(ctx, notificationdomain.KindRegistrationCancelled, result.Registration, "Your registration was cancelled.")
	}
	return result, nil
}

func (s *Service) refund(ctx context.Context, result domain.CancelResult) domain.CancelResult {
	registration := result.Registration
	paymentID := *registration.PaymentID

	payment, err := s.paymentSvc.Get(ctx, paymentID)
	if err != nil {
		s.log.Warn("load payment for refund", zap.String("payment_id", paymentID.String()), zap.Error(err))
		return s.recordRefundFailure(ctx, result, err)
	}
	switch payment.Status {
	case paymentdomain.StatusCompleted:
		if _, err := s.paymentSvc.Refund(ctx, paymentID, refundReasonCancelled); err != nil {
			return s.recordRefundFailure(ctx, result, err)
		}
	case paymentdomain.StatusRefunded:
		// refunded out of band, only the registration is behind
	default:
		return result
	}

	now := s.clock.Now()
	if err := s.repo.RecordRefundOutcome(ctx, s.db, registration.ID, domain.StatusRefunded, nil, now); err != nil {
		s.log.Error("record refund outcome", zap.String("registration_id", registration.ID.String()), zap.Error(err))
	}
	registration.Status = domain.StatusRefunded
	registration.RefundAttempted = true
	registration.UpdatedAt = now

	s.audit(ctx, auditdomain.ActionRegistrationRefunded, registration.ID, map[string]any{
		"payment_id": paymentID.String(),
		"amount":     payment.Amount,
		"currency":   payment.Currency,
	})
	result.Registration = registration
	result.Refunded = true
	result.RefundAttempted = true
	return result
}

func (s *Service) recordRefundFailure(ctx context.Context, result domain.CancelResult, refundErr error) domain.CancelResult {
	registration := result.Registration
	message := refundErr.Error()
	now := s.clock.Now()

	s.log.Warn("refund failed after cancellation",
		zap.String("registration_id", registration.ID.String()),
		zap.Error(refundErr),
	)
	if err := s.repo.RecordRefundOutcome(ctx, s.db, registration.ID, domain.StatusCancelled, &message, now); err != nil {
		s.log.Error("record refund outcome", zap.String("registration_id", registration.ID.String()), zap.Error(err))
	}
	registration.RefundAttempted = true
	registration.RefundError = &message
	registration.UpdatedAt = now

	s.audit(ctx, auditdomain.ActionRefundFailed, registration.ID, map[string]any{
		"payment_id": registration.PaymentID.String(),
		"error":      message,
	})
	result.Registration = registration
	result.RefundAttempted = true
	result.RefundError = message
	return result
}
