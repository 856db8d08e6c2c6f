package service

import (
	"context"
	"errors"
	"time"

	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	"github.com/smallbiznis/eventreg/internal/config"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultCompensationMaxAttempts = 10
	defaultCompensationBackoff     = 30 * time.Second
	defaultCompensationMaxBackoff  = time.Hour

	// compensationLease keeps a claimed row away from other workers while
	// its gateway refund is in flight.
	compensationLease = 5 * time.Minute
)

type compensationRetry struct {
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
}

func newCompensationRetry(cfg config.PaymentConfig) compensationRetry {
	retry := compensationRetry{
		maxAttempts: cfg.CompensationMaxAttempts,
		backoff:     cfg.CompensationBackoff,
		maxBackoff:  cfg.CompensationMaxBackoff,
	}
	if retry.maxAttempts <= 0 {
		retry.maxAttempts = defaultCompensationMaxAttempts
	}
	if retry.backoff <= 0 {
		retry.backoff = defaultCompensationBackoff
	}
	if retry.maxBackoff <= 0 {
		retry.maxBackoff = defaultCompensationMaxBackoff
	}
	return retry
}

// queueCompensation persists a failed compensating refund so the retry job
// can settle it. The first attempt has already happened.
func (s *Service) queueCompensation(ctx context.Context, payment paymentdomain.Payment, reason string, cause error) {
	if payment.TransactionID == nil {
		return
	}
	now := s.clock.Now()
	lastError := cause.Error()
	compensation := paymentdomain.Compensation{
		ID:            s.genID.Generate(),
		PaymentID:     payment.ID,
		EventID:       payment.EventID,
		Provider:      payment.Provider,
		TransactionID: *payment.TransactionID,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Reason:        reason,
		Status:        paymentdomain.CompensationPending,
		Attempts:      1,
		LastError:     &lastError,
		NextAttemptAt: now.Add(paymentdomain.RetryBackoff(s.retry.backoff, s.retry.maxBackoff, 1)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertCompensation(context.WithoutCancel(ctx), s.db, &compensation); err != nil {
		s.log.Error("queue compensation failed",
			zap.String("payment_id", payment.ID.String()),
			zap.String("transaction_id", *payment.TransactionID),
			zap.Error(err),
		)
		return
	}
	s.audit(ctx, auditdomain.ActionCompensationQueued, payment.ID, map[string]any{
		"reason":         reason,
		"amount":         payment.Amount,
		"currency":       payment.Currency,
		"transaction_id": *payment.TransactionID,
		"next_attempt":   compensation.NextAttemptAt.Format(time.RFC3339),
	})
}

func (s *Service) RetryCompensations(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	var claimed []paymentdomain.Compensation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		rows, err := s.repo.ClaimDueCompensations(ctx, tx, now, limit)
		if err != nil {
			return err
		}
		for i := range rows {
			rows[i].NextAttemptAt = now.Add(compensationLease)
			rows[i].UpdatedAt = now
			if err := s.repo.UpdateCompensation(ctx, tx, &rows[i]); err != nil {
				return err
			}
		}
		claimed = rows
		return nil
	})
	if err != nil {
		return 0, err
	}

	settled := 0
	var jobErr error
	for i := range claimed {
		if ctx.Err() != nil {
			return settled, errors.Join(jobErr, ctx.Err())
		}
		done, err := s.retryCompensation(ctx, &claimed[i])
		if err != nil {
			jobErr = errors.Join(jobErr, err)
		}
		if done {
			settled++
		}
	}
	return settled, jobErr
}

// retryCompensation makes one refund attempt and reports whether the row
// left the pending state.
func (s *Service) retryCompensation(ctx context.Context, c *paymentdomain.Compensation) (bool, error) {
	log := s.log.With(
		zap.String("compensation_id", c.ID.String()),
		zap.String("payment_id", c.PaymentID.String()),
		zap.String("provider", c.Provider),
	)

	gateway, err := s.adapters.Gateway(c.Provider)
	var refund paymentdomain.GatewayRefundResult
	if err == nil {
		refund, err = gateway.Refund(ctx, paymentdomain.GatewayRefundRequest{
			PaymentID:     c.PaymentID,
			TransactionID: c.TransactionID,
			Amount:        c.Amount,
			Currency:      c.Currency,
			Reason:        c.Reason,
		})
	}

	now := s.clock.Now()
	c.Attempts++
	c.UpdatedAt = now
	outcome := "ok"
	switch {
	case err == nil:
		c.Status = paymentdomain.CompensationDone
		c.LastError = nil
		c.RefundTransactionID = &refund.TransactionID
		c.NextAttemptAt = now
	case c.Attempts >= s.retry.maxAttempts:
		outcome = "abandoned"
		message := err.Error()
		c.Status = paymentdomain.CompensationAbandoned
		c.LastError = &message
		c.NextAttemptAt = now
	default:
		outcome = "error"
		message := err.Error()
		c.LastError = &message
		c.NextAttemptAt = now.Add(paymentdomain.RetryBackoff(s.retry.backoff, s.retry.maxBackoff, c.Attempts))
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordCompensation(ctx, "payment_refund_retry", outcome)
	}

	if updateErr := s.repo.UpdateCompensation(ctx, s.db, c); updateErr != nil {
		log.Error("update compensation failed", zap.Error(updateErr))
		return false, updateErr
	}

	switch c.Status {
	case paymentdomain.CompensationDone:
		log.Info("charge compensated on retry", zap.Int("attempts", c.Attempts))
		s.audit(ctx, auditdomain.ActionPaymentCompensated, c.PaymentID, map[string]any{
			"reason":                c.Reason,
			"amount":                c.Amount,
			"currency":              c.Currency,
			"transaction_id":        c.TransactionID,
			"refund_transaction_id": refund.TransactionID,
			"attempts":              c.Attempts,
		})
		return true, nil
	case paymentdomain.CompensationAbandoned:
		log.Error("compensation abandoned", zap.Int("attempts", c.Attempts), zap.Error(err))
		s.audit(ctx, auditdomain.ActionCompensationAbandoned, c.PaymentID, map[string]any{
			"reason":         c.Reason,
			"amount":         c.Amount,
			"currency":       c.Currency,
			"transaction_id": c.TransactionID,
			"attempts":       c.Attempts,
			"error":          err.Error(),
		})
		return true, nil
	default:
		log.Warn("compensation retry failed",
			zap.Int("attempts", c.Attempts),
			zap.Time("next_attempt_at", c.NextAttemptAt),
			zap.Error(err),
		)
		return false, nil
	}
}
