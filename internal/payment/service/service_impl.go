package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/eventreg/internal/audit/domain"
	"github.com/smallbiznis/eventreg/internal/clock"
	"github.com/smallbiznis/eventreg/internal/config"
	ledgerdomain "github.com/smallbiznis/eventreg/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/eventreg/internal/observability/metrics"
	"github.com/smallbiznis/eventreg/internal/payment/adapters"
	"github.com/smallbiznis/eventreg/internal/payment/adapters/offline"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
	"github.com/smallbiznis/eventreg/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Cfg        config.Config
	Policy     *config.PolicyHolder
	Repo       paymentdomain.Repository
	Adapters   *adapters.Registry
	Verifier   *webhook.Verifier
	LedgerSvc  ledgerdomain.Service
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	policy     *config.PolicyHolder
	repo       paymentdomain.Repository
	adapters   *adapters.Registry
	verifier   *webhook.Verifier
	ledgerSvc  ledgerdomain.Service
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
	clock      clock.Clock
	provider   string
	awaiter    *awaiter
	retry      compensationRetry
}

func NewService(p Params) paymentdomain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	c := clock.Or(p.Clock)
	policy := p.Policy
	if policy == nil {
		policy = config.NewStaticPolicyHolder(config.DefaultRegistrationPolicy())
	}
	provider := strings.ToLower(strings.TrimSpace(p.Cfg.Payments.Gateway))
	if provider == "" {
		provider = "mock"
	}

	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		policy:     policy,
		repo:       p.Repo,
		adapters:   p.Adapters,
		verifier:   p.Verifier,
		ledgerSvc:  p.LedgerSvc,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
		clock:      c,
		provider:   provider,
		awaiter:    newAwaiter(),
		retry:      newCompensationRetry(p.Cfg.Payments),
	}
}

func (s *Service) gatewayFor(mode paymentdomain.Mode) (paymentdomain.Gateway, error) {
	if mode == paymentdomain.ModeOffline {
		return s.adapters.Gateway(offline.Provider)
	}
	return s.adapters.Gateway(s.provider)
}

func (s *Service) CreatePayment(ctx context.Context, tx *gorm.DB, req paymentdomain.CreatePaymentRequest) (paymentdomain.Payment, error) {
	if tx == nil {
		return paymentdomain.Payment{}, errors.New("payment_requires_transaction")
	}
	mode, ok := paymentdomain.ParseMode(string(req.Mode))
	if !ok {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidMode
	}
	if !req.Event.IsPaid || req.Amount != req.Event.Fee {
		return paymentdomain.Payment{}, paymentdomain.ErrAmountMismatch
	}

	gateway, err := s.gatewayFor(mode)
	if err != nil {
		return paymentdomain.Payment{}, err
	}

	now := s.clock.Now()
	payment := paymentdomain.Payment{
		ID:              s.genID.Generate(),
		EventID:         req.Event.EventID,
		ParticipantKind: req.Participant.Kind,
		ParticipantID:   req.Participant.ID,
		Amount:          req.Amount,
		Currency:        strings.ToUpper(req.Event.Currency),
		Mode:            mode,
		Provider:        gateway.Provider(),
		Status:          paymentdomain.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.RegistrationID != 0 {
		registrationID := req.RegistrationID
		payment.RegistrationID = &registrationID
	}
	if err := s.repo.Insert(ctx, tx, &payment); err != nil {
		return paymentdomain.Payment{}, err
	}

	waiting := s.awaiter.register(payment.ID)
	result, err := gateway.Charge(ctx, paymentdomain.ChargeRequest{
		PaymentID:   payment.ID,
		EventID:     payment.EventID,
		Participant: req.Participant,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Mode:        mode,
	})
	if err != nil {
		s.awaiter.cancel(payment.ID)
		s.log.Warn("gateway charge failed",
			zap.String("payment_id", payment.ID.String()),
			zap.String("provider", payment.Provider),
			zap.Error(err),
		)
		return payment, fmt.Errorf("%w: %v", paymentdomain.ErrPaymentFailed, err)
	}
	if result.TransactionID != "" {
		txnID := result.TransactionID
		payment.TransactionID = &txnID
	}

	switch result.Status {
	case paymentdomain.StatusCompleted:
		s.awaiter.cancel(payment.ID)
		return s.complete(ctx, tx, payment, result.TransactionID)
	case paymentdomain.StatusPending:
		return s.await(ctx, tx, payment, waiting)
	default:
		s.awaiter.cancel(payment.ID)
		reason := result.FailureReason
		if reason == "" {
			reason = "declined"
		}
		payment.Status = paymentdomain.StatusFailed
		return payment, fmt.Errorf("%w: %s", paymentdomain.ErrPaymentFailed, reason)
	}
}

func (s *Service) await(ctx context.Context, tx *gorm.DB, payment paymentdomain.Payment, waiting <-chan *paymentdomain.PaymentEvent) (paymentdomain.Payment, error) {
	timeout := s.policy.Get().PaymentAwaitTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var event *paymentdomain.PaymentEvent
	select {
	case event = <-waiting:
		s.awaiter.cancel(payment.ID)
	case <-timer.C:
		event = s.awaiter.cancel(payment.ID)
	case <-ctx.Done():
		event = s.awaiter.cancel(payment.ID)
		if event == nil {
			return payment, ctx.Err()
		}
	}
	if event == nil {
		s.log.Warn("payment callback timed out",
			zap.String("payment_id", payment.ID.String()),
			zap.Duration("timeout", timeout),
		)
		return payment, fmt.Errorf("%w: callback timeout", paymentdomain.ErrPaymentFailed)
	}

	if _, err := s.recordEvent(ctx, tx, event); err != nil {
		return payment, err
	}
	s.recordPaymentEvent(ctx, event)

	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded:
		txnID := event.ProviderPaymentID
		if txnID == "" && payment.TransactionID != nil {
			txnID = *payment.TransactionID
		}
		return s.complete(ctx, tx, payment, txnID)
	default:
		reason := event.FailureReason
		if reason == "" {
			reason = event.Type
		}
		payment.Status = paymentdomain.StatusFailed
		return payment, fmt.Errorf("%w: %s", paymentdomain.ErrPaymentFailed, reason)
	}
}

func (s *Service) complete(ctx context.Context, tx *gorm.DB, payment paymentdomain.Payment, transactionID string) (paymentdomain.Payment, error) {
	// The gateway already holds the money. The returned payment says so even
	// when persisting fails, so the caller refunds it on rollback.
	now := s.clock.Now()
	payment.Status = paymentdomain.StatusCompleted
	payment.TransactionID = &transactionID
	payment.CompletedAt = &now
	payment.UpdatedAt = now
	if err := s.repo.MarkCompleted(ctx, tx, payment.ID, transactionID, now); err != nil {
		return payment, err
	}

	if err := s.ledgerSvc.RecordPayment(ctx, tx, settlement(payment, now)); err != nil {
		return payment, err
	}
	return payment, nil
}

func (s *Service) Compensate(ctx context.Context, payment paymentdomain.Payment, reason string) error {
	if payment.Status != paymentdomain.StatusCompleted || payment.TransactionID == nil {
		return nil
	}
	gateway, err := s.adapters.Gateway(payment.Provider)
	if err != nil {
		return err
	}

	_, err = gateway.Refund(ctx, paymentdomain.GatewayRefundRequest{
		PaymentID:     payment.ID,
		TransactionID: *payment.TransactionID,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		Reason:        reason,
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordCompensation(ctx, "payment_refund", outcome)
	}
	if err != nil {
		s.log.Error("compensating refund failed",
			zap.String("payment_id", payment.ID.String()),
			zap.String("reason", reason),
			zap.Error(err),
		)
		s.queueCompensation(ctx, payment, reason, err)
		return fmt.Errorf("%w: %v", paymentdomain.ErrRefundFailed, err)
	}

	s.log.Info("charge compensated",
		zap.String("payment_id", payment.ID.String()),
		zap.String("reason", reason),
	)
	s.audit(ctx, auditdomain.ActionPaymentCompensated, payment.ID, map[string]any{
		"reason":         reason,
		"amount":         payment.Amount,
		"currency":       payment.Currency,
		"transaction_id": *payment.TransactionID,
	})
	return nil
}

func (s *Service) Refund(ctx context.Context, paymentID snowflake.ID, reason string) (paymentdomain.RefundResult, error) {
	var result paymentdomain.RefundResult
	var provider string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.repo.LockByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return paymentdomain.ErrPaymentNotFound
		}
		provider = payment.Provider
		switch payment.Status {
		case paymentdomain.StatusRefunded:
			return paymentdomain.ErrPaymentAlreadyRefunded
		case paymentdomain.StatusCompleted:
		default:
			return paymentdomain.ErrPaymentNotRefundable
		}
		if payment.TransactionID == nil {
			return paymentdomain.ErrPaymentNotRefundable
		}

		gateway, err := s.adapters.Gateway(payment.Provider)
		if err != nil {
			return err
		}
		refund, err := gateway.Refund(ctx, paymentdomain.GatewayRefundRequest{
			PaymentID:     payment.ID,
			TransactionID: *payment.TransactionID,
			Amount:        payment.Amount,
			Currency:      payment.Currency,
			Reason:        reason,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", paymentdomain.ErrRefundFailed, err)
		}

		now := s.clock.Now()
		if err := s.repo.MarkRefunded(ctx, tx, payment.ID, refund.TransactionID, reason, now); err != nil {
			return err
		}
		if err := s.ledgerSvc.RecordRefund(ctx, tx, settlement(*payment, now)); err != nil {
			return err
		}

		payment.Status = paymentdomain.StatusRefunded
		payment.RefundTransactionID = &refund.TransactionID
		payment.RefundReason = &reason
		payment.RefundedAt = &now
		payment.UpdatedAt = now
		result = paymentdomain.RefundResult{Payment: *payment, RefundTransactionID: refund.TransactionID}
		return nil
	})

	if s.obsMetrics != nil && provider != "" {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.obsMetrics.RecordRefund(ctx, provider, outcome)
	}
	if err != nil {
		if errors.Is(err, paymentdomain.ErrRefundFailed) {
			s.log.Warn("refund failed", zap.String("payment_id", paymentID.String()), zap.Error(err))
		}
		return paymentdomain.RefundResult{}, err
	}

	s.audit(ctx, auditdomain.ActionPaymentRefunded, paymentID, map[string]any{
		"reason":                reason,
		"amount":                result.Payment.Amount,
		"currency":              result.Payment.Currency,
		"refund_transaction_id": result.RefundTransactionID,
	})
	return result, nil
}

func (s *Service) ProcessCallback(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	if s.verifier == nil {
		return paymentdomain.ErrProviderNotFound
	}
	event, err := s.verifier.Verify(ctx, provider, payload, headers)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil
		}
		return err
	}

	if s.awaiter.deliver(event) {
		return nil
	}

	var orphan *paymentdomain.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.recordEvent(ctx, tx, event)
		if err != nil {
			return err
		}
		if record == nil {
			return nil
		}

		payment, err := s.repo.LockByID(ctx, tx, event.PaymentID)
		if err != nil {
			return err
		}
		now := s.clock.Now()

		switch event.Type {
		case paymentdomain.EventTypePaymentSucceeded:
			switch {
			case payment == nil || payment.Status == paymentdomain.StatusFailed:
				txnID := event.ProviderPaymentID
				orphan = &paymentdomain.Payment{
					ID:            event.PaymentID,
					Provider:      event.Provider,
					Amount:        event.Amount,
					Currency:      event.Currency,
					Status:        paymentdomain.StatusCompleted,
					TransactionID: &txnID,
				}
			case payment.Status == paymentdomain.StatusPending:
				if _, err := s.complete(ctx, tx, *payment, event.ProviderPaymentID); err != nil {
					return err
				}
			}
		case paymentdomain.EventTypePaymentFailed:
			if payment != nil && payment.Status == paymentdomain.StatusPending {
				reason := event.FailureReason
				if reason == "" {
					reason = event.Type
				}
				if err := s.repo.MarkFailed(ctx, tx, payment.ID, reason, now); err != nil {
					return err
				}
			}
		case paymentdomain.EventTypeRefunded:
			if payment != nil && payment.Status == paymentdomain.StatusCompleted {
				if err := s.repo.MarkRefunded(ctx, tx, payment.ID, event.ProviderEventID, "provider_refund", now); err != nil {
					return err
				}
				if err := s.ledgerSvc.RecordRefund(ctx, tx, settlement(*payment, now)); err != nil {
					return err
				}
			}
		}

		return s.repo.MarkEventProcessed(ctx, tx, record.ID, now)
	})
	if err != nil {
		return err
	}
	s.recordPaymentEvent(ctx, event)

	if orphan != nil {
		s.log.Warn("charge succeeded without a registration",
			zap.String("payment_id", orphan.ID.String()),
			zap.String("provider", orphan.Provider),
		)
		return s.Compensate(ctx, *orphan, "registration_not_committed")
	}
	return nil
}

// recordEvent stores the callback and returns nil when it was seen before.
func (s *Service) recordEvent(ctx context.Context, tx *gorm.DB, event *paymentdomain.PaymentEvent) (*paymentdomain.EventRecord, error) {
	payload := event.RawPayload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	record := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		PaymentID:       event.PaymentID,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.InsertEvent(ctx, tx, &record)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, nil
	}
	return &record, nil
}

func (s *Service) recordPaymentEvent(ctx context.Context, event *paymentdomain.PaymentEvent) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (paymentdomain.Payment, error) {
	payment, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if payment == nil {
		return paymentdomain.Payment{}, paymentdomain.ErrPaymentNotFound
	}
	return *payment, nil
}

func (s *Service) audit(ctx context.Context, action string, paymentID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeSystem,
		Action:     action,
		TargetType: auditdomain.TargetPayment,
		TargetID:   paymentID.String(),
		Metadata:   metadata,
	})
}

func settlement(p paymentdomain.Payment, at time.Time) ledgerdomain.Settlement {
	return ledgerdomain.Settlement{
		PaymentID: p.ID,
		EventID:   p.EventID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		At:        at,
	}
}
