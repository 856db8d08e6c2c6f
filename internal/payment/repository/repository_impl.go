package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventreg/internal/payment/domain"
	pkgdb "github.com/smallbiznis/eventreg/pkg/db"
	"gorm.io/gorm"
)

const paymentColumns = `id, registration_id, event_id, participant_kind, participant_id, amount, currency,
	mode, provider, status, transaction_id, refund_transaction_id, refund_reason, failure_reason,
	created_at, updated_at, completed_at, refunded_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.RegistrationID,
		payment.EventID,
		payment.ParticipantKind,
		payment.ParticipantID,
		payment.Amount,
		payment.Currency,
		payment.Mode,
		payment.Provider,
		payment.Status,
		payment.TransactionID,
		payment.RefundTransactionID,
		payment.RefundReason,
		payment.FailureReason,
		payment.CreatedAt,
		payment.UpdatedAt,
		payment.CompletedAt,
		payment.RefundedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	return r.findOne(ctx, db, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	return r.findOne(ctx, db, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`+pkgdb.ForUpdate(db), id)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Payment, error) {
	var payment domain.Payment
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&payment).Error; err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, transactionID string, completedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, transaction_id = ?, completed_at = ?, updated_at = ?
		 WHERE id = ?`,
		domain.StatusCompleted,
		transactionID,
		completedAt,
		completedAt,
		id,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ?`,
		domain.StatusFailed,
		reason,
		updatedAt,
		id,
	).Error
}

func (r *repo) MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, refundTransactionID, reason string, refundedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, refund_transaction_id = ?, refund_reason = ?, refunded_at = ?, updated_at = ?
		 WHERE id = ?`,
		domain.StatusRefunded,
		refundTransactionID,
		reason,
		refundedAt,
		refundedAt,
		id,
	).Error
}

func (r *repo) LinkRegistration(ctx context.Context, db *gorm.DB, id, registrationID snowflake.ID, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments SET registration_id = ?, updated_at = ? WHERE id = ?`,
		registrationID,
		updatedAt,
		id,
	).Error
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, event_type, payment_id,
			payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.PaymentID,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}

const compensationColumns = `id, payment_id, event_id, provider, transaction_id, amount, currency, reason,
	status, attempts, last_error, refund_transaction_id, next_attempt_at, created_at, updated_at`

func (r *repo) InsertCompensation(ctx context.Context, db *gorm.DB, c *domain.Compensation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_compensations (`+compensationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, transaction_id) DO NOTHING`,
		c.ID,
		c.PaymentID,
		c.EventID,
		c.Provider,
		c.TransactionID,
		c.Amount,
		c.Currency,
		c.Reason,
		c.Status,
		c.Attempts,
		c.LastError,
		c.RefundTransactionID,
		c.NextAttemptAt,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

func (r *repo) ClaimDueCompensations(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Compensation, error) {
	var rows []domain.Compensation
	err := db.WithContext(ctx).Raw(
		`SELECT `+compensationColumns+`
		 FROM payment_compensations
		 WHERE status = ? AND next_attempt_at <= ?
		 ORDER BY next_attempt_at, id
		 LIMIT ?`+pkgdb.ForUpdateSkipLocked(db),
		domain.CompensationPending,
		now,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) UpdateCompensation(ctx context.Context, db *gorm.DB, c *domain.Compensation) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_compensations
		 SET status = ?, attempts = ?, last_error = ?, refund_transaction_id = ?, next_attempt_at = ?, updated_at = ?
		 WHERE id = ?`,
		c.Status,
		c.Attempts,
		c.LastError,
		c.RefundTransactionID,
		c.NextAttemptAt,
		c.UpdatedAt,
		c.ID,
	).Error
}
