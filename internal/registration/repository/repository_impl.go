package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
	"github.com/smallbiznis/eventreg/internal/registration/domain"
	pkgdb "github.com/smallbiznis/eventreg/pkg/db"
	"github.com/smallbiznis/eventreg/pkg/db/option"
	"github.com/smallbiznis/eventreg/pkg/db/pagination"
	"gorm.io/gorm"
)

const registrationColumns = `id, event_id, participant_kind, participant_id, status, payment_id,
	refund_attempted, refund_error, cancelled_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, registration *domain.Registration) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		registration.ID,
		registration.EventID,
		registration.ParticipantKind,
		registration.ParticipantID,
		registration.Status,
		registration.PaymentID,
		registration.RefundAttempted,
		registration.RefundError,
		registration.CancelledAt,
		registration.CreatedAt,
		registration.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Registration, error) {
	return r.findOne(ctx, db, `SELECT `+registrationColumns+` FROM registrations WHERE id = ?`, id)
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Registration, error) {
	return r.findOne(ctx, db, `SELECT `+registrationColumns+` FROM registrations WHERE id = ?`+pkgdb.ForUpdate(db), id)
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, eventID snowflake.ID, participant identitydomain.Participant) (*domain.Registration, error) {
	return r.findOne(ctx, db,
		`SELECT `+registrationColumns+` FROM registrations
		 WHERE event_id = ? AND participant_kind = ? AND participant_id = ? AND status IN (?, ?, ?)
		 LIMIT 1`,
		eventID,
		participant.Kind,
		participant.ID,
		domain.StatusPending,
		domain.StatusConfirmed,
		domain.StatusWaitlisted,
	)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Registration, error) {
	var registration domain.Registration
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&registration).Error; err != nil {
		return nil, err
	}
	if registration.ID == 0 {
		return nil, nil
	}
	return &registration, nil
}

func (r *repo) CountHeld(ctx context.Context, db *gorm.DB, eventID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM registrations WHERE event_id = ? AND status IN (?, ?)`,
		eventID,
		domain.StatusPending,
		domain.StatusConfirmed,
	).Scan(&count).Error
	return count, err
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE registrations SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		updatedAt,
		id,
	).Error
}

func (r *repo) LinkPayment(ctx context.Context, db *gorm.DB, id, paymentID snowflake.ID, status domain.Status, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE registrations SET payment_id = ?, status = ?, updated_at = ? WHERE id = ?`,
		paymentID,
		status,
		updatedAt,
		id,
	).Error
}

func (r *repo) MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, cancelledAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE registrations SET status = ?, cancelled_at = ?, updated_at = ? WHERE id = ?`,
		domain.StatusCancelled,
		cancelledAt,
		cancelledAt,
		id,
	).Error
}

func (r *repo) RecordRefundOutcome(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, refundErr *string, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE registrations SET status = ?, refund_attempted = ?, refund_error = ?, updated_at = ? WHERE id = ?`,
		status,
		true,
		refundErr,
		updatedAt,
		id,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Registration, error) {
	var registrations []*domain.Registration
	stmt := db.WithContext(ctx).
		Table("registrations").
		Where("event_id = ?", filter.EventID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&registrations).Error
	if err != nil {
		return nil, err
	}
	return registrations, nil
}
