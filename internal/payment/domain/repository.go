package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, transactionID string, completedAt time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, updatedAt time.Time) error
	MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, refundTransactionID, reason string, refundedAt time.Time) error
	LinkRegistration(ctx context.Context, db *gorm.DB, id, registrationID snowflake.ID, updatedAt time.Time) error
	// InsertEvent stores a callback; false means the provider event was seen before.
	InsertEvent(ctx context.Context, db *gorm.DB, record *EventRecord) (bool, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error

	// InsertCompensation is idempotent per provider transaction.
	InsertCompensation(ctx context.Context, db *gorm.DB, compensation *Compensation) error
	// ClaimDueCompensations returns pending rows whose next attempt is due,
	// skipping rows another worker holds.
	ClaimDueCompensations(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Compensation, error)
	UpdateCompensation(ctx context.Context, db *gorm.DB, compensation *Compensation) error
}
