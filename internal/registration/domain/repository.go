package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
	"github.com/smallbiznis/eventreg/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	EventID snowflake.ID
	Status  Status
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, registration *Registration) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Registration, error)
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Registration, error)
	FindActive(ctx context.Context, db *gorm.DB, eventID snowflake.ID, participant identitydomain.Participant) (*Registration, error)
	// CountHeld counts registrations holding a slot (pending or confirmed).
	CountHeld(ctx context.Context, db *gorm.DB, eventID snowflake.ID) (int64, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, updatedAt time.Time) error
	LinkPayment(ctx context.Context, db *gorm.DB, id, paymentID snowflake.ID, status Status, updatedAt time.Time) error
	MarkCancelled(ctx context.Context, db *gorm.DB, id snowflake.ID, cancelledAt time.Time) error
	RecordRefundOutcome(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, refundErr *string, updatedAt time.Time) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Registration, error)
}
