package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventreg/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *Event) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Event, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Event, error)
	// LockByID reads the event and holds a row lock until the transaction ends.
	LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Event, error)
	List(ctx context.Context, db *gorm.DB, filter ListEventFilter, page pagination.Pagination) ([]*Event, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status EventStatus, updatedAt time.Time) error
}
