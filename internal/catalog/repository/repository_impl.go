package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventreg/internal/catalog/domain"
	pkgdb "github.com/smallbiznis/eventreg/pkg/db"
	"github.com/smallbiznis/eventreg/pkg/db/option"
	"github.com/smallbiznis/eventreg/pkg/db/pagination"
	"gorm.io/gorm"
)

const eventColumns = `id, name, slug, capacity, fee, currency, is_paid, status, registration_type, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.Event) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Name,
		event.Slug,
		event.Capacity,
		event.Fee,
		event.Currency,
		event.IsPaid,
		event.Status,
		event.RegistrationType,
		event.CreatedAt,
		event.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Event, error) {
	return r.findOne(ctx, db, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Event, error) {
	return r.findOne(ctx, db, `SELECT `+eventColumns+` FROM events WHERE slug = ?`, slug)
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Event, error) {
	return r.findOne(ctx, db, `SELECT `+eventColumns+` FROM events WHERE id = ?`+pkgdb.ForUpdate(db), id)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Event, error) {
	var event domain.Event
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&event).Error; err != nil {
		return nil, err
	}
	if event.ID == 0 {
		return nil, nil
	}
	return &event, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListEventFilter, page pagination.Pagination) ([]*domain.Event, error) {
	var events []*domain.Event
	stmt := db.WithContext(ctx).Table("events")
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.EventStatus, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE events SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		updatedAt,
		id,
	).Error
}
