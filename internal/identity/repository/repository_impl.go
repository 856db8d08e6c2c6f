package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventreg/internal/identity/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertUser(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (id, email, display_name, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.DisplayName,
		user.IsActive,
		user.CreatedAt,
	).Error
}

func (r *repo) InsertTeam(ctx context.Context, db *gorm.DB, team *domain.TeamRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO teams (id, name, contact_email, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		team.ID,
		team.Name,
		team.ContactEmail,
		team.IsActive,
		team.CreatedAt,
	).Error
}

func (r *repo) FindUser(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, display_name, is_active, created_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) FindTeam(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.TeamRecord, error) {
	var team domain.TeamRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, contact_email, is_active, created_at
		 FROM teams WHERE id = ?`,
		id,
	).Scan(&team).Error
	if err != nil {
		return nil, err
	}
	if team.ID == 0 {
		return nil, nil
	}
	return &team, nil
}
