package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertUser(ctx context.Context, db *gorm.DB, user *User) error
	InsertTeam(ctx context.Context, db *gorm.DB, team *TeamRecord) error
	FindUser(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindTeam(ctx context.Context, db *gorm.DB, id snowflake.ID) (*TeamRecord, error)
}
