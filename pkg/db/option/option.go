package option

import (
	"strings"

	"github.com/smallbiznis/eventreg/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type queryOptionFunc func(*gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

// ApplyPagination applies keyset pagination ordered by created_at desc, id desc.
// It fetches one extra row so callers can detect a following page. A token
// that does not decode is ignored and the first page is returned.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if token := strings.TrimSpace(page.PageToken); token != "" {
			if cursor, err := pagination.DecodeCursor(token); err == nil {
				id, createdAt, _ := cursor.Keyset()
				db = db.Where("((created_at < ?) OR (created_at = ? AND id < ?))", createdAt, createdAt, int64(id))
			}
		}
		return db.Limit(page.Size() + 1)
	})
}
