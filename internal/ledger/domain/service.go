package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Service interface {
	// Post writes j inside tx, or its own transaction when tx is nil. It
	// reports false when the source was already posted.
	Post(ctx context.Context, tx *gorm.DB, j Journal) (bool, error)
	RecordPayment(ctx context.Context, tx *gorm.DB, s Settlement) error
	RecordRefund(ctx context.Context, tx *gorm.DB, s Settlement) error
	// Balance is debits minus credits.
	Balance(ctx context.Context, code AccountCode) (int64, error)
}

var (
	ErrInvalidSourceType    = errors.New("invalid_source_type")
	ErrInvalidSourceID      = errors.New("invalid_source_id")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrInvalidOccurredAt    = errors.New("invalid_occurred_at")
	ErrInvalidEntryLines    = errors.New("invalid_entry_lines")
	ErrInvalidLineDirection = errors.New("invalid_line_direction")
	ErrInvalidLineAmount    = errors.New("invalid_line_amount")
	ErrUnbalancedEntry      = errors.New("unbalanced_entry")
)
