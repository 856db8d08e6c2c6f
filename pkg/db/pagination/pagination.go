// Package pagination carries keyset cursors over (created_at, id) between
// list requests.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

var ErrInvalidCursor = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

// Size clamps the requested page size into [1, MaxPageSize].
func (p Pagination) Size() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

type Cursor struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

func NewCursor(id snowflake.ID, createdAt time.Time) Cursor {
	return Cursor{ID: id.String(), CreatedAt: createdAt.UTC().Format(time.RFC3339Nano)}
}

// Keyset returns the position the next page starts after.
func (c Cursor) Keyset() (snowflake.ID, time.Time, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.ID))
	if err != nil || id <= 0 {
		return 0, time.Time{}, ErrInvalidCursor
	}
	createdAt, err := time.Parse(time.RFC3339Nano, c.CreatedAt)
	if err != nil {
		return 0, time.Time{}, ErrInvalidCursor
	}
	return id, createdAt, nil
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

func EncodeCursor(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(token string) (Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	if _, _, err := c.Keyset(); err != nil {
		return Cursor{}, err
	}
	return c, nil
}

// Page drops the look-ahead row fetched beyond size and points the next token
// at the last row kept.
func Page[T any](items []*T, size int, cursorOf func(*T) Cursor) ([]*T, PageInfo) {
	if size <= 0 || len(items) <= size {
		return items, PageInfo{}
	}
	items = items[:size]
	token, err := EncodeCursor(cursorOf(items[len(items)-1]))
	if err != nil {
		return items, PageInfo{}
	}
	return items, PageInfo{NextPageToken: token, HasMore: true}
}
