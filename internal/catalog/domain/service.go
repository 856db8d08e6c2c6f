package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventreg/pkg/db/pagination"
)

type CreateEventRequest struct {
	Name             string `json:"name"`
	Capacity         int    `json:"capacity"`
	Fee              int64  `json:"fee"`
	Currency         string `json:"currency"`
	IsPaid           bool   `json:"is_paid"`
	RegistrationType string `json:"registration_type"`
}

type ListEventRequest struct {
	PageToken string
	PageSize  int32
	Status    string
}

type ListEventFilter struct {
	Status EventStatus
}

type ListEventResponse struct {
	pagination.PageInfo
	Events []Event `json:"events"`
}

type Service interface {
	Create(ctx context.Context, req CreateEventRequest) (Event, error)
	Get(ctx context.Context, id snowflake.ID) (Event, error)
	List(ctx context.Context, req ListEventRequest) (ListEventResponse, error)
	UpdateStatus(ctx context.Context, id snowflake.ID, status EventStatus) (Event, error)
}

var (
	ErrEventNotFound           = errors.New("event_not_found")
	ErrInvalidName             = errors.New("invalid_name")
	ErrInvalidCapacity         = errors.New("invalid_capacity")
	ErrInvalidFee              = errors.New("invalid_fee")
	ErrInvalidCurrency         = errors.New("invalid_currency")
	ErrInvalidRegistrationType = errors.New("invalid_registration_type")
	ErrInvalidStatus           = errors.New("invalid_status")
	ErrInvalidTransition       = errors.New("invalid_status_transition")
)
