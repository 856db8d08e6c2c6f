package domain

import (
	"context"
	"errors"
)

type Service interface {
	Resolve(ctx context.Context, participant Participant) error
	Contact(ctx context.Context, participant Participant) (Contact, error)
}

var (
	ErrInvalidParticipant  = errors.New("invalid_participant")
	ErrParticipantNotFound = errors.New("participant_not_found")
)
