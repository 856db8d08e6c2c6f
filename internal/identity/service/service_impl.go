package service

import (
	"context"

	"github.com/smallbiznis/eventreg/internal/identity/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("identity.service"),
		repo: p.Repo,
	}
}

// Resolve reports whether the participant exists and is active.
func (s *Service) Resolve(ctx context.Context, participant domain.Participant) error {
	_, err := s.Contact(ctx, participant)
	return err
}

func (s *Service) Contact(ctx context.Context, participant domain.Participant) (domain.Contact, error) {
	if err := participant.Validate(); err != nil {
		return domain.Contact{}, err
	}

	switch participant.Kind {
	case domain.ParticipantIndividual:
		user, err := s.repo.FindUser(ctx, s.db, participant.ID)
		if err != nil {
			return domain.Contact{}, err
		}
		if user == nil || !user.IsActive {
			return domain.Contact{}, domain.ErrParticipantNotFound
		}
		return domain.Contact{
			Participant: participant,
			Name:        user.DisplayName,
			Email:       user.Email,
		}, nil
	case domain.ParticipantTeam:
		team, err := s.repo.FindTeam(ctx, s.db, participant.ID)
		if err != nil {
			return domain.Contact{}, err
		}
		if team == nil || !team.IsActive {
			return domain.Contact{}, domain.ErrParticipantNotFound
		}
		return domain.Contact{
			Participant: participant,
			Name:        team.Name,
			Email:       team.ContactEmail,
		}, nil
	default:
		return domain.Contact{}, domain.ErrInvalidParticipant
	}
}
