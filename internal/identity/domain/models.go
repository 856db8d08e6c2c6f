package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ParticipantKind string

const (
	ParticipantIndividual ParticipantKind = "individual"
	ParticipantTeam       ParticipantKind = "team"
)

// Participant identifies exactly one registrant: a user or a team.
type Participant struct {
	Kind ParticipantKind `json:"kind"`
	ID   snowflake.ID    `json:"id"`
}

func Individual(userID snowflake.ID) Participant {
	return Participant{Kind: ParticipantIndividual, ID: userID}
}

func Team(teamID snowflake.ID) Participant {
	return Participant{Kind: ParticipantTeam, ID: teamID}
}

func ParseKind(value string) (ParticipantKind, bool) {
	switch ParticipantKind(strings.ToLower(strings.TrimSpace(value))) {
	case ParticipantIndividual:
		return ParticipantIndividual, true
	case ParticipantTeam:
		return ParticipantTeam, true
	default:
		return "", false
	}
}

// Validate accepts only the canonical kinds. Callers holding raw input run it
// through ParseKind first.
func (p Participant) Validate() error {
	switch p.Kind {
	case ParticipantIndividual, ParticipantTeam:
	default:
		return ErrInvalidParticipant
	}
	if p.ID == 0 {
		return ErrInvalidParticipant
	}
	return nil
}

func (p Participant) String() string {
	return fmt.Sprintf("%s:%s", p.Kind, p.ID.String())
}

type User struct {
	ID          snowflake.ID `json:"id"`
	Email       string       `json:"email"`
	DisplayName string       `json:"display_name"`
	IsActive    bool         `json:"is_active"`
	CreatedAt   time.Time    `json:"created_at"`
}

type TeamRecord struct {
	ID           snowflake.ID `json:"id"`
	Name         string       `json:"name"`
	ContactEmail string       `json:"contact_email"`
	IsActive     bool         `json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Contact is where notifications for a participant are delivered.
type Contact struct {
	Participant Participant `json:"participant"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
}
