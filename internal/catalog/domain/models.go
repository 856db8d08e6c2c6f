package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
)

type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusOngoing   EventStatus = "ongoing"
	EventStatusCompleted EventStatus = "completed"
	EventStatusCancelled EventStatus = "cancelled"
)

type RegistrationType string

const (
	RegistrationIndividual RegistrationType = "individual"
	RegistrationTeam       RegistrationType = "team"
)

type Event struct {
	ID               snowflake.ID     `json:"id"`
	Name             string           `json:"name"`
	Slug             string           `json:"slug"`
	Capacity         int              `json:"capacity"`
	Fee              int64            `json:"fee"`
	Currency         string           `json:"currency"`
	IsPaid           bool             `json:"is_paid"`
	Status           EventStatus      `json:"status"`
	RegistrationType RegistrationType `json:"registration_type"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// IsTerminal reports whether the event can never accept registrations again.
func (e Event) IsTerminal() bool {
	return e.Status == EventStatusCompleted || e.Status == EventStatusCancelled
}

// AcceptsRegistrations reports whether new claims may be made.
func (e Event) AcceptsRegistrations() bool {
	return e.Status == EventStatusPublished || e.Status == EventStatusOngoing
}

// Unlimited reports whether capacity checks are skipped.
func (e Event) Unlimited() bool {
	return e.Capacity == 0
}

// ExpectedAmount is the exact amount a registration must carry.
func (e Event) ExpectedAmount() int64 {
	if !e.IsPaid {
		return 0
	}
	return e.Fee
}

// Accepts reports whether the participant kind matches the registration type.
func (e Event) Accepts(kind identitydomain.ParticipantKind) bool {
	return string(e.RegistrationType) == string(kind)
}

var transitions = map[EventStatus][]EventStatus{
	EventStatusDraft:     {EventStatusPublished, EventStatusCancelled},
	EventStatusPublished: {EventStatusOngoing, EventStatusCancelled},
	EventStatusOngoing:   {EventStatusCompleted, EventStatusCancelled},
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to EventStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ParseStatus(value string) (EventStatus, bool) {
	switch status := EventStatus(value); status {
	case EventStatusDraft, EventStatusPublished, EventStatusOngoing, EventStatusCompleted, EventStatusCancelled:
		return status, true
	default:
		return "", false
	}
}
