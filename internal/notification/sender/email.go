package sender

import (
	"context"
	"strings"

	"github.com/smallbiznis/eventreg/internal/notification/domain"
	"github.com/smallbiznis/eventreg/internal/providers/email"
)

var subjects = map[domain.Kind]string{
	domain.KindRegistrationConfirmed:  "Your registration is confirmed",
	domain.KindRegistrationWaitlisted: "You are on the waitlist",
	domain.KindRegistrationCancelled:  "Your registration was cancelled",
	domain.KindRegistrationRefunded:   "Your registration was refunded",
	domain.KindRefundFailed:           "We could not refund your registration",
}

type Email struct {
	provider email.Provider
}

func NewEmail(provider email.Provider) *Email {
	return &Email{provider: provider}
}

func (s *Email) Name() string { return "email" }

func (s *Email) Send(ctx context.Context, n domain.Notification) error {
	if n.Recipient == nil || strings.TrimSpace(n.Recipient.Email) == "" {
		return nil
	}
	subject, ok := subjects[n.Kind]
	if !ok {
		subject = "Registration update"
	}
	return s.provider.Deliver(ctx, email.Message{
		To:      []string{n.Recipient.Email},
		Subject: subject,
		Data: email.RegistrationData{
			Name:           n.Recipient.Name,
			Message:        n.Message,
			EventID:        n.EventID.String(),
			RegistrationID: n.RegistrationID.String(),
		},
	})
}
