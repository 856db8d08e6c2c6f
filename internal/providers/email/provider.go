package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var ErrNoRecipient = errors.New("email_recipient_required")

// Message is a templated mail to one or more participants.
type Message struct {
	To       []string
	Subject  string
	Template string
	Data     RegistrationData
}

// RegistrationData feeds templates/registration.html.
type RegistrationData struct {
	Name           string
	Message        string
	EventID        string
	RegistrationID string
}

// Provider delivers a Message.
type Provider interface {
	Deliver(ctx context.Context, msg Message) error
}

// Render executes the message template into an HTML body.
func Render(msg Message) (string, error) {
	name := strings.TrimSpace(msg.Template)
	if name == "" {
		name = "registration"
	}
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name+".html", msg.Data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return body.String(), nil
}

// Discard renders and drops messages. It stands in when no SMTP host is set.
type Discard struct{}

func (Discard) Deliver(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipient
	}
	_, err := Render(msg)
	return err
}
