// Package email sends notification mail through each user's own SMTP
// account and renders the message bodies.
package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/albapepper/medminder/internal/model"
)

// SenderName is the display name on every outgoing message.
const SenderName = "medminder"

const sendTimeout = 30 * time.Second

// ErrNotConfigured is returned when the user has no enabled SMTP settings.
var ErrNotConfigured = errors.New("email not configured")

// Message is a rendered email for one recipient.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a message over the SMTP account described by settings.
type Sender interface {
	Send(ctx context.Context, settings *model.EmailSettings, msg Message) error
}

// SMTPSender implements Sender with go-mail. A client is built per send
// because every user brings their own server and credentials.
type SMTPSender struct {
	timeout time.Duration
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender() *SMTPSender {
	return &SMTPSender{timeout: sendTimeout}
}

func (s *SMTPSender) client(settings *model.EmailSettings) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(settings.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(settings.SMTPUser),
		mail.WithPassword(settings.SMTPPass),
		mail.WithTimeout(s.timeout),
	}
	if settings.SMTPSecure {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	c, err := mail.NewClient(settings.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return c, nil
}

// Build assembles the MIME message. HTML is the primary body when present,
// with the plain text as its alternative.
func Build(from string, msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(SenderName, from); err != nil {
		return nil, fmt.Errorf("set from %q: %w", from, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("set to %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	switch {
	case msg.HTML != "" && msg.Text != "":
		m.SetBodyString(mail.TypeTextPlain, msg.Text)
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	default:
		m.SetBodyString(mail.TypeTextPlain, msg.Text)
	}
	return m, nil
}

// Send delivers msg. Disabled settings yield ErrNotConfigured.
func (s *SMTPSender) Send(ctx context.Context, settings *model.EmailSettings, msg Message) error {
	if settings == nil || !settings.IsEnabled {
		return ErrNotConfigured
	}
	m, err := Build(settings.From(), msg)
	if err != nil {
		return err
	}
	c, err := s.client(settings)
	if err != nil {
		return err
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send to %s via %s:%d: %w", msg.To, settings.SMTPHost, settings.SMTPPort, err)
	}
	return nil
}
