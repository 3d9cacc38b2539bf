package common

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Email is a single transactional message.
type Email struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// EmailSender defines the contract for sending emails.
type EmailSender interface {
	Send(ctx context.Context, msg Email) error
}

// InMemoryEmail provides a test-friendly email sender that records messages.
type InMemoryEmail struct {
	mu     sync.Mutex
	Outbox []Email
}

// Send records the email in memory.
func (m *InMemoryEmail) Send(_ context.Context, msg Email) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	m.Outbox = append(m.Outbox, msg)
	m.mu.Unlock()
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *InMemoryEmail) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Email, len(m.Outbox))
	copy(out, m.Outbox)
	return out
}

// NopEmailSender implements EmailSender without performing any action.
type NopEmailSender struct{}

// Send implements EmailSender.
func (NopEmailSender) Send(context.Context, Email) error { return nil }

// SendGridSender delivers mail through the SendGrid v3 API.
type SendGridSender struct {
	Client   *sendgrid.Client
	From     string
	FromName string
}

// NewSendGridSender builds a sender for apiKey.
func NewSendGridSender(apiKey, from, fromName string) *SendGridSender {
	return &SendGridSender{Client: sendgrid.NewSendClient(apiKey), From: from, FromName: fromName}
}

// Send implements EmailSender.
func (s *SendGridSender) Send(ctx context.Context, msg Email) error {
	if s == nil || s.Client == nil {
		return errors.New("sendgrid sender not configured")
	}
	from := mail.NewEmail(s.FromName, s.From)
	to := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)
	resp, err := s.Client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d", resp.StatusCode)
	}
	return nil
}
