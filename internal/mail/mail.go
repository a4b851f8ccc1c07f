// Package mail delivers transactional email.
package mail

import (
	"context"
	"fmt"
	"sync"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog/log"
)

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ResendSender delivers mail through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
}

// NewResendSender creates a sender for the given API key and From address.
func NewResendSender(apiKey, from string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from}
}

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	}

	resp, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	log.Debug().Str("email_id", resp.Id).Str("subject", msg.Subject).Msg("Email sent")
	return nil
}

// LogSender logs messages instead of delivering them. It keeps the last
// messages it saw so development setups and tests can read links back.
type LogSender struct {
	mu   sync.Mutex
	sent []Message
}

// NewLogSender creates a LogSender.
func NewLogSender() *LogSender {
	return &LogSender{}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("Email not delivered, no mail provider configured")
	return nil
}

// Sent returns a copy of every message seen so far.
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
