package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

type dialer interface {
	Dial() (gomail.SendCloser, error)
}

// SMTPSender delivers through a plain SMTP relay. Message ids are generated locally.
type SMTPSender struct {
	dialer dialer
	domain string
}

func NewSMTPSender(host string, port int, user, password string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, user, password),
		domain: host,
	}
}

func (s *SMTPSender) build(m Message) (*gomail.Message, string) {
	id := uuid.NewString()
	msg := gomail.NewMessage()
	msg.SetHeader("Message-ID", fmt.Sprintf("<%s@%s>", id, s.domain))
	msg.SetHeader("From", m.From)
	msg.SetHeader("To", m.To...)
	if len(m.Cc) > 0 {
		msg.SetHeader("Cc", m.Cc...)
	}
	msg.SetHeader("Subject", m.Subject)
	if strings.TrimSpace(m.Text) != "" {
		msg.SetBody("text/plain", m.Text)
		msg.AddAlternative("text/html", m.HTML)
	} else {
		msg.SetBody("text/html", m.HTML)
	}
	return msg, id
}

func (s *SMTPSender) Send(ctx context.Context, m Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	conn, err := s.dialer.Dial()
	if err != nil {
		return "", fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	msg, id := s.build(m)
	if err := gomail.Send(conn, msg); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return id, nil
}

// SendBatch reuses one connection. A failed message does not stop the rest.
func (s *SMTPSender) SendBatch(ctx context.Context, msgs []Message) ([]BatchResult, error) {
	if len(msgs) == 0 {
		return nil, ErrEmptyBatch
	}
	conn, err := s.dialer.Dial()
	if err != nil {
		return nil, fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	results := make([]BatchResult, len(msgs))
	for i, m := range msgs {
		if err := ctx.Err(); err != nil {
			results[i] = BatchResult{Err: err}
			continue
		}
		msg, id := s.build(m)
		if err := gomail.Send(conn, msg); err != nil {
			results[i] = BatchResult{Err: fmt.Errorf("smtp send: %w", err)}
			continue
		}
		results[i] = BatchResult{ID: id}
	}
	return results, nil
}

var _ Provider = (*SMTPSender)(nil)
