// Package mail sends plain-text reminder emails over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

var ErrNotConfigured = errors.New("mail: host or from address missing")

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type Sender struct {
	from   string
	dialer dialer
}

func New(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.Host) == "" || strings.TrimSpace(cfg.From) == "" {
		return nil, ErrNotConfigured
	}
	port := cfg.Port
	if port <= 0 {
		port = 587
	}
	return &Sender{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password),
	}, nil
}

// Send dials, sends one message and hangs up. gomail has no context support,
// so ctx is only checked before dialing.
func (s *Sender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(s.compose(to, subject, body)); err != nil {
		return fmt.Errorf("mail to %s: %w", to, err)
	}
	return nil
}

func (s *Sender) compose(to, subject, body string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return m
}
