package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"memocare/internal/reminder"
)

const (
	SinkTelegram = "telegram"
	SinkEmail    = "email"
)

// TextSender posts plain text to a Telegram chat.
type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// MailSender sends a plain-text email.
type MailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type telegramSink struct{ s TextSender }

// NewTelegramSink delivers to chat ids.
func NewTelegramSink(s TextSender) Sink { return telegramSink{s: s} }

func (telegramSink) Name() string { return SinkTelegram }

func (t telegramSink) Send(ctx context.Context, address string, ev reminder.DueEvent) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(address), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram sink: bad chat id %q: %w", address, err)
	}
	return t.s.SendText(ctx, chatID, ev.Text())
}

type mailSink struct{ s MailSender }

// NewMailSink delivers to email addresses.
func NewMailSink(s MailSender) Sink { return mailSink{s: s} }

func (mailSink) Name() string { return SinkEmail }

func (m mailSink) Send(ctx context.Context, address string, ev reminder.DueEvent) error {
	subject := "Reminder: " + ev.Label
	body := fmt.Sprintf("%s\n\nDue at %s.\n", ev.Text(), ev.FiredAt.Format("Mon 02 Jan 2006 15:04 MST"))
	return m.s.Send(ctx, address, subject, body)
}

// RecipientsFor flattens configured destinations into Recipients.
func RecipientsFor(chatIDs []int64, emails []string) []Recipient {
	out := make([]Recipient, 0, len(chatIDs)+len(emails))
	for _, id := range chatIDs {
		out = append(out, Recipient{Sink: SinkTelegram, Address: strconv.FormatInt(id, 10)})
	}
	for _, e := range emails {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, Recipient{Sink: SinkEmail, Address: e})
		}
	}
	return out
}
