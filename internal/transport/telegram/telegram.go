// Package telegram is the telebot adapter: it answers /start with the chat id,
// delivers reminder text and forwards ops alerts.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	logx "memocare/pkg/logx"
)

// maxMessageRunes is Telegram's text limit per message.
const maxMessageRunes = 4096

var ErrNotConfigured = errors.New("telegram token is empty")

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// sender is the slice of *tele.Bot the adapter sends through.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot  *tele.Bot
	send sender

	runMu     sync.Mutex
	running   bool
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrNotConfigured
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	a := &Adapter{cfg: cfg, log: log.With(logx.String("comp", "telegram")), bot: b, send: b}
	b.Handle("/start", a.onStart)
	return a, nil
}

func (a *Adapter) onStart(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	a.log.Info("start command", logx.Int64("chat_id", chat.ID))
	return c.Send(startReply(chat.ID))
}

func startReply(chatID int64) string {
	return fmt.Sprintf("Hi! This chat id is %d.\nAdd it under recipients.<owner>.telegram_chat_ids to receive reminders here.", chatID)
}

// Start begins long polling until ctx is done or Stop is called.
func (a *Adapter) Start(ctx context.Context) {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running || a.bot == nil {
		return
	}
	a.running = true
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel

	a.runWG.Add(1)
	go func() {
		defer a.runWG.Done()
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started")
		a.bot.Start()
	}()
}

// Stop ends polling. It waits at most two seconds (or until ctx is done) so a
// pending getUpdates call cannot hold up shutdown.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		a.log.Warn("telegram stop cancelled", logx.Err(ctx.Err()))
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

// SendText posts text to chatID, split into several messages when it exceeds
// the Telegram limit.
func (a *Adapter) SendText(ctx context.Context, chatID int64, text string) error {
	return a.sendChunks(ctx, chatID, 0, text)
}

// SendAlert posts an ops alert, optionally into a forum thread.
func (a *Adapter) SendAlert(ctx context.Context, chatID int64, threadID int, text string) error {
	return a.sendChunks(ctx, chatID, threadID, text)
}

func (a *Adapter) sendChunks(ctx context.Context, chatID int64, threadID int, text string) error {
	if chatID == 0 {
		return errors.New("telegram: chat id is zero")
	}
	opt := &tele.SendOptions{DisableWebPagePreview: true, ThreadID: threadID}
	for _, part := range splitText(text, maxMessageRunes) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.send.Send(tele.ChatID(chatID), part, opt); err != nil {
			return fmt.Errorf("telegram send to %d: %w", chatID, err)
		}
	}
	return nil
}

// splitText cuts s into chunks of at most n runes, preferring line breaks.
func splitText(s string, n int) []string {
	if utf8.RuneCountInString(s) <= n {
		return []string{s}
	}
	var out []string
	for utf8.RuneCountInString(s) > n {
		cut := runeOffset(s, n)
		if i := strings.LastIndexByte(s[:cut], '\n'); i > 0 {
			cut = i + 1
		}
		out = append(out, strings.TrimRight(s[:cut], "\n"))
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// runeOffset returns the byte offset of the n-th rune in s.
func runeOffset(s string, n int) int {
	i := 0
	for off := range s {
		if i == n {
			return off
		}
		i++
	}
	return len(s)
}
