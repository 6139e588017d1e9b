package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tele "gopkg.in/telebot.v4"

	logx "memocare/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	chats []string
	opts  []*tele.SendOptions
	err   error
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.chats = append(f.chats, to.Recipient())
	f.sent = append(f.sent, what.(string))
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok {
			f.opts = append(f.opts, so)
		}
	}
	return &tele.Message{ID: len(f.sent)}, nil
}

func newTestAdapter(s sender) *Adapter {
	return &Adapter{log: logx.Nop(), send: s}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: "  "}, logx.Nop()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("New err = %v, want ErrNotConfigured", err)
	}
}

func TestSendText(t *testing.T) {
	t.Parallel()
	f := &fakeSender{}
	a := newTestAdapter(f)
	if err := a.SendText(context.Background(), 42, "Reminder (meal): lunch"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if len(f.sent) != 1 || f.sent[0] != "Reminder (meal): lunch" || f.chats[0] != "42" {
		t.Fatalf("sent = %v to %v", f.sent, f.chats)
	}
	if f.opts[0].ThreadID != 0 {
		t.Fatalf("thread id = %d, want 0", f.opts[0].ThreadID)
	}
}

func TestSendAlertUsesThread(t *testing.T) {
	t.Parallel()
	f := &fakeSender{}
	a := newTestAdapter(f)
	if err := a.SendAlert(context.Background(), -100, 7, "disk full"); err != nil {
		t.Fatalf("SendAlert: %v", err)
	}
	if f.opts[0].ThreadID != 7 || f.chats[0] != "-100" {
		t.Fatalf("opts = %+v chats = %v", f.opts[0], f.chats)
	}
}

func TestSendTextErrors(t *testing.T) {
	t.Parallel()
	f := &fakeSender{err: errors.New("forbidden")}
	a := newTestAdapter(f)
	if err := a.SendText(context.Background(), 1, "x"); err == nil || !strings.Contains(err.Error(), "forbidden") {
		t.Fatalf("err = %v", err)
	}
	if err := a.SendText(context.Background(), 0, "x"); err == nil {
		t.Fatal("zero chat id should fail")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := newTestAdapter(&fakeSender{}).SendText(ctx, 1, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled err = %v", err)
	}
}

func TestSplitText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		n    int
		want []string
	}{
		{"short", "hello", 10, []string{"hello"}},
		{"hard cut", "abcdefgh", 3, []string{"abc", "def", "gh"}},
		{"prefers newline", "ab\ncdef", 4, []string{"ab", "cdef"}},
		{"multibyte", "ééééé", 2, []string{"éé", "éé", "é"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := splitText(tt.in, tt.n)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Fatalf("splitText(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestStartReplyMentionsChatID(t *testing.T) {
	t.Parallel()
	if got := startReply(-100123); !strings.Contains(got, "-100123") {
		t.Fatalf("reply = %q", got)
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	t.Parallel()
	if err := newTestAdapter(&fakeSender{}).Stop(context.Background()); err != nil {
		t.Fatalf("Stop = %v", err)
	}
}
