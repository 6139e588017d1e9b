package httpapi

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"memocare/internal/eventbus"
	"memocare/internal/notify"
	"memocare/internal/reminder"
	logx "memocare/pkg/logx"
)

const (
	wsBuffer       = 32
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// wsUpgrade authenticates the ?token= query parameter before the upgrade;
// browsers cannot set headers on websocket requests.
func (s *Server) wsUpgrade(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		owner, err := ownerFromToken(c.Query("token"), secret)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, err.Error())
		}
		c.Locals(ownerLocal, owner)
		return c.Next()
	}
}

// wsConn serializes writes; the ping loop and the event loop share the conn.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(v)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

// dueStream pushes the owner's due events as JSON until the client goes away.
func (s *Server) dueStream() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		owner, _ := c.Locals(ownerLocal).(string)
		log := s.log.With(logx.String("owner", owner))

		ch, unsubscribe := s.deps.Bus.Subscribe(eventbus.OwnerTopic(owner), wsBuffer)
		defer unsubscribe()

		// Reads only detect the close; clients have nothing to send.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}()

		w := &wsConn{conn: c}
		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()

		log.Debug("due stream opened")
		defer log.Debug("due stream closed")
		for {
			select {
			case <-closed:
				return
			case <-ping.C:
				if err := w.ping(); err != nil {
					return
				}
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Type != notify.EventDue {
					continue
				}
				due, ok := ev.Data.(reminder.DueEvent)
				if !ok {
					continue
				}
				if err := w.writeJSON(fiber.Map{"type": ev.Type, "event": due}); err != nil {
					if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						log.Debug("due stream write failed", logx.Err(err))
					}
					return
				}
			}
		}
	})
}
