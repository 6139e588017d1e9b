package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"memocare/internal/scheduler"
	"memocare/internal/services/reminders"
	logx "memocare/pkg/logx"
)

// errorHandler renders every failure as {"error": "..."}.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := err.Error()

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
		msg = fe.Message
	case reminders.IsInvalid(err):
		code = fiber.StatusBadRequest
	case reminders.IsNotFound(err):
		code = fiber.StatusNotFound
		msg = "not found"
	case errors.Is(err, scheduler.ErrTickInProgress), errors.Is(err, scheduler.ErrLockHeld):
		code = fiber.StatusConflict
	default:
		s.log.Error("request failed",
			logx.String("method", c.Method()),
			logx.String("path", c.Path()),
			logx.Err(err),
		)
		msg = "internal error"
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
