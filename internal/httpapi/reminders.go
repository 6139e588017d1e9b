package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"memocare/internal/reminder"
	"memocare/internal/services/reminders"
)

type reminderBody struct {
	Label      string         `json:"label"`
	Category   string         `json:"category"`
	Recurrence recurrenceBody `json:"recurrence"`
	NextRunAt  *time.Time     `json:"next_run_at,omitempty"`
}

func (b reminderBody) input() reminders.Input {
	return reminders.Input{
		Label:      b.Label,
		Category:   b.Category,
		Recurrence: reminder.Recurrence(b.Recurrence),
		NextRunAt:  b.NextRunAt,
	}
}

// recurrenceBody accepts either the object form
// {"kind":"weekly","weekday":"mon","hour":9,"minute":0} or the short string
// form "weekly@mon 09:00".
type recurrenceBody reminder.Recurrence

func (r *recurrenceBody) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		rec, err := reminder.ParseRecurrence(s)
		if err != nil {
			return err
		}
		*r = recurrenceBody(rec)
		return nil
	}
	var raw struct {
		Kind    string          `json:"kind"`
		Weekday json.RawMessage `json:"weekday"`
		Hour    int             `json:"hour"`
		Minute  int             `json:"minute"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	wd, err := parseWeekday(raw.Weekday)
	if err != nil {
		return err
	}
	*r = recurrenceBody{
		Kind:    reminder.Kind(strings.ToLower(strings.TrimSpace(raw.Kind))),
		Weekday: wd,
		Hour:    raw.Hour,
		Minute:  raw.Minute,
	}
	return nil
}

func parseWeekday(raw json.RawMessage) (time.Weekday, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Sunday, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return time.Weekday(n), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("%w: weekday must be a number or a day name", reminder.ErrInvalid)
	}
	return reminder.ParseWeekday(s)
}

func parseBody(c *fiber.Ctx, dst any) error {
	if err := json.Unmarshal(c.Body(), dst); err != nil {
		if reminders.IsInvalid(err) {
			return err
		}
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body: "+err.Error())
	}
	return nil
}

func (s *Server) listReminders(c *fiber.Ctx) error {
	rs, err := s.deps.Reminders.List(c.UserContext(), ownerOf(c))
	if err != nil {
		return err
	}
	if rs == nil {
		rs = []reminder.Reminder{}
	}
	return c.JSON(fiber.Map{"reminders": rs})
}

func (s *Server) createReminder(c *fiber.Ctx) error {
	var body reminderBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	r, err := s.deps.Reminders.Add(c.UserContext(), ownerOf(c), body.input())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

func (s *Server) getReminder(c *fiber.Ctx) error {
	r, err := s.deps.Reminders.Get(c.UserContext(), ownerOf(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(r)
}

func (s *Server) updateReminder(c *fiber.Ctx) error {
	var body reminderBody
	if err := parseBody(c, &body); err != nil {
		return err
	}
	r, err := s.deps.Reminders.Edit(c.UserContext(), ownerOf(c), c.Params("id"), body.input())
	if err != nil {
		return err
	}
	return c.JSON(r)
}

func (s *Server) setReminderActive(c *fiber.Ctx) error {
	var body struct {
		Active *bool `json:"active"`
	}
	if err := parseBody(c, &body); err != nil {
		return err
	}
	if body.Active == nil {
		return fiber.NewError(fiber.StatusBadRequest, "active is required")
	}
	r, err := s.deps.Reminders.SetActive(c.UserContext(), ownerOf(c), c.Params("id"), *body.Active)
	if err != nil {
		return err
	}
	return c.JSON(r)
}

func (s *Server) deleteReminder(c *fiber.Ctx) error {
	if err := s.deps.Reminders.Delete(c.UserContext(), ownerOf(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
