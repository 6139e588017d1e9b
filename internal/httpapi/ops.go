package httpapi

import (
	"github.com/gofiber/fiber/v2"
)

func (s *Server) schedulerSnapshot(c *fiber.Ctx) error {
	if s.deps.Scheduler == nil {
		return fiber.ErrNotFound
	}
	return c.JSON(s.deps.Scheduler.Snapshot())
}

// schedulerTick runs one tick now. It answers 409 when a tick is already
// running here or another instance holds the tick lock.
func (s *Server) schedulerTick(c *fiber.Ctx) error {
	if s.deps.Scheduler == nil {
		return fiber.ErrNotFound
	}
	rep, err := s.deps.Scheduler.Tick(c.UserContext())
	if err != nil {
		return err
	}
	errs := make([]string, 0, len(rep.Errors))
	for _, e := range rep.Errors {
		errs = append(errs, e.Error())
	}
	return c.JSON(fiber.Map{"report": rep, "errors": errs})
}

func (s *Server) supervisors(c *fiber.Ctx) error {
	if s.deps.Supervisors == nil {
		return c.JSON(fiber.Map{})
	}
	return c.JSON(s.deps.Supervisors.Snapshot())
}

func (s *Server) notifyStats(c *fiber.Ctx) error {
	if s.deps.Delivery == nil {
		return fiber.ErrNotFound
	}
	return c.JSON(s.deps.Delivery.Stats())
}
