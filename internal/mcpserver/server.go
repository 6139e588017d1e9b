// Package mcpserver exposes reminder management as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"memocare/internal/reminder"
	"memocare/internal/services/reminders"
	logx "memocare/pkg/logx"
)

const (
	serverName    = "memocare"
	serverVersion = "1.0.0"
)

// Reminders is the owner-scoped reminder service the tools call.
type Reminders interface {
	List(ctx context.Context, ownerID string) ([]reminder.Reminder, error)
	Add(ctx context.Context, ownerID string, in reminders.Input) (reminder.Reminder, error)
	SetActive(ctx context.Context, ownerID, id string, active bool) (reminder.Reminder, error)
	Delete(ctx context.Context, ownerID, id string) error
	ListDue(ctx context.Context, asOf time.Time) ([]reminder.Reminder, error)
}

type Server struct {
	mcpServer *server.MCPServer
	rem       Reminders
	log       logx.Logger
}

func New(rem Reminders, log logx.Logger) *Server {
	s := &Server{rem: rem, log: log.With(logx.String("comp", "mcp"))}
	s.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying server for ServeStdio.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("list_reminders",
			mcp.WithDescription("List all reminders of one owner"),
			mcp.WithString("owner_id", mcp.Required(), mcp.Description("Owner (care recipient) id")),
		),
		s.handleList,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("add_reminder",
			mcp.WithDescription("Create a reminder. Recurring reminders default their first run to the next occurrence"),
			mcp.WithString("owner_id", mcp.Required(), mcp.Description("Owner (care recipient) id")),
			mcp.WithString("label", mcp.Required(), mcp.Description("Text shown when the reminder fires")),
			mcp.WithString("category", mcp.Description("medication, meal, appointment, task or other (default: other)")),
			mcp.WithString("recurrence", mcp.Required(), mcp.Description("once, hourly, daily@HH:MM or weekly@<mon..sun> HH:MM")),
			mcp.WithString("next_run_at", mcp.Description("First run in RFC3339; required for once")),
		),
		s.handleAdd,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("set_reminder_active",
			mcp.WithDescription("Pause or resume a reminder"),
			mcp.WithString("owner_id", mcp.Required(), mcp.Description("Owner (care recipient) id")),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder id")),
			mcp.WithBoolean("active", mcp.Required(), mcp.Description("true resumes, false pauses")),
		),
		s.handleSetActive,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("delete_reminder",
			mcp.WithDescription("Delete a reminder permanently"),
			mcp.WithString("owner_id", mcp.Required(), mcp.Description("Owner (care recipient) id")),
			mcp.WithString("id", mcp.Required(), mcp.Description("Reminder id")),
		),
		s.handleDelete,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_due",
			mcp.WithDescription("List active reminders due at or before a time, across all owners"),
			mcp.WithString("as_of", mcp.Description("RFC3339 time (default: now)")),
		),
		s.handleListDue,
	)
}

func (s *Server) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner := req.GetString("owner_id", "")
	if strings.TrimSpace(owner) == "" {
		return mcp.NewToolResultError("owner_id is required"), nil
	}
	list, err := s.rem.List(ctx, owner)
	if err != nil {
		return s.fail("list reminders", err), nil
	}
	if len(list) == 0 {
		return mcp.NewToolResultText("No reminders found."), nil
	}
	return jsonResult(list), nil
}

func (s *Server) handleAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner := req.GetString("owner_id", "")
	rec, err := reminder.ParseRecurrence(req.GetString("recurrence", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := reminders.Input{
		Label:      req.GetString("label", ""),
		Category:   req.GetString("category", ""),
		Recurrence: rec,
	}
	if raw := strings.TrimSpace(req.GetString("next_run_at", "")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid next_run_at: %v (use RFC3339, e.g. 2025-01-15T09:00:00Z)", err)), nil
		}
		in.NextRunAt = &t
	}
	r, err := s.rem.Add(ctx, owner, in)
	if err != nil {
		return s.fail("add reminder", err), nil
	}
	return jsonResult(r), nil
}

func (s *Server) handleSetActive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	v, ok := args["active"].(bool)
	if !ok {
		return mcp.NewToolResultError("active is required and must be a boolean"), nil
	}
	r, err := s.rem.SetActive(ctx, req.GetString("owner_id", ""), req.GetString("id", ""), v)
	if err != nil {
		return s.fail("set reminder active", err), nil
	}
	return jsonResult(r), nil
}

func (s *Server) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if err := s.rem.Delete(ctx, req.GetString("owner_id", ""), id); err != nil {
		return s.fail("delete reminder", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Reminder %s deleted.", id)), nil
}

func (s *Server) handleListDue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var asOf time.Time
	if raw := strings.TrimSpace(req.GetString("as_of", "")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid as_of: %v", err)), nil
		}
		asOf = t
	}
	list, err := s.rem.ListDue(ctx, asOf)
	if err != nil {
		return s.fail("list due reminders", err), nil
	}
	if len(list) == 0 {
		return mcp.NewToolResultText("No due reminders."), nil
	}
	return jsonResult(list), nil
}

// fail turns a service error into a tool error. Validation and not-found
// errors are the caller's fault and are not logged.
func (s *Server) fail(op string, err error) *mcp.CallToolResult {
	switch {
	case reminders.IsNotFound(err):
		return mcp.NewToolResultError("reminder not found")
	case reminders.IsInvalid(err):
		return mcp.NewToolResultError(err.Error())
	}
	s.log.Error("tool failed", logx.String("op", op), logx.Err(err))
	return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", op, err))
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}
