// Package reminders holds the owner-scoped reminder operations shared by the
// HTTP API and the MCP tool server.
//
// Every call takes the caller's owner id. A reminder that belongs to someone
// else is reported as storage.ErrNotFound so other owners' ids stay hidden.
package reminders
