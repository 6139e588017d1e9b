// Package reminder defines the reminder entity, its closed set of recurrence
// kinds and the pure next-trigger calculation used by the scheduler.
package reminder
