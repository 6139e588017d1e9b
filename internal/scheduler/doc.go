// Package scheduler fires due reminders.
//
// A cron entry (robfig/cron, in the configured timezone) calls Tick. Each tick
// reads the due reminders once, then handles them one at a time: compute the
// outcome from the recurrence, persist it with MarkFired, and only then
// publish the DueEvent. A failed MarkFired skips the publish; a failed publish
// does not roll the schedule back.
//
// Ticks never overlap, whether triggered by cron or by an operator. With a
// cross-instance lock configured, only one instance ticks at a time.
package scheduler
