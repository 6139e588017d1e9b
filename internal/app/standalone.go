package app

import (
	"io"
	"time"

	"memocare/internal/config"
	"memocare/internal/services/reminders"
	"memocare/internal/storage"
	logx "memocare/pkg/logx"
)

// OpenReminders builds only the reminder service over the configured store,
// for tools that share the store but not the scheduler (cmd/memocare-mcp).
// The returned closer releases the store.
func OpenReminders(cfgPath string, log logx.Logger) (*reminders.Service, io.Closer, error) {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return nil, nil, err
	}
	sc, err := mapStorage(cfg)
	if err != nil {
		return nil, nil, err
	}
	loc, err := config.ParseLocation("scheduler.timezone", cfg.Scheduler.Timezone)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(sc, log)
	if err != nil {
		return nil, nil, err
	}
	svc := reminders.New(store, log, reminders.WithLocation(func() *time.Location { return loc }))
	return svc, store, nil
}
