// Package systemd reports service state to systemd over the notify socket.
// Every call is a no-op when the process was not started by systemd.
package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

func notify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

// Ready tells systemd (Type=notify units) that startup finished.
func Ready() (bool, error) { return notify(daemon.SdNotifyReady) }

// Stopping tells systemd the service began shutting down.
func Stopping() (bool, error) { return notify(daemon.SdNotifyStopping) }

// Reloading marks a config reload in progress. Call Ready when it is done.
func Reloading() (bool, error) { return notify(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func Status(format string, args ...any) (bool, error) {
	return notify("STATUS=" + fmt.Sprintf(format, args...))
}

// Watchdog pings the systemd watchdog at half the configured WatchdogSec
// until ctx is done. healthy is consulted before every ping; a false result
// skips the ping so systemd restarts a wedged service. It returns at once
// when the watchdog is not enabled for this unit.
func Watchdog(ctx context.Context, healthy func() bool) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return err
	}
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && !healthy() {
				continue
			}
			if _, err := notify(daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
