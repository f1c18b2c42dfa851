package main

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "taskscheduler/pkg/logx"
)

// notifyReady tells systemd the daemon has finished starting. A no-op
// outside a systemd unit with Type=notify (NOTIFY_SOCKET unset).
func notifyReady(log logx.Logger) {
	ok, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		log.Warn("sdnotify ready failed", logx.Err(err))
		return
	}
	if ok {
		log.Debug("sdnotify ready delivered")
	}
}

// notifyStopping tells systemd the daemon is shutting down.
func notifyStopping(log logx.Logger) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// runWatchdog pings systemd's watchdog at half the interval systemd asked
// for (WATCHDOG_USEC), until ctx is cancelled. A no-op if the watchdog is
// not enabled for this unit.
func runWatchdog(ctx context.Context, log logx.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ping := interval / 2
	log.Debug("watchdog enabled", logx.Duration("interval", interval))

	ticker := time.NewTicker(ping)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				log.Warn("sdnotify watchdog failed", logx.Err(err))
			}
		}
	}
}
