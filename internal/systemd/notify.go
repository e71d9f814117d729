// Package systemd reports service readiness and liveness to systemd.
//
// Outside a Type=notify unit NOTIFY_SOCKET is unset and every call is a no-op.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify messages for one service.
type Notifier struct {
	logger *slog.Logger
	notify func(state string) (bool, error)
	wdog   func() (time.Duration, error)
}

// NewNotifier creates a notifier using the NOTIFY_SOCKET of the process.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		logger: logger.With("component", "systemd"),
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		wdog: func() (time.Duration, error) {
			return daemon.SdWatchdogEnabled(false)
		},
	}
}

// Ready tells systemd start-up has finished.
func (n *Notifier) Ready() {
	n.send(daemon.SdNotifyReady)
}

// Stopping tells systemd shutdown has begun.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(format string, args ...any) {
	n.send("STATUS=" + fmt.Sprintf(format, args...))
}

// RunWatchdog pings the systemd watchdog at half the configured interval
// until ctx is done. alive gates each ping. It returns at once when the unit
// has no watchdog.
func (n *Notifier) RunWatchdog(ctx context.Context, alive func() bool) {
	interval, err := n.wdog()
	if err != nil {
		n.logger.Warn("Failed to read watchdog settings", "error", err)
		return
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	n.logger.Debug("Watchdog enabled", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if alive == nil || alive() {
				n.send(daemon.SdNotifyWatchdog)
			}
		}
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify sent", "state", state)
	}
}
