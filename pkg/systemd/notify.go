// Package systemd reports service state to systemd through sd_notify. Every
// call is a no-op when the process is not started by a notify-type unit.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "joinmotd/pkg/logx"
)

// Notifier sends state lines. Tests replace send.
type Notifier struct {
	log  logx.Logger
	send func(state string) (bool, error)
}

func New(log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		log:  log,
		send: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
}

func (n *Notifier) notify(state string) {
	sent, err := n.send(state)
	if err != nil {
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("sd_notify", logx.String("state", state))
	}
}

func (n *Notifier) Ready()               { n.notify(daemon.SdNotifyReady) }
func (n *Notifier) Stopping()            { n.notify(daemon.SdNotifyStopping) }
func (n *Notifier) Reloading()           { n.notify(daemon.SdNotifyReloading) }
func (n *Notifier) Status(status string) { n.notify("STATUS=" + status) }

// Watchdog pings systemd at half the unit's WatchdogSec until ctx is done.
// healthy gates each ping; a nil healthy always pings. It returns at once
// when the watchdog is not enabled.
func (n *Notifier) Watchdog(ctx context.Context, healthy func() bool) error {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil || every <= 0 {
		return err
	}
	return n.watchdogLoop(ctx, every/2, healthy)
}

func (n *Notifier) watchdogLoop(ctx context.Context, every time.Duration, healthy func() bool) error {
	n.log.Info("systemd watchdog enabled", logx.Duration("interval", every))
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy == nil || healthy() {
				n.notify(daemon.SdNotifyWatchdog)
			} else {
				n.log.Warn("watchdog ping skipped: unhealthy")
			}
		}
	}
}
