package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "clairvoyance/pkg/logx"
)

const statusInterval = 30 * time.Second

// sdNotify is a no-op outside systemd (NOTIFY_SOCKET unset).
func sdNotify(log logx.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
	}
}

func notifyReady(log logx.Logger)    { sdNotify(log, daemon.SdNotifyReady) }
func notifyStopping(log logx.Logger) { sdNotify(log, daemon.SdNotifyStopping) }

// statusLoop publishes a one-line run summary as the unit status.
func (a *App) statusLoop(ctx context.Context) {
	t := time.NewTicker(statusInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sdNotify(a.log, "STATUS="+a.statusLine())
		}
	}
}

func (a *App) statusLine() string {
	st := a.orch.Stats()
	state := "scanning"
	if st.Paused {
		state = "paused"
	}
	return fmt.Sprintf("%s: %.1f min, %d/%d workers allocated, %d banned, queue %d",
		state, st.MinutesRunning, st.WorkersAllocated, st.Workers, st.WorkersBanned, st.Queue.Pending)
}
