package app

import (
	"github.com/coreos/go-systemd/v22/daemon"

	logx "horoscopebot/pkg/logx"
)

// sdNotifyFunc matches daemon.SdNotify.
type sdNotifyFunc func(unsetEnvironment bool, state string) (bool, error)

// notifySystemd reports a lifecycle state to the service manager. Outside a
// Type=notify unit NOTIFY_SOCKET is unset and this is a no-op.
func (a *App) notifySystemd(state string) {
	if a.sdNotify == nil {
		return
	}
	sent, err := a.sdNotify(false, state)
	if err != nil {
		a.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		a.log.Debug("sd_notify sent", logx.String("state", state))
	}
}

const (
	sdReady    = daemon.SdNotifyReady
	sdStopping = daemon.SdNotifyStopping
)
