package hosting

import "github.com/coreos/go-systemd/v22/daemon"

// Service-manager states.
const (
	StateReady    = daemon.SdNotifyReady
	StateStopping = daemon.SdNotifyStopping
)

// Notifier reports lifecycle states to the service manager. The bool is
// false when no manager is listening.
type Notifier interface {
	Notify(state string) (bool, error)
}

// SystemdNotifier uses sd_notify. Without NOTIFY_SOCKET it reports false
// and does nothing, which covers non-systemd hosts and other platforms.
type SystemdNotifier struct{}

func (SystemdNotifier) Notify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

// NopNotifier ignores every state.
type NopNotifier struct{}

func (NopNotifier) Notify(string) (bool, error) { return false, nil }
