package systemd

import (
	"fmt"
	"net"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
)

// Socket names expected in playtime.socket via FileDescriptorName=.
const (
	APISocketName     = "api"
	MetricsSocketName = "metrics"
)

// Listeners holds all systemd-activated listeners
type Listeners struct {
	API       net.Listener
	Metrics   net.Listener
	Activated bool
}

// GetListeners retrieves systemd socket-activated file descriptors.
// Returns nil listeners if not running under socket activation.
func GetListeners() (*Listeners, error) {
	listeners := &Listeners{}

	fds := activation.Files(false)
	if len(fds) == 0 {
		return listeners, nil
	}
	listeners.Activated = true

	// Requires systemd 227+
	named, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}

	return fromNamed(listeners, named), nil
}

func fromNamed(listeners *Listeners, named map[string][]net.Listener) *Listeners {
	if lns, ok := named[APISocketName]; ok && len(lns) > 0 {
		listeners.API = lns[0]
	}
	if lns, ok := named[MetricsSocketName]; ok && len(lns) > 0 {
		listeners.Metrics = lns[0]
	}
	return listeners
}

// NotifyReady sends READY=1 notification to systemd
func NotifyReady() error {
	return notify(daemon.SdNotifyReady)
}

// NotifyStopping sends STOPPING=1 notification to systemd
func NotifyStopping() error {
	return notify(daemon.SdNotifyStopping)
}

// NotifyWatchdog sends WATCHDOG=1 notification to systemd.
// This should be called periodically to prevent watchdog timeout.
func NotifyWatchdog() error {
	return notify(daemon.SdNotifyWatchdog)
}

// notify is a no-op outside systemd.
func notify(state string) error {
	if _, err := daemon.SdNotify(false, state); err != nil {
		return fmt.Errorf("failed to send sd_notify %s: %w", state, err)
	}
	return nil
}

// WatchdogInterval returns half the configured WatchdogSec, or zero when the
// watchdog is not enabled for this process.
func WatchdogInterval() (time.Duration, error) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0, fmt.Errorf("failed to read watchdog settings: %w", err)
	}
	return interval / 2, nil
}
