package systemd

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetListeners_NotActivated(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	listeners, err := GetListeners()
	require.NoError(t, err)
	assert.False(t, listeners.Activated)
	assert.Nil(t, listeners.API)
	assert.Nil(t, listeners.Metrics)
}

func TestFromNamed(t *testing.T) {
	api, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer api.Close()

	got := fromNamed(&Listeners{Activated: true}, map[string][]net.Listener{
		APISocketName: {api},
		"unrelated":   {api},
	})
	assert.Equal(t, api, got.API)
	assert.Nil(t, got.Metrics)
}

func TestNotifyOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	assert.NoError(t, NotifyReady())
	assert.NoError(t, NotifyWatchdog())
	assert.NoError(t, NotifyStopping())

	interval, err := WatchdogInterval()
	require.NoError(t, err)
	assert.Zero(t, interval)
}
