package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horoscopebot/internal/config"
	"horoscopebot/internal/content"
	"horoscopebot/internal/delivery"
	"horoscopebot/internal/session"
	"horoscopebot/internal/task/scheduler"
	logx "horoscopebot/pkg/logx"
)

func baseConfig() *config.Config {
	cfg := &config.Config{
		Channel: config.ChannelConfig{Recipient: "+34 600 111 222"},
		Content: config.ContentConfig{Subjects: []string{"cancer", "acuario"}},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	sc, enabled, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, "file", sc.Driver)
	assert.Equal(t, config.DefaultRunLogPath, sc.Path)

	cfg.Storage = config.StorageConfig{Driver: "sqlite", Path: "./runs.db", BusyTimeout: "3s"}
	sc, enabled, err = mapStorageConfig(cfg)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, 3*time.Second, sc.BusyTimeout)

	cfg.Storage = config.StorageConfig{Driver: "none"}
	_, enabled, err = mapStorageConfig(cfg)
	require.NoError(t, err)
	assert.False(t, enabled)

	cfg.Storage = config.StorageConfig{Driver: "sqlite"}
	_, _, err = mapStorageConfig(cfg)
	assert.Error(t, err)

	cfg.Storage = config.StorageConfig{Driver: "sqlite", Path: "x", BusyTimeout: "soon"}
	_, _, err = mapStorageConfig(cfg)
	assert.Error(t, err)
}

func TestMapDeliveryConfig(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Delivery.LogMessages = true
	dc := mapDeliveryConfig(cfg)
	assert.Equal(t, []content.Subject{"cancer", "acuario"}, dc.Subjects)
	assert.Equal(t, config.DefaultSubjectDelay, dc.SubjectDelay)
	assert.Equal(t, "+34 600 111 222", dc.Recipient)
	assert.True(t, dc.LogMessages)
}

func TestBuildLoaderSelectsDriver(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	_, ok := BuildLoader(cfg).(*content.BrowserLoader)
	assert.True(t, ok)

	cfg.Content.Driver = "http"
	_, ok = BuildLoader(cfg).(*content.HTTPLoader)
	assert.True(t, ok)
}

func TestBuildChannel(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	ch, err := buildChannel(cfg, logx.Nop())
	require.NoError(t, err)
	assert.NotNil(t, ch)

	cfg.Channel.Recipient = "not a phone"
	_, err = buildChannel(cfg, logx.Nop())
	assert.Error(t, err)

	cfg = baseConfig()
	cfg.Channel.Driver = "telegram"
	_, err = buildChannel(cfg, logx.Nop())
	assert.Error(t, err, "telegram requires a token")

	cfg.Channel.TelegramToken = "123:abc"
	_, err = buildChannel(cfg, logx.Nop())
	assert.NoError(t, err)

	cfg.Channel.Driver = "signal"
	_, err = buildChannel(cfg, logx.Nop())
	assert.Error(t, err)
}

type readySender struct{}

func (readySender) State() session.State                        { return session.State{Phase: session.Ready} }
func (readySender) Send(context.Context, string, string) error { return nil }

type nopFetcher struct{}

func (nopFetcher) Fetch(_ context.Context, s content.Subject) content.Result { return content.Fallback(s) }

func TestOnReadyArmsTriggersOnce(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Schedule.WeeklyEnabled = true
	cfg.Schedule.SendOnStartup = true
	cfg.Schedule.StartupDelay = "1h"

	a := &App{
		cfg:   cfg,
		log:   logx.Nop(),
		sched: scheduler.New(scheduler.Config{Timezone: "UTC"}, logx.Nop()),
		orch:  delivery.New(mapDeliveryConfig(cfg), readySender{}, nopFetcher{}),
	}

	// a reconnect fires the ready hook again
	a.onReady(context.Background())
	a.onReady(context.Background())

	snap := a.sched.Snapshot()
	require.Len(t, snap.Schedules, 2)
	specs := map[string]string{}
	for _, s := range snap.Schedules {
		specs[s.Name] = s.Spec
	}
	assert.Equal(t, "0 8 * * *", specs[jobDaily])
	assert.Equal(t, "0 9 * * 0", specs[jobWeekly])

	require.Len(t, snap.Once, 1)
	assert.Equal(t, jobStartup, snap.Once[0].Name)
}

func TestOnReadyReportsStatus(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	var states []string
	a := &App{
		cfg:   cfg,
		log:   logx.Nop(),
		sched: scheduler.New(scheduler.Config{Timezone: "UTC"}, logx.Nop()),
		orch:  delivery.New(mapDeliveryConfig(cfg), readySender{}, nopFetcher{}),
		sdNotify: func(_ bool, state string) (bool, error) {
			states = append(states, state)
			return false, nil
		},
	}
	a.onReady(context.Background())

	require.Len(t, states, 1)
	assert.True(t, strings.HasPrefix(states[0], "STATUS=session ready; next delivery "), states[0])
	assert.Contains(t, states[0], " 08:00 UTC")
}

func TestNotifySystemdWithoutManager(t *testing.T) {
	t.Parallel()

	a := &App{log: logx.Nop()}
	a.notifySystemd(sdReady)

	var calls int
	a.sdNotify = func(bool, string) (bool, error) {
		calls++
		return false, errors.New("sendto: connection refused")
	}
	a.notifySystemd(sdStopping)
	assert.Equal(t, 1, calls)
}

func TestOnReadyWithoutWeekly(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	a := &App{
		cfg:   cfg,
		log:   logx.Nop(),
		sched: scheduler.New(scheduler.Config{}, logx.Nop()),
		orch:  delivery.New(mapDeliveryConfig(cfg), readySender{}, nopFetcher{}),
	}
	a.onReady(context.Background())

	snap := a.sched.Snapshot()
	require.Len(t, snap.Schedules, 1)
	assert.Equal(t, jobDaily, snap.Schedules[0].Name)
	assert.Empty(t, snap.Once)
}

func TestOpenRunLogFailureOnlyDisablesLogging(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	cfg := baseConfig()
	cfg.Delivery.LogMessages = true
	cfg.Storage = config.StorageConfig{Driver: "sqlite", Path: filepath.Join(blocker, "runs.db")}

	st, err := openRunLog(cfg, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, st)

	cfg.Storage = config.StorageConfig{Driver: "file", Path: filepath.Join(t.TempDir(), "runs.log")}
	st, err = openRunLog(cfg, logx.Nop())
	require.NoError(t, err)
	require.NotNil(t, st)
	require.NoError(t, st.Close())

	cfg.Delivery.LogMessages = false
	st, err = openRunLog(cfg, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("channel:\n  driver: pigeon\n"), 0o600))

	_, err := New(path, Options{})
	assert.Error(t, err)
}
