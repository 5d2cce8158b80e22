package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, path, body string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestReloader_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "log:\n  level: info\n", time.Now().Add(-time.Hour))

	initial, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	r := NewReloader(path, initial, WithReloadLogger(zap.NewNop()))

	var gotOld, gotNew string
	r.OnReload(func(o, n *Config) {
		gotOld, gotNew = o.Log.Level, n.Log.Level
	})

	writeConfig(t, path, "log:\n  level: debug\n", time.Now())
	require.NoError(t, r.Reload())

	assert.Equal(t, "info", gotOld)
	assert.Equal(t, "debug", gotNew)
	assert.Equal(t, "debug", r.Current().Log.Level)
}

func TestReloader_InvalidKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "log:\n  level: warn\n", time.Now().Add(-time.Hour))
	initial, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	r := NewReloader(path, initial)

	called := false
	r.OnReload(func(*Config, *Config) { called = true })

	writeConfig(t, path, "log: [not, a, map\n", time.Now())
	assert.Error(t, r.Reload())
	assert.False(t, called)
	assert.Equal(t, "warn", r.Current().Log.Level)
}

func TestReloader_PollsForChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "log:\n  level: info\n", time.Now().Add(-time.Hour))
	initial, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	r := NewReloader(path, initial, WithPollInterval(10*time.Millisecond))
	var reloads atomic.Int32
	r.OnReload(func(*Config, *Config) { reloads.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Start(ctx))
	assert.Error(t, r.Start(ctx))

	writeConfig(t, path, "log:\n  level: error\n", time.Now())
	assert.Eventually(t, func() bool { return reloads.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	r.Stop()
	r.Stop()
	assert.Equal(t, "error", r.Current().Log.Level)
}

func TestRestartRequired(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	b.Log.Level = "debug"
	assert.Empty(t, RestartRequired(a, b))

	b.Engine.Workers = 16
	b.Server.HTTPPort = 9000
	assert.Equal(t, []string{"Server", "Engine"}, RestartRequired(a, b))
	assert.Nil(t, RestartRequired(nil, b))
}
