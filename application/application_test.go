package application

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/lk2023060901/danmu-live-session/internal/livesession"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	body = strings.ReplaceAll(body, "{{dir}}", dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
livesession:
  break-tick-interval: 2s
  max-inactive-duration: 30m
storage:
  sqlite:
    path: {{dir}}/ls.db
`)
	t.Setenv("LIVESESSION_WORKER_POOL_SIZE", "8")
	t.Setenv("LIVESESSION_NOTIFY_POOL_SIZE", "3")

	app := &Application{args: []string{"--config", path}}
	require.NoError(t, app.loadConfig())

	cfg := app.Config()
	assert.Equal(t, time.Second, cfg.LiveSession.OpenTickInterval)
	assert.Equal(t, 2*time.Second, cfg.LiveSession.BreakTickInterval)
	assert.Equal(t, time.Minute, cfg.LiveSession.MonitorTickInterval)
	assert.Equal(t, 30*time.Minute, cfg.LiveSession.MaxInactiveDuration)
	assert.Equal(t, 8, cfg.LiveSession.WorkerPoolSize)
	assert.Equal(t, 3, cfg.Notify.PoolSize)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "ls.db"), cfg.Storage.SQLite.Path)
	assert.Empty(t, cfg.HTTP.Addr)
}

func TestModuleLoggerLevelFromEnv(t *testing.T) {
	path := writeConfig(t, `
logging:
  httpapi:
    level: info
  livesession:
    level: warn
`)
	t.Setenv("LIVESESSION_LOGGING_HTTPAPI_LEVEL", "debug")

	app := &Application{args: []string{"--config", path}}
	require.NoError(t, app.loadConfig())
	require.NoError(t, app.initModuleLoggersFromConfig())

	assert.True(t, app.Logger("httpapi").Core().Enabled(zapcore.DebugLevel))
	assert.False(t, app.Logger("livesession").Core().Enabled(zapcore.InfoLevel))
	assert.True(t, app.Logger("livesession").Core().Enabled(zapcore.WarnLevel))
}

func TestLoadConfigPathResolution(t *testing.T) {
	path := writeConfig(t, "livesession: {}\n")
	t.Setenv("LIVESESSION_CONFIG_FILE_PATH", path)

	app := &Application{}
	require.NoError(t, app.loadConfig())

	app = &Application{args: []string{"--config=" + filepath.Join(t.TempDir(), "missing.yaml")}}
	assert.Error(t, app.loadConfig())

	app = &Application{args: []string{"--config"}}
	assert.Error(t, app.loadConfig())
}

func TestStartServeAndShutdown(t *testing.T) {
	path := writeConfig(t, `
storage:
  sqlite:
    path: {{dir}}/ls.db
http:
  addr: 127.0.0.1:0
logging:
  livesession:
    level: debug
`)
	ctx := context.Background()
	app := &Application{args: []string{"--config", path}}
	require.NoError(t, app.Start(ctx))

	require.NoError(t, app.Store().CreateSession(ctx, livesession.SessionRecord{ID: "ls-app", Status: livesession.StatusReady}))
	_, err := app.Engine().Attach(ctx, "ls-app")
	require.NoError(t, err)
	assert.True(t, app.Engine().OpenScheduler().Running())

	resp, err := http.Post("http://"+app.Addr()+"/sessions/ls-app/touch", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	sess, ok := app.Engine().Session("ls-app")
	require.True(t, ok)
	assert.Equal(t, livesession.StatusOpened, sess.Status())

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	assert.NoError(t, app.Shutdown(shutdownCtx))
	assert.False(t, app.Engine().OpenScheduler().Running())
}

func TestStartRejectsInvalidEngineConfig(t *testing.T) {
	path := writeConfig(t, `
livesession:
  worker-pool-size: 0
storage:
  sqlite:
    path: {{dir}}/ls.db
`)
	app := &Application{args: []string{"--config", path}}
	err := app.Start(context.Background())
	assert.Error(t, err)
	assert.Nil(t, app.Store())
}
