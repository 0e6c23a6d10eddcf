package viper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schedule struct {
	OpenTickInterval time.Duration `mapstructure:"open-tick-interval"`
	WorkerPoolSize   int           `mapstructure:"worker-pool-size"`
}

func TestLoadFileAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("livesession:\n  open-tick-interval: 2s\n"), 0o600))

	cfg := New()
	cfg.SetDefault("livesession.worker-pool-size", 16)
	require.NoError(t, cfg.LoadFile(path))
	assert.True(t, cfg.IsSet("livesession.open-tick-interval"))

	var root struct {
		LiveSession schedule `mapstructure:"livesession"`
	}
	require.NoError(t, cfg.Unmarshal(&root))
	assert.Equal(t, 2*time.Second, root.LiveSession.OpenTickInterval)
	assert.Equal(t, 16, root.LiveSession.WorkerPoolSize)
}

func TestLoadFileMissing(t *testing.T) {
	cfg := New()
	assert.Error(t, cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestBindEnvPrefixOverridesKnownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  httpapi:\n    level: info\n"), 0o600))
	t.Setenv("LIVESESSION_LOGGING_HTTPAPI_LEVEL", "debug")
	t.Setenv("LIVESESSION_LIVESESSION_WORKER_POOL_SIZE", "4")

	cfg := New()
	cfg.SetDefault("livesession.worker-pool-size", 16)
	require.NoError(t, cfg.LoadFile(path))
	cfg.BindEnvPrefix("LIVESESSION_")

	var root struct {
		Logging     map[string]struct{ Level string } `mapstructure:"logging"`
		LiveSession schedule                          `mapstructure:"livesession"`
	}
	require.NoError(t, cfg.Unmarshal(&root))
	assert.Equal(t, "debug", root.Logging["httpapi"].Level)
	assert.Equal(t, 4, root.LiveSession.WorkerPoolSize)
}
