package application

import (
	"time"

	"github.com/lk2023060901/danmu-live-session/internal/livesession"
	"github.com/lk2023060901/danmu-live-session/internal/storage/sqlite"
)

// envPrefix 为所有环境变量覆盖项的公共前缀。
const envPrefix = "LIVESESSION_"

// Config 为进程级配置。先由配置文件加载，再由 LIVESESSION_* 环境变量覆盖。
type Config struct {
	LiveSession livesession.Config `mapstructure:"livesession"`
	Storage     StorageConfig      `mapstructure:"storage" envPrefix:"STORAGE_"`
	Notify      NotifyConfig       `mapstructure:"notify" envPrefix:"NOTIFY_"`
	HTTP        HTTPConfig         `mapstructure:"http" envPrefix:"HTTP_"`
}

type StorageConfig struct {
	SQLite sqlite.Config `mapstructure:"sqlite" envPrefix:"SQLITE_"`
}

type NotifyConfig struct {
	// PoolSize 为推送投递的协程数。
	PoolSize int `mapstructure:"pool-size" env:"POOL_SIZE"`
}

type HTTPConfig struct {
	// Addr 为回调与运维接口的监听地址，留空表示不启动。
	Addr string `mapstructure:"addr" env:"ADDR"`
	// ShutdownTimeout 为优雅关闭 HTTP 服务的最长等待时间。
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout" env:"SHUTDOWN_TIMEOUT"`
}

var defaults = map[string]any{
	"livesession.open-tick-interval":    time.Second,
	"livesession.break-tick-interval":   time.Second,
	"livesession.monitor-tick-interval": time.Minute,
	"livesession.max-inactive-duration": time.Minute,
	"livesession.worker-pool-size":      64,
	"storage.sqlite.path":               "./livesession.db",
	"notify.pool-size":                  16,
	"http.shutdown-timeout":             5 * time.Second,
}
