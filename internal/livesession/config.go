package livesession

import (
	"time"

	"github.com/lk2023060901/danmu-live-session/pkg/util/merr"
)

// Config 为引擎的调度参数，全部为必填项，默认值由上层应用提供。
type Config struct {
	// OpenTickInterval 为 open 调度器的扫描间隔。
	OpenTickInterval time.Duration `mapstructure:"open-tick-interval" env:"OPEN_TICK_INTERVAL"`
	// BreakTickInterval 为 break 调度器的扫描间隔。
	BreakTickInterval time.Duration `mapstructure:"break-tick-interval" env:"BREAK_TICK_INTERVAL"`
	// MonitorTickInterval 为不活跃监控的扫描间隔。
	MonitorTickInterval time.Duration `mapstructure:"monitor-tick-interval" env:"MONITOR_TICK_INTERVAL"`
	// MaxInactiveDuration 为会话允许的最长不活跃时间。
	MaxInactiveDuration time.Duration `mapstructure:"max-inactive-duration" env:"MAX_INACTIVE_DURATION"`
	// WorkerPoolSize 为异步执行迁移与通知的协程池容量。
	WorkerPoolSize int `mapstructure:"worker-pool-size" env:"WORKER_POOL_SIZE"`
}

func (c Config) Validate() error {
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"open-tick-interval", c.OpenTickInterval},
		{"break-tick-interval", c.BreakTickInterval},
		{"monitor-tick-interval", c.MonitorTickInterval},
		{"max-inactive-duration", c.MaxInactiveDuration},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return merr.WrapErrParameterInvalidMsg("%s must be positive, got %s", d.name, d.value)
		}
	}
	if c.WorkerPoolSize <= 0 {
		return merr.WrapErrParameterInvalidMsg("worker-pool-size must be positive, got %d", c.WorkerPoolSize)
	}
	return nil
}
