package livesession

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-live-session/pkg/log"
	"github.com/lk2023060901/danmu-live-session/pkg/metrics"
	"github.com/lk2023060901/danmu-live-session/pkg/util/conc"
	"github.com/lk2023060901/danmu-live-session/pkg/util/merr"
	"github.com/lk2023060901/danmu-live-session/pkg/util/typeutil"
)

// Monitor 周期性扫描注册表，关闭超过 maxInactive 没有活跃信号的会话。
// 从未 touch 过的会话以注册时间计算。
type Monitor struct {
	*periodic
	log.Binder

	registry    *Registry
	pool        *conc.Pool[struct{}]
	clock       clockwork.Clock
	maxInactive time.Duration

	// closing 记录已派发但尚未完成的关闭，避免相邻两次扫描重复派发。
	closing *typeutil.ConcurrentSet[string]
}

func newMonitor(interval, maxInactive time.Duration, registry *Registry, pool *conc.Pool[struct{}],
	clock clockwork.Clock, logger *log.MLogger,
) *Monitor {
	m := &Monitor{
		registry:    registry,
		pool:        pool,
		clock:       clock,
		maxInactive: maxInactive,
		closing:     typeutil.NewConcurrentSet[string](),
	}
	m.periodic = newPeriodic("inactivity-monitor", interval, clock, func(ctx context.Context) {
		m.Tick(ctx)
	})
	m.SetLogger(logger)
	m.BindComponent("inactivity-monitor")
	return m
}

// Tick 扫描一次注册表，返回本轮派发的关闭任务。
func (m *Monitor) Tick(ctx context.Context) []*conc.Future[struct{}] {
	now := m.clock.Now()
	var futures []*conc.Future[struct{}]
	m.registry.Range(func(sess *Session) bool {
		if now.Sub(sess.lastSeen()) <= m.maxInactive {
			return true
		}
		if !m.closing.Insert(sess.ID()) {
			return true
		}
		futures = append(futures, m.pool.Submit(func() (struct{}, error) {
			defer m.closing.Remove(sess.ID())
			// 扫描与关闭之间可能有新的活跃信号，关闭前在会话锁内重新判断。
			closed, idle, err := sess.closeIfIdle(ctx, m.maxInactive)
			switch {
			case closed:
				metrics.InactiveClosed.Inc()
				m.Logger().Info("closed inactive live session",
					log.FieldLiveSession(sess.ID()),
					zap.Duration("idle", idle))
			case err == nil:
				m.Logger().Debug("live session active again, skip close",
					log.FieldLiveSession(sess.ID()),
					zap.Duration("idle", idle))
			case errors.Is(err, merr.ErrLiveSessionInvalidTransition):
				// 已经通过其它路径关闭。
			case merr.IsCanceledOrTimeout(err):
				m.Logger().Debug("inactive close interrupted", log.FieldLiveSession(sess.ID()))
			default:
				m.Logger().Warn("failed to close inactive live session",
					log.FieldLiveSession(sess.ID()),
					zap.Error(err))
			}
			return struct{}{}, err
		}))
		return true
	})
	m.Logger().Debug("inactivity scan finished",
		zap.Int("scanned", m.registry.Len()),
		zap.Int("closing", len(futures)))
	return futures
}
