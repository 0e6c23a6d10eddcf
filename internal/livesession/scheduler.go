package livesession

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-live-session/pkg/log"
	"github.com/lk2023060901/danmu-live-session/pkg/util/conc"
	"github.com/lk2023060901/danmu-live-session/pkg/util/merr"
)

type scheduleKind int

const (
	scheduleOpen scheduleKind = iota
	scheduleBreak
)

func (k scheduleKind) String() string {
	if k == scheduleOpen {
		return "open"
	}
	return "break"
}

// delay 返回从现在到迁移触发的间隔：open 等待一个 break 时长，break 等待一个 open 时长。
func (k scheduleKind) delay(cfg *BreakConfig) time.Duration {
	if k == scheduleOpen {
		return cfg.Duration
	}
	return cfg.Interval
}

// source 返回该调度所需的会话状态：open 只作用于 breaked 会话，break 只作用于 opened 会话。
func (k scheduleKind) source() Status {
	if k == scheduleOpen {
		return StatusBreaked
	}
	return StatusOpened
}

func (k scheduleKind) op() string {
	if k == scheduleOpen {
		return opOpen
	}
	return opBreak
}

func (k scheduleKind) cursor(s *Session) **time.Time {
	if k == scheduleOpen {
		return &s.nextOpenAt
	}
	return &s.nextBreakAt
}

// Scheduler 周期性地取出队列中已到期的条目并触发对应迁移。
// open 调度器驱动 breaked -> opened，break 调度器驱动 opened -> breaked。
type Scheduler struct {
	*periodic
	log.Binder

	kind     scheduleKind
	queue    *Queue
	registry *Registry
	pool     *conc.Pool[struct{}]
	clock    clockwork.Clock
}

func newScheduler(kind scheduleKind, interval time.Duration, queue *Queue, registry *Registry,
	pool *conc.Pool[struct{}], clock clockwork.Clock, logger *log.MLogger,
) *Scheduler {
	s := &Scheduler{
		kind:     kind,
		queue:    queue,
		registry: registry,
		pool:     pool,
		clock:    clock,
	}
	s.periodic = newPeriodic(kind.String()+"-scheduler", interval, clock, func(ctx context.Context) {
		s.Tick(ctx)
	})
	s.SetLogger(logger)
	s.BindComponent(kind.String()+"-scheduler").WithRateGroup("livesession.scheduler", 1, 60)
	return s
}

func (s *Scheduler) Queue() *Queue {
	return s.queue
}

// Add 以当前时间为起点为已注册会话安排下一次迁移。
// 会话状态必须与调度类型匹配，因此同一会话不会同时出现在两个队列中。
func (s *Scheduler) Add(sessionID string) error {
	sess, ok := s.registry.Get(sessionID)
	if !ok {
		return merr.WrapErrLiveSessionNotRegistered(sessionID)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.status != s.kind.source() {
		return merr.WrapErrLiveSessionInvalidTransition(sess.id, s.kind.op(), sess.status, "schedule rejected")
	}
	return s.scheduleLocked(sess, s.clock.Now())
}

// scheduleLocked 要求调用方持有会话锁。
func (s *Scheduler) scheduleLocked(sess *Session, now time.Time) error {
	if sess.breakConfig == nil {
		return merr.WrapErrLiveSessionMissingBreakConfig(sess.id)
	}
	due := now.Add(s.kind.delay(sess.breakConfig))
	*s.kind.cursor(sess) = &due
	s.queue.Push(sess.id, due)
	return nil
}

// unscheduleLocked 要求调用方持有会话锁。
func (s *Scheduler) unscheduleLocked(sess *Session) {
	s.queue.Remove(sess.id)
	*s.kind.cursor(sess) = nil
}

// Tick 取出所有已到期条目并异步触发迁移，返回每个迁移的 Future。
// 单个迁移失败只记录日志，不影响本轮其余条目。
func (s *Scheduler) Tick(ctx context.Context) []*conc.Future[struct{}] {
	now := s.clock.Now()
	var futures []*conc.Future[struct{}]
	for {
		entry, ok := s.queue.PopIfDue(now)
		if !ok {
			break
		}
		sess, ok := s.registry.Get(entry.SessionID)
		if !ok {
			s.Logger().RatedDebug(1, "discard stale schedule entry",
				log.FieldLiveSession(entry.SessionID))
			continue
		}
		futures = append(futures, s.pool.Submit(func() (struct{}, error) {
			err := sess.fireScheduled(ctx, s.kind, entry.DueTime)
			if err != nil {
				s.Logger().Warn("scheduled transition failed",
					log.FieldLiveSession(entry.SessionID),
					zap.Error(err))
			}
			return struct{}{}, err
		}))
	}
	if len(futures) > 0 {
		s.Logger().Debug("scheduler drained due entries",
			zap.Int("fired", len(futures)),
			zap.Int("pending", s.queue.Len()))
	}
	return futures
}
