package livesession

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-live-session/pkg/log"
	"github.com/lk2023060901/danmu-live-session/pkg/metrics"
	"github.com/lk2023060901/danmu-live-session/pkg/util/funcutil"
	"github.com/lk2023060901/danmu-live-session/pkg/util/merr"
)

// 迁移动作名，同时作为错误描述与指标标签。
const (
	opReady = "ready"
	opOpen  = "opened"
	opBreak = "breaked"
	opClose = "closed"
)

// Session 为一个直播会话在内存中的状态。
//
// 所有迁移在 mu 内完成：校验当前状态、持久化、提交内存状态、
// 维护调度队列、执行迁移后处理。因此同一会话上的两次迁移不会交错执行。
// 锁顺序固定为 Session -> Registry/Queue，后两者从不回调会话。
type Session struct {
	log.Binder

	id          string
	title       string
	organizerID int64
	engine      *Engine

	mu          sync.Mutex
	status      Status
	breakConfig *BreakConfig
	startedAt   *time.Time
	nextOpenAt  *time.Time
	nextBreakAt *time.Time

	// lastActivity 为零值表示从未 touch；监控器无锁读取。
	lastActivity atomic.Time
	registeredAt time.Time
}

func newSession(e *Engine, rec *SessionRecord, now time.Time) *Session {
	s := &Session{
		id:           rec.ID,
		title:        rec.Title,
		organizerID:  rec.OrganizerID,
		engine:       e,
		status:       rec.Status,
		breakConfig:  cloneBreakConfig(rec.BreakConfig),
		startedAt:    rec.StartedAt,
		registeredAt: now,
	}
	s.SetLogger(e.Logger().With(log.FieldLiveSession(rec.ID)))
	return s
}

func cloneBreakConfig(cfg *BreakConfig) *BreakConfig {
	if cfg == nil {
		return nil
	}
	c := *cfg
	return &c
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Title() string {
	return s.title
}

func (s *Session) OrganizerID() int64 {
	return s.organizerID
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) BreakConfig() *BreakConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBreakConfig(s.breakConfig)
}

func (s *Session) StartedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt == nil {
		return time.Time{}, false
	}
	return *s.startedAt, true
}

// NextOpenAt 返回 open 队列中的调度游标。
func (s *Session) NextOpenAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextOpenAt == nil {
		return time.Time{}, false
	}
	return *s.nextOpenAt, true
}

// NextBreakAt 返回 break 队列中的调度游标。
func (s *Session) NextBreakAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextBreakAt == nil {
		return time.Time{}, false
	}
	return *s.nextBreakAt, true
}

func (s *Session) LastActivity() (time.Time, bool) {
	t := s.lastActivity.Load()
	return t, !t.IsZero()
}

func (s *Session) RegisteredAt() time.Time {
	return s.registeredAt
}

// lastSeen 返回最近一次 touch 与注册时间中较晚的一个。
func (s *Session) lastSeen() time.Time {
	return funcutil.MaxTime(s.lastActivity.Load(), s.registeredAt)
}

func (s *Session) IsReady() bool { return s.Status() == StatusReady }
func (s *Session) IsOpened() bool { return s.Status() == StatusOpened }
func (s *Session) IsBreaked() bool { return s.Status() == StatusBreaked }
func (s *Session) IsClosed() bool { return s.Status() == StatusClosed }

// IsActive 表示会话已开播（opened 或 breaked）。
func (s *Session) IsActive() bool {
	st := s.Status()
	return st == StatusOpened || st == StatusBreaked
}

// IsReadyable 始终为 false，ready 迁移保留给后续的初始化流程。
func (s *Session) IsReadyable() bool { return false }

func (s *Session) IsOpenable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openable()
}

func (s *Session) IsBreakable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.breakable()
}

func (s *Session) IsCloseable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeable()
}

func (s *Session) openable() bool {
	return s.status == StatusReady || s.status == StatusBreaked
}

func (s *Session) breakable() bool {
	return s.status == StatusOpened
}

func (s *Session) closeable() bool {
	return s.status.Live()
}

// Ready 当前不存在合法的前置状态，总是被拒绝。
func (s *Session) Ready(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reject(ctx, opReady, merr.WrapErrLiveSessionInvalidTransition(s.id, opReady, s.status))
}

// Open 将 ready/breaked 会话迁移到 opened。
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(ctx)
}

// Break 将 opened 会话迁移到 breaked，要求会话配置了 BreakConfig。
func (s *Session) Break(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.breakLocked(ctx)
}

// Close 将会话迁移到终态 closed，并从注册表和两个调度队列中移除。
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked(ctx)
}

// closeIfIdle 在会话锁内重新判断空闲时长，仍超过 maxInactive 时才关闭。
// 返回会话是否被本次调用关闭。
func (s *Session) closeIfIdle(ctx context.Context, maxInactive time.Duration) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idle := s.engine.clock.Since(s.lastSeen())
	if idle <= maxInactive {
		return false, idle, nil
	}
	if err := s.closeLocked(ctx); err != nil {
		return false, idle, err
	}
	return true, idle, nil
}

// Touch 记录一次活跃信号。ready 会话会先尝试 open。
// open 失败时仍会刷新活跃时间，并将 open 的错误返回给调用方。
func (s *Session) Touch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusClosed {
		return merr.WrapErrLiveSessionClosed(s.id, "touch")
	}
	var err error
	if s.status == StatusReady {
		err = s.openLocked(ctx)
	}
	s.lastActivity.Store(s.engine.clock.Now())
	return err
}

// publish 处理媒体推流开始：只有可 open 的会话才接受推流。
func (s *Session) publish(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.openable() {
		return s.reject(ctx, opOpen, merr.WrapErrLiveSessionInvalidTransition(s.id, opOpen, s.status, "publish rejected"))
	}
	err := s.openLocked(ctx)
	s.lastActivity.Store(s.engine.clock.Now())
	return err
}

func (s *Session) openLocked(ctx context.Context) error {
	if !s.openable() {
		return s.reject(ctx, opOpen, merr.WrapErrLiveSessionInvalidTransition(s.id, opOpen, s.status))
	}
	return s.commitLocked(ctx, opOpen, StatusOpened)
}

func (s *Session) breakLocked(ctx context.Context) error {
	if !s.breakable() {
		return s.reject(ctx, opBreak, merr.WrapErrLiveSessionInvalidTransition(s.id, opBreak, s.status))
	}
	if s.breakConfig == nil {
		return s.reject(ctx, opBreak, merr.Combine(
			merr.WrapErrLiveSessionMissingBreakConfig(s.id),
			merr.WrapErrLiveSessionInvalidTransition(s.id, opBreak, s.status),
		))
	}
	return s.commitLocked(ctx, opBreak, StatusBreaked)
}

func (s *Session) closeLocked(ctx context.Context) error {
	if !s.closeable() {
		return s.reject(ctx, opClose, merr.WrapErrLiveSessionInvalidTransition(s.id, opClose, s.status))
	}
	return s.commitLocked(ctx, opClose, StatusClosed)
}

func (s *Session) reject(ctx context.Context, op string, err error) error {
	metrics.TransitionFailures.WithLabelValues(op).Inc()
	log.Ctx(ctx).Debug("live session transition rejected",
		log.FieldLiveSession(s.id),
		zap.String("op", op),
		zap.Error(err))
	return err
}

// commitLocked 持久化并提交一次已通过校验的迁移。
// 持久化失败时内存状态保持不变。调度队列在处理链回读记录之后维护，
// 处理链中必需步骤的错误会返回给调用方。
func (s *Session) commitLocked(ctx context.Context, op string, to Status) error {
	e := s.engine
	ctx, span := log.NewIntentContext(ctx, "livesession", op)
	defer span.End()

	begin := e.clock.Now()
	from := s.status
	if err := e.store.UpdateStatus(ctx, s.id, to); err != nil {
		span.RecordError(err)
		metrics.TransitionFailures.WithLabelValues(op).Inc()
		s.Logger().Warn("failed to persist live session status",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.Error(err))
		return err
	}

	now := e.clock.Now()
	s.status = to

	err := e.pipeline.run(ctx, s, TransitionResult{
		SessionID: s.id,
		From:      from,
		To:        to,
		At:        now,
	})
	if err != nil {
		span.RecordError(err)
	}
	metrics.TransitionLatency.WithLabelValues(op).Observe(float64(e.clock.Since(begin).Milliseconds()))
	return err
}

// fireScheduled 执行调度器弹出的条目。
// 若会话的调度游标已被改写（例如期间发生过手动迁移），条目视为过期并丢弃。
func (s *Session) fireScheduled(ctx context.Context, kind scheduleKind, due time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cursor := kind.cursor(s)
	if *cursor == nil || !(*cursor).Equal(due) {
		s.Logger().RatedDebug(1, "scheduled transition superseded",
			zap.Stringer("kind", kind),
			zap.Time("due", due))
		return nil
	}
	*cursor = nil

	switch kind {
	case scheduleOpen:
		return s.openLocked(ctx)
	default:
		return s.breakLocked(ctx)
	}
}
