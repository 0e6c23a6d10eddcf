package livesession

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-live-session/pkg/log"
	"github.com/lk2023060901/danmu-live-session/pkg/metrics"
	"github.com/lk2023060901/danmu-live-session/pkg/util/merr"
)

// TransitionResult 为一次已提交的迁移，交给迁移后处理链。
type TransitionResult struct {
	SessionID string
	From      Status
	To        Status
	At        time.Time
}

// transitionHandler 为迁移后处理链中的一步，执行时调用方持有会话锁。
// required 为 true 的步骤失败会返回给迁移调用方，其余只记录日志。
type transitionHandler struct {
	name     string
	required bool
	handle   func(ctx context.Context, s *Session, result TransitionResult) error
}

type pipeline struct {
	handlers []transitionHandler
}

// newPipeline 按固定顺序组装处理链。
// 重新调度排在回读之后，下一次 open/break 按最新的 BreakConfig 计算。
func newPipeline(e *Engine) *pipeline {
	return &pipeline{
		handlers: []transitionHandler{
			{name: "transition-log", required: true, handle: e.appendTransitionLog},
			{name: "start", handle: e.startOnOpen},
			{name: "resync", handle: e.resync},
			{name: "reschedule", handle: e.reschedule},
			{name: "notify", handle: e.notifyStatus},
			{name: "metrics", handle: observeTransition},
		},
	}
}

func (p *pipeline) run(ctx context.Context, s *Session, result TransitionResult) error {
	var errs []error
	for _, h := range p.handlers {
		err := h.handle(ctx, s, result)
		if err == nil {
			continue
		}
		s.Logger().Warn("transition handler failed",
			zap.String("handler", h.name),
			zap.Stringer("from", result.From),
			zap.Stringer("to", result.To),
			zap.Error(err))
		if h.required {
			errs = append(errs, err)
		}
	}
	return merr.Combine(errs...)
}

func (e *Engine) appendTransitionLog(ctx context.Context, s *Session, result TransitionResult) error {
	return e.store.AppendTransitionLog(ctx, TransitionLogRecord{
		SessionID:      result.SessionID,
		From:           result.From,
		To:             result.To,
		TransitionedAt: result.At,
	})
}

func (e *Engine) startOnOpen(ctx context.Context, s *Session, result TransitionResult) error {
	if result.To != StatusOpened {
		return nil
	}
	return e.startLocked(ctx, s, result.At)
}

// startLocked 在会话首次开播时持久化开播时间并通知客户端，已开播过则忽略。
func (e *Engine) startLocked(ctx context.Context, s *Session, at time.Time) error {
	if s.startedAt != nil {
		return nil
	}
	if err := e.store.RecordStart(ctx, s.id, at); err != nil {
		return err
	}
	s.startedAt = &at
	e.notifier.Notify(ctx, Change{SessionID: s.id, Field: FieldStartedAt, Status: s.status, At: at})
	return nil
}

// resync 回读持久化记录，刷新可能在外部被修改的 BreakConfig 与开播时间。
// 关闭后的会话不再需要回读。
func (e *Engine) resync(ctx context.Context, s *Session, result TransitionResult) error {
	if result.To == StatusClosed {
		return nil
	}
	rec, err := e.store.LoadSession(ctx, s.id)
	if err != nil {
		return err
	}
	s.breakConfig = cloneBreakConfig(rec.BreakConfig)
	if rec.StartedAt != nil {
		s.startedAt = rec.StartedAt
	}
	return nil
}

func (e *Engine) reschedule(ctx context.Context, s *Session, result TransitionResult) error {
	e.rescheduleLocked(s, result.At)
	return nil
}

func (e *Engine) notifyStatus(ctx context.Context, s *Session, result TransitionResult) error {
	e.notifier.Notify(ctx, Change{SessionID: s.id, Field: FieldStatus, Status: result.To, At: result.At})
	return nil
}

func observeTransition(ctx context.Context, s *Session, result TransitionResult) error {
	metrics.TransitionsTotal.WithLabelValues(result.From.String(), result.To.String()).Inc()
	log.Ctx(ctx).Info("live session transitioned",
		log.FieldLiveSession(result.SessionID),
		zap.Stringer("from", result.From),
		zap.Stringer("to", result.To))
	return nil
}
