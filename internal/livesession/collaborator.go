package livesession

import (
	"context"
	"time"
)

// Store 为会话持久化协作方。
//
// 约定：
//   - LoadSession 在记录不存在时返回 merr.ErrLiveSessionNotFound；
//   - 其余错误视为可能的瞬时故障，由调用方决定是否重试。
type Store interface {
	LoadSession(ctx context.Context, id string) (*SessionRecord, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	AppendTransitionLog(ctx context.Context, record TransitionLogRecord) error
	RecordStart(ctx context.Context, id string, at time.Time) error
}

// Change 描述一次需要通知客户端的会话字段变更。
type Change struct {
	SessionID string
	Field     Field
	Status    Status
	At        time.Time
}

// Notifier 为通知协作方，向订阅了该会话的客户端广播字段变更。
// 调用方不等待投递结果。
type Notifier interface {
	Notify(ctx context.Context, change Change)
}

// NotifierFunc 允许普通函数作为 Notifier 使用。
type NotifierFunc func(ctx context.Context, change Change)

func (f NotifierFunc) Notify(ctx context.Context, change Change) {
	f(ctx, change)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Change) {}
