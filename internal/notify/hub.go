// Package notify 将会话字段变更广播给订阅了该会话的客户端连接。
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-live-session/internal/livesession"
	"github.com/lk2023060901/danmu-live-session/pkg/log"
	"github.com/lk2023060901/danmu-live-session/pkg/metrics"
	"github.com/lk2023060901/danmu-live-session/pkg/util/conc"
	"github.com/lk2023060901/danmu-live-session/pkg/util/merr"
)

// OpLiveSessionUpdate 为会话变更推送的协议号。
const OpLiveSessionUpdate uint32 = 0x0101

// Subscriber 为一个接收推送的客户端连接。
//
// 约定：
//   - ID 在同一会话的订阅者中唯一；
//   - Send 可能被多个协程并发调用，实现需自行保证并发安全。
type Subscriber interface {
	ID() uint64
	Send(op uint32, msg any) error
}

// Update 为推送给客户端的变更消息。
type Update struct {
	EventID   string    `json:"event_id"`
	SessionID string    `json:"session_id"`
	Field     string    `json:"field"`
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
}

// Hub 按会话维护订阅者，并通过协程池异步投递变更。
//
// 特性：
//   - 使用读写锁保证并发安全；
//   - Subscribe 遇到重复 ID 时返回错误，避免覆盖旧连接；
//   - 投递前复制订阅者快照，不在持锁情况下调用 Send；
//   - 投递失败只记录日志，不影响其它订阅者。
type Hub struct {
	log.Binder

	mu        sync.RWMutex
	audiences map[string]map[uint64]Subscriber
	nextID    atomic.Uint64

	pool *conc.Pool[struct{}]
}

var _ livesession.Notifier = (*Hub)(nil)

// NewHub 创建 Hub，poolSize 为并发投递的协程数。
func NewHub(poolSize int) *Hub {
	pool := conc.NewPool[struct{}](poolSize,
		conc.WithName("notify"), conc.WithConcealPanic(true), conc.WithExpiryDuration(time.Minute))
	h := &Hub{
		audiences: make(map[string]map[uint64]Subscriber),
		pool:      pool,
	}
	h.BindComponent("notify-hub")
	return h
}

// NextID 分配一个进程内自增的订阅者 ID，从 1 开始。
func (h *Hub) NextID() uint64 {
	return h.nextID.Inc()
}

// Subscribe 将订阅者加入会话的受众。
func (h *Hub) Subscribe(sessionID string, sub Subscriber) error {
	if sub == nil {
		return merr.WrapErrParameterMissing("subscriber")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	audience, ok := h.audiences[sessionID]
	if !ok {
		audience = make(map[uint64]Subscriber)
		h.audiences[sessionID] = audience
	}
	if _, exists := audience[sub.ID()]; exists {
		return merr.WrapErrParameterInvalidMsg("subscriber %d already subscribed to %s", sub.ID(), sessionID)
	}
	audience[sub.ID()] = sub
	return nil
}

// Unsubscribe 将订阅者从会话的受众中移除，不存在时返回错误。
func (h *Hub) Unsubscribe(sessionID string, subscriberID uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	audience, ok := h.audiences[sessionID]
	if !ok {
		return merr.WrapErrLiveSessionNotFound(sessionID, "no audience")
	}
	if _, exists := audience[subscriberID]; !exists {
		return merr.WrapErrParameterInvalidMsg("subscriber %d not subscribed to %s", subscriberID, sessionID)
	}
	delete(audience, subscriberID)
	if len(audience) == 0 {
		delete(h.audiences, sessionID)
	}
	return nil
}

// Count 返回会话当前的订阅者数量。
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.audiences[sessionID])
}

func (h *Hub) snapshot(sessionID string) []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()

	audience := h.audiences[sessionID]
	subs := make([]Subscriber, 0, len(audience))
	for _, sub := range audience {
		subs = append(subs, sub)
	}
	return subs
}

// Notify 实现 livesession.Notifier，不等待投递完成。
func (h *Hub) Notify(ctx context.Context, change livesession.Change) {
	h.Broadcast(ctx, change)
}

// Broadcast 向会话的全部订阅者投递一次变更，返回每个投递任务的 Future。
func (h *Hub) Broadcast(ctx context.Context, change livesession.Change) []*conc.Future[struct{}] {
	update := Update{
		EventID:   uuid.NewString(),
		SessionID: change.SessionID,
		Field:     string(change.Field),
		Status:    change.Status.String(),
		At:        change.At,
	}
	metrics.NotificationsSent.WithLabelValues(update.Field).Inc()

	subs := h.snapshot(change.SessionID)
	futures := make([]*conc.Future[struct{}], 0, len(subs))
	for _, sub := range subs {
		sub := sub
		futures = append(futures, h.pool.Submit(func() (struct{}, error) {
			err := sub.Send(OpLiveSessionUpdate, update)
			if err != nil {
				log.Ctx(ctx).Warn("failed to deliver live session update",
					log.FieldLiveSession(update.SessionID),
					zap.Uint64("subscriber", sub.ID()),
					zap.String("eventID", update.EventID),
					zap.Error(err))
			}
			return struct{}{}, err
		}))
	}
	h.Logger().Debug("live session update broadcast",
		log.FieldLiveSession(update.SessionID),
		zap.String("field", update.Field),
		zap.Int("subscribers", len(subs)))
	return futures
}

// Release 释放投递协程池。
func (h *Hub) Release() {
	h.pool.Release()
}
