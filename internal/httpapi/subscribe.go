package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-live-session/internal/livesession"
	"github.com/lk2023060901/danmu-live-session/internal/notify"
	"github.com/lk2023060901/danmu-live-session/pkg/log"
	"github.com/lk2023060901/danmu-live-session/pkg/util/merr"
)

type SubscribeHandler struct {
	engine   *livesession.Engine
	hub      *notify.Hub
	upgrader websocket.Upgrader
}

func NewSubscribeHandler(engine *livesession.Engine, hub *notify.Hub) *SubscribeHandler {
	return &SubscribeHandler{
		engine: engine,
		hub:    hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Subscribe 将连接升级为 websocket 并订阅会话推送，直到对端断开。
// 只允许订阅已注册的会话。
func (h *SubscribeHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.engine.Session(id); !ok {
		writeError(w, http.StatusNotFound, merr.WrapErrLiveSessionNotRegistered(id).Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已写回错误响应。
		return
	}

	sub := notify.NewWSSubscriber(r.Context(), h.hub.NextID(), conn)
	defer sub.Close()
	if err := h.hub.Subscribe(id, sub); err != nil {
		return
	}
	defer func() { _ = h.hub.Unsubscribe(id, sub.ID()) }()

	logger := log.Ctx(r.Context())
	logger.Debug("subscriber connected", log.FieldLiveSession(id), zap.Uint64("subscriber", sub.ID()))
	err = sub.ReadLoop()
	logger.Debug("subscriber disconnected", log.FieldLiveSession(id), zap.Uint64("subscriber", sub.ID()), zap.Error(err))
}
