package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-live-session/internal/json"
	"github.com/lk2023060901/danmu-live-session/internal/livesession"
	"github.com/lk2023060901/danmu-live-session/pkg/log"
	"github.com/lk2023060901/danmu-live-session/pkg/util/merr"
)

// NotifyRequest 为媒体服务器回调的请求体，name 为推流名即会话 ID。
type NotifyRequest struct {
	ID       string `json:"id"`
	App      string `json:"app"`
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Action   string `json:"action"`
}

type NotifyHandler struct {
	engine *livesession.Engine
}

func NewNotifyHandler(engine *livesession.Engine) *NotifyHandler {
	return &NotifyHandler{engine: engine}
}

// Notify 处理推流回调。返回非 200 时媒体服务器会断开该推流。
func (h *NotifyHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	action, err := livesession.ParseMediaAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := log.WithFields(r.Context(), log.FieldLiveSession(req.Name))
	if err := h.engine.HandleMediaEvent(ctx, req.Name, action); err != nil {
		log.Ctx(ctx).Info("media event rejected", zap.String("action", string(action)), zap.Error(err))
		status := statusOf(err)
		if status == http.StatusConflict {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SessionView 为会话的只读快照。
type SessionView struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	OrganizerID  int64      `json:"organizer_id"`
	Status       string     `json:"status"`
	Interval     string     `json:"break_interval,omitempty"`
	Duration     string     `json:"break_duration,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	NextOpenAt   *time.Time `json:"next_open_at,omitempty"`
	NextBreakAt  *time.Time `json:"next_break_at,omitempty"`
}

func newSessionView(sess *livesession.Session) SessionView {
	view := SessionView{
		ID:          sess.ID(),
		Title:       sess.Title(),
		OrganizerID: sess.OrganizerID(),
		Status:      sess.Status().String(),
	}
	if cfg := sess.BreakConfig(); cfg != nil {
		view.Interval = cfg.Interval.String()
		view.Duration = cfg.Duration.String()
	}
	view.StartedAt = timePtr(sess.StartedAt())
	view.LastActivity = timePtr(sess.LastActivity())
	view.NextOpenAt = timePtr(sess.NextOpenAt())
	view.NextBreakAt = timePtr(sess.NextBreakAt())
	return view
}

func timePtr(t time.Time, ok bool) *time.Time {
	if !ok {
		return nil
	}
	return &t
}

type SessionHandler struct {
	engine *livesession.Engine
}

func NewSessionHandler(engine *livesession.Engine) *SessionHandler {
	return &SessionHandler{engine: engine}
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := h.engine.Session(id)
	if !ok {
		writeError(w, http.StatusNotFound, merr.WrapErrLiveSessionNotRegistered(id).Error())
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(sess))
}

func (h *SessionHandler) Attach(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := h.engine.Attach(r.Context(), id)
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(sess))
}

func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.engine.Open)
}

func (h *SessionHandler) Break(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.engine.Break)
}

func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.engine.Close)
}

func (h *SessionHandler) Touch(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.engine.Touch)
}

// command 执行一次迁移命令，成功时返回迁移后的快照；会话已关闭时快照为空。
func (h *SessionHandler) command(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	id := chi.URLParam(r, "id")
	ctx := log.WithFields(r.Context(), log.FieldLiveSession(id))
	if err := fn(ctx, id); err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	sess, ok := h.engine.Session(id)
	if !ok {
		writeJSON(w, http.StatusOK, SessionView{ID: id, Status: livesession.StatusClosed.String()})
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(sess))
}

// statusOf 将错误码映射为 HTTP 状态码。
func statusOf(err error) int {
	switch {
	case errors.Is(err, merr.ErrLiveSessionNotRegistered),
		errors.Is(err, merr.ErrLiveSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, merr.ErrLiveSessionInvalidTransition),
		errors.Is(err, merr.ErrLiveSessionMissingBreakConfig),
		errors.Is(err, merr.ErrLiveSessionClosed):
		return http.StatusConflict
	case errors.Is(err, merr.ErrParameterInvalid),
		errors.Is(err, merr.ErrParameterMissing):
		return http.StatusBadRequest
	case errors.Is(err, merr.ErrServiceTooManyRequests),
		errors.Is(err, merr.ErrServiceNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
