// Package httpapi 将媒体服务器回调与运维命令转换为对引擎的调用。
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lk2023060901/danmu-live-session/internal/livesession"
	"github.com/lk2023060901/danmu-live-session/internal/notify"
	"github.com/lk2023060901/danmu-live-session/pkg/log"
)

// NewRouter 创建路由。
//
// 路由：
//   - GET  /health：存活检查；
//   - GET  /metrics：prometheus 指标，gatherer 为空时不注册；
//   - POST /notify：媒体服务器推流回调；
//   - /sessions/{id}：查询会话以及 attach/open/break/close/touch 命令；
//   - GET  /sessions/{id}/ws：订阅会话变更推送，hub 为空时不注册。
func NewRouter(engine *livesession.Engine, hub *notify.Hub, gatherer prometheus.Gatherer, logger *log.MLogger) *chi.Mux {
	if logger == nil {
		logger = log.With(log.FieldComponent("httpapi"))
	}

	r := chi.NewRouter()
	r.Use(Logger(logger))
	r.Use(RequestID)
	r.Use(Recovery(logger))

	r.Get("/health", health)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	notifyH := NewNotifyHandler(engine)
	r.Post("/notify", notifyH.Notify)

	sessionH := NewSessionHandler(engine)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", sessionH.Get)
		r.Post("/attach", sessionH.Attach)
		r.Post("/open", sessionH.Open)
		r.Post("/break", sessionH.Break)
		r.Post("/close", sessionH.Close)
		r.Post("/touch", sessionH.Touch)
		if hub != nil {
			r.Get("/ws", NewSubscribeHandler(engine, hub).Subscribe)
		}
	})

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
