package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/danmu-live-session/internal/json"
	"github.com/lk2023060901/danmu-live-session/internal/livesession"
	"github.com/lk2023060901/danmu-live-session/internal/notify"
	"github.com/lk2023060901/danmu-live-session/internal/storage/sqlite"
	"github.com/lk2023060901/danmu-live-session/pkg/metrics"
)

type RouterSuite struct {
	suite.Suite

	ctx    context.Context
	store  *sqlite.Store
	hub    *notify.Hub
	engine *livesession.Engine
	server *httptest.Server
}

func (s *RouterSuite) SetupTest() {
	s.ctx = context.Background()
	store, err := sqlite.Open(s.ctx, sqlite.Config{Path: filepath.Join(s.T().TempDir(), "api.db")})
	s.Require().NoError(err)
	s.store = store

	s.hub = notify.NewHub(4)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.engine, err = livesession.New(livesession.Config{
		OpenTickInterval:    time.Second,
		BreakTickInterval:   time.Second,
		MonitorTickInterval: time.Minute,
		MaxInactiveDuration: time.Hour,
		WorkerPoolSize:      4,
	}, store, s.hub, livesession.WithClock(clock))
	s.Require().NoError(err)

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	s.server = httptest.NewServer(NewRouter(s.engine, s.hub, reg, nil))
}

func (s *RouterSuite) TearDownTest() {
	s.server.Close()
	s.engine.Release()
	s.hub.Release()
	s.NoError(s.store.Close())
}

func (s *RouterSuite) seed(id string, status livesession.Status, cfg *livesession.BreakConfig) {
	s.Require().NoError(s.store.CreateSession(s.ctx, livesession.SessionRecord{ID: id, Status: status, BreakConfig: cfg}))
}

func (s *RouterSuite) post(path, body string) *http.Response {
	resp, err := http.Post(s.server.URL+path, "application/json", strings.NewReader(body))
	s.Require().NoError(err)
	return resp
}

func (s *RouterSuite) decodeView(resp *http.Response) SessionView {
	defer resp.Body.Close()
	var view SessionView
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&view))
	return view
}

func (s *RouterSuite) TestHealth() {
	resp, err := http.Get(s.server.URL + "/health")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
	s.NotEmpty(resp.Header.Get("X-Request-ID"))
}

func (s *RouterSuite) TestNotifyPostPublishOpens() {
	s.seed("ls-1", livesession.StatusReady, &livesession.BreakConfig{Interval: 50 * time.Minute, Duration: 10 * time.Minute})
	_, err := s.engine.Attach(s.ctx, "ls-1")
	s.Require().NoError(err)

	resp := s.post("/notify", `{"app":"live","name":"ls-1","action":"postPublish"}`)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	sess, ok := s.engine.Session("ls-1")
	s.Require().True(ok)
	s.Equal(livesession.StatusOpened, sess.Status())
	s.True(s.engine.BreakQueue().Contains("ls-1"))

	// 已开播的会话再次推流返回 400，媒体服务器据此断开。
	resp = s.post("/notify", `{"app":"live","name":"ls-1","action":"postPublish"}`)
	resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = s.post("/notify", `{"app":"live","name":"ls-1","action":"donePublish"}`)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
	s.False(s.engine.Registry().Has("ls-1"))
}

func (s *RouterSuite) TestNotifyRejectsBadInput() {
	resp := s.post("/notify", `{"name":"ls-x","action":"explode"}`)
	resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = s.post("/notify", `not json`)
	resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = s.post("/notify", `{"name":"ls-x","action":"postPublish"}`)
	resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *RouterSuite) TestSessionCommands() {
	s.seed("ls-2", livesession.StatusReady, nil)

	view := s.decodeView(s.post("/sessions/ls-2/attach", ""))
	s.Equal("READY", view.Status)

	resp := s.post("/sessions/ls-2/break", "")
	resp.Body.Close()
	s.Equal(http.StatusConflict, resp.StatusCode)

	view = s.decodeView(s.post("/sessions/ls-2/touch", ""))
	s.Equal("OPENED", view.Status)
	s.NotNil(view.StartedAt)
	s.NotNil(view.LastActivity)

	resp, err := http.Get(s.server.URL + "/sessions/ls-2")
	s.Require().NoError(err)
	s.Equal("OPENED", s.decodeView(resp).Status)

	view = s.decodeView(s.post("/sessions/ls-2/close", ""))
	s.Equal("CLOSED", view.Status)

	resp = s.post("/sessions/ls-2/open", "")
	resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp = s.post("/sessions/ls-2/attach", "")
	resp.Body.Close()
	s.Equal(http.StatusConflict, resp.StatusCode)

	resp = s.post("/sessions/missing/attach", "")
	resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *RouterSuite) TestMetricsEndpoint() {
	resp, err := http.Get(s.server.URL + "/metrics")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *RouterSuite) TestWebsocketReceivesUpdates() {
	s.seed("ls-ws", livesession.StatusReady, nil)
	_, err := s.engine.Attach(s.ctx, "ls-ws")
	s.Require().NoError(err)

	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/sessions/ls-ws/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	defer conn.Close()
	s.Eventually(func() bool { return s.hub.Count("ls-ws") == 1 }, 2*time.Second, 10*time.Millisecond)

	s.Require().NoError(s.engine.Open(s.ctx, "ls-ws"))

	fields := make(map[string]string)
	for i := 0; i < 2; i++ {
		s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
		_, data, err := conn.ReadMessage()
		s.Require().NoError(err)
		var frame struct {
			Op      uint32        `json:"op"`
			Payload notify.Update `json:"payload"`
		}
		s.Require().NoError(json.Unmarshal(data, &frame))
		s.Equal(notify.OpLiveSessionUpdate, frame.Op)
		s.Equal("ls-ws", frame.Payload.SessionID)
		fields[frame.Payload.Field] = frame.Payload.Status
	}
	s.Equal(map[string]string{"status": "OPENED", "started_at": "OPENED"}, fields)

	s.Require().NoError(conn.Close())
	s.Eventually(func() bool { return s.hub.Count("ls-ws") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func (s *RouterSuite) TestWebsocketRequiresRegisteredSession() {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/sessions/nobody/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	s.Error(err)
	s.Require().NotNil(resp)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestRouter(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}
