package notify

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-live-session/internal/json"
	"github.com/lk2023060901/danmu-live-session/internal/livesession"
	"github.com/lk2023060901/danmu-live-session/pkg/util/conc"
	"github.com/lk2023060901/danmu-live-session/pkg/util/merr"
)

type recordingSubscriber struct {
	id  uint64
	err error

	mu      sync.Mutex
	updates []Update
}

func (s *recordingSubscriber) ID() uint64 { return s.id }

func (s *recordingSubscriber) Send(op uint32, msg any) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, msg.(Update))
	return nil
}

func (s *recordingSubscriber) received() []Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Update(nil), s.updates...)
}

func TestHubSubscribe(t *testing.T) {
	hub := NewHub(2)
	defer hub.Release()

	sub := &recordingSubscriber{id: 1}
	require.NoError(t, hub.Subscribe("ls-1", sub))
	assert.ErrorIs(t, hub.Subscribe("ls-1", sub), merr.ErrParameterInvalid)
	assert.ErrorIs(t, hub.Subscribe("ls-1", nil), merr.ErrParameterMissing)
	assert.Equal(t, 1, hub.Count("ls-1"))

	require.NoError(t, hub.Unsubscribe("ls-1", 1))
	assert.Equal(t, 0, hub.Count("ls-1"))
	assert.ErrorIs(t, hub.Unsubscribe("ls-1", 1), merr.ErrLiveSessionNotFound)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(4)
	defer hub.Release()

	a := &recordingSubscriber{id: 1}
	b := &recordingSubscriber{id: 2}
	broken := &recordingSubscriber{id: 3, err: errors.New("connection reset")}
	other := &recordingSubscriber{id: 4}
	require.NoError(t, hub.Subscribe("ls-1", a))
	require.NoError(t, hub.Subscribe("ls-1", b))
	require.NoError(t, hub.Subscribe("ls-1", broken))
	require.NoError(t, hub.Subscribe("ls-2", other))

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	futures := hub.Broadcast(context.Background(), livesession.Change{
		SessionID: "ls-1",
		Field:     livesession.FieldStatus,
		Status:    livesession.StatusOpened,
		At:        at,
	})
	require.Len(t, futures, 3)
	assert.Len(t, conc.BlockOnAll(futures...), 1)

	for _, sub := range []*recordingSubscriber{a, b} {
		updates := sub.received()
		require.Len(t, updates, 1)
		assert.Equal(t, "status", updates[0].Field)
		assert.Equal(t, "OPENED", updates[0].Status)
		assert.NotEmpty(t, updates[0].EventID)
	}
	assert.Equal(t, a.received()[0].EventID, b.received()[0].EventID)
	assert.Empty(t, other.received())
}

func TestWriterSubscriber(t *testing.T) {
	var buf bytes.Buffer
	sub := NewWriterSubscriber(9, &buf)
	require.NoError(t, sub.Send(OpLiveSessionUpdate, Update{SessionID: "ls-1", Field: "started_at"}))

	line := strings.TrimSpace(buf.String())
	var frame struct {
		Op      uint32 `json:"op"`
		Payload Update `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(line), &frame))
	assert.Equal(t, OpLiveSessionUpdate, frame.Op)
	assert.Equal(t, "started_at", frame.Payload.Field)
}
