package livesession

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/lk2023060901/danmu-live-session/pkg/util/merr"
)

type fakeStore struct {
	mu      sync.Mutex
	records map[string]SessionRecord
	logs    []TransitionLogRecord
	starts  map[string]time.Time

	loadCalls  atomic.Int32
	loadErrs   []error
	updateErr  error
	appendErr  error
	loadDelay  time.Duration
	updateHook func(id string, status Status)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[string]SessionRecord),
		starts:  make(map[string]time.Time),
	}
}

func (s *fakeStore) put(rec SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
}

func (s *fakeStore) LoadSession(ctx context.Context, id string) (*SessionRecord, error) {
	s.loadCalls.Inc()
	if s.loadDelay > 0 {
		time.Sleep(s.loadDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.loadErrs) > 0 {
		err := s.loadErrs[0]
		s.loadErrs = s.loadErrs[1:]
		return nil, err
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, merr.WrapErrLiveSessionNotFound(id)
	}
	rec.BreakConfig = cloneBreakConfig(rec.BreakConfig)
	return &rec, nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	rec, ok := s.records[id]
	if !ok {
		return merr.WrapErrLiveSessionNotFound(id)
	}
	rec.Status = status
	s.records[id] = rec
	if s.updateHook != nil {
		s.updateHook(id, status)
	}
	return nil
}

func (s *fakeStore) AppendTransitionLog(ctx context.Context, record TransitionLogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.logs = append(s.logs, record)
	return nil
}

func (s *fakeStore) RecordStart(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts[id] = at
	rec := s.records[id]
	rec.StartedAt = &at
	s.records[id] = rec
	return nil
}

func (s *fakeStore) logsOf(id string) []TransitionLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TransitionLogRecord
	for _, l := range s.logs {
		if l.SessionID == id {
			out = append(out, l)
		}
	}
	return out
}

func (s *fakeStore) status(id string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Status
}

type fakeNotifier struct {
	mu      sync.Mutex
	changes []Change
}

func (n *fakeNotifier) Notify(ctx context.Context, change Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
}

func (n *fakeNotifier) fields(id string) []Field {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Field
	for _, c := range n.changes {
		if c.SessionID == id {
			out = append(out, c.Field)
		}
	}
	return out
}
