package livesession

import (
	"container/heap"
	"sync"
	"time"

	"github.com/lk2023060901/danmu-live-session/pkg/metrics"
)

// Entry 为一次待执行的定时迁移：在 DueTime 到达后对 SessionID 触发迁移。
type Entry struct {
	SessionID string
	DueTime   time.Time

	seq   uint64
	index int
}

type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].DueTime.Equal(h[j].DueTime) {
		return h[i].seq < h[j].seq
	}
	return h[i].DueTime.Before(h[j].DueTime)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue 是按 DueTime 升序排列的最小优先队列，同一会话最多只有一个条目。
//
// 说明：
//   - DueTime 相同时按入队顺序出队；
//   - 所有方法并发安全，且不会回调会话，避免与会话锁形成环。
type Queue struct {
	name string

	mu    sync.Mutex
	items entryHeap
	index map[string]*Entry
	seq   uint64
}

// NewQueue 创建一个空队列，name 用于日志与指标标签。
func NewQueue(name string) *Queue {
	return &Queue{
		name:  name,
		index: make(map[string]*Entry),
	}
}

func (q *Queue) Name() string {
	return q.name
}

// Push 将会话加入队列；若会话已在队列中，则改为新的 DueTime。
func (q *Queue) Push(sessionID string, due time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	if e, ok := q.index[sessionID]; ok {
		e.DueTime = due
		e.seq = q.seq
		heap.Fix(&q.items, e.index)
		return
	}
	e := &Entry{SessionID: sessionID, DueTime: due, seq: q.seq}
	heap.Push(&q.items, e)
	q.index[sessionID] = e
	q.observe()
}

// Peek 返回队首条目但不出队。
func (q *Queue) Peek() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Entry{}, false
	}
	return *q.items[0], true
}

// Pop 弹出队首条目。
func (q *Queue) Pop() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Entry{}, false
	}
	return q.popLocked(), true
}

// PopIfDue 仅在队首条目已到期（DueTime <= now）时将其弹出。
// peek 与 pop 在同一把锁内完成，保证每个条目只会被一个调用方取走。
func (q *Queue) PopIfDue(now time.Time) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 || q.items[0].DueTime.After(now) {
		return Entry{}, false
	}
	return q.popLocked(), true
}

func (q *Queue) popLocked() Entry {
	e := heap.Pop(&q.items).(*Entry)
	delete(q.index, e.SessionID)
	q.observe()
	return *e
}

// Remove 按会话 ID 移除条目，不存在时返回 false。
func (q *Queue) Remove(sessionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.index[sessionID]
	if !ok {
		return false
	}
	heap.Remove(&q.items, e.index)
	delete(q.index, sessionID)
	q.observe()
	return true
}

// Contains 判断会话是否在队列中。
func (q *Queue) Contains(sessionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, ok := q.index[sessionID]
	return ok
}

// DueTime 返回会话在队列中的到期时间。
func (q *Queue) DueTime(sessionID string) (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.index[sessionID]
	if !ok {
		return time.Time{}, false
	}
	return e.DueTime, true
}

// Clear 清空队列。
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = nil
	q.index = make(map[string]*Entry)
	q.observe()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

func (q *Queue) observe() {
	metrics.QueueLength.WithLabelValues(q.name).Set(float64(len(q.items)))
}
