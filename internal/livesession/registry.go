package livesession

import (
	"sync"

	"github.com/samber/lo"

	"github.com/lk2023060901/danmu-live-session/pkg/metrics"
)

// Registry 维护当前进程内处于直播中（ready/opened/breaked）的会话。
//
// 特性：
//   - 使用读写锁保证并发安全；
//   - Add 遇到重复 ID 时不覆盖旧会话；
//   - Range 在遍历前复制一份会话切片，避免在持锁情况下执行回调。
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry 创建一个空的 Registry。
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Add 注册会话，返回是否为新插入。
func (r *Registry) Add(sess *Session) bool {
	if sess == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sess.ID()]; exists {
		return false
	}
	r.sessions[sess.ID()] = sess
	metrics.RegistrySize.Set(float64(len(r.sessions)))
	return true
}

// Remove 移除会话，不存在时返回 false。
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; !exists {
		return false
	}
	delete(r.sessions, id)
	metrics.RegistrySize.Set(float64(len(r.sessions)))
	return true
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	return sess, ok
}

func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Sessions 返回当前所有会话的快照。
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Values(r.sessions)
}

// Range 遍历当前所有会话，fn 返回 false 时中断遍历。
func (r *Registry) Range(fn func(sess *Session) bool) {
	if fn == nil {
		return
	}
	for _, sess := range r.Sessions() {
		if !fn(sess) {
			return
		}
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}
