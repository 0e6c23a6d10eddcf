package livesession

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-live-session/pkg/log"
)

// periodic 以固定间隔驱动 tick 回调，供调度器与监控器复用。
// Start/Stop 幂等；Stop 不会打断正在执行的 tick，只阻止后续 tick。
type periodic struct {
	name     string
	interval time.Duration
	clock    clockwork.Clock
	tick     func(ctx context.Context)

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func newPeriodic(name string, interval time.Duration, clock clockwork.Clock, tick func(ctx context.Context)) *periodic {
	return &periodic{
		name:     name,
		interval: interval,
		clock:    clock,
		tick:     tick,
	}
}

func (p *periodic) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	ticker := p.clock.NewTicker(p.interval)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.running.Store(true)

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				// 迁移在协程池中异步执行，不随驱动停止而取消。
				p.tick(context.WithoutCancel(ctx))
			}
		}
	}()
	log.Debug("periodic driver started", zap.String("driver", p.name), zap.Duration("interval", p.interval))
}

func (p *periodic) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.Load() {
		return
	}
	p.cancel()
	<-p.done
	p.running.Store(false)
	log.Debug("periodic driver stopped", zap.String("driver", p.name))
}

func (p *periodic) Running() bool {
	return p.running.Load()
}
