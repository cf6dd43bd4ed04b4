package poller

import (
	"context"
	"sync"
	"time"
)

// DefaultPeriod matches the 3s refresh interval of the original clients.
const DefaultPeriod = 3 * time.Second

// Poller invokes a refresh action at a fixed period. The first invocation
// fires immediately on Start, not after one period. Every tick runs in its
// own goroutine: a slow action still in flight when the next tick fires is
// not coalesced or cancelled; out-of-order completion is the reconciler's
// problem, not the scheduler's.
//
// Stop prevents pending and future ticks but never aborts an action already
// in flight. It is safe to call multiple times. Switching the polled subject
// is always stop-then-restart; the poller never repoints a running loop.
type Poller struct {
	period time.Duration

	mu   sync.Mutex
	quit chan struct{}
}

// New builds a poller with the given period (DefaultPeriod when <= 0).
func New(period time.Duration) *Poller {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Poller{period: period}
}

// Start begins ticking. If a previous run is active it is stopped first so
// two loops never tick concurrently. The action receives ctx as given; Stop
// does not cancel it.
func (p *Poller) Start(ctx context.Context, action func(context.Context)) {
	p.mu.Lock()
	if p.quit != nil {
		close(p.quit)
	}
	quit := make(chan struct{})
	p.quit = quit
	p.mu.Unlock()

	go action(ctx)
	go p.loop(ctx, quit, action)
}

// Stop cancels future ticks. Idempotent; must be called on every exit path
// (subject switch, teardown, visibility flip).
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quit != nil {
		close(p.quit)
		p.quit = nil
	}
}

// Running reports whether a polling loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quit != nil
}

func (p *Poller) loop(ctx context.Context, quit chan struct{}, action func(context.Context)) {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			go action(ctx)
		}
	}
}
