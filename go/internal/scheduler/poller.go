package scheduler

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Poller is one named logical poll stream on a Loop. At most one timer is
// active per poller: starting an active poller is a no-op.
type Poller struct {
	name string
	loop *Loop

	mu sync.Mutex
	id TimerID
}

// NewPoller creates an idle poll stream.
func (l *Loop) NewPoller(name string) *Poller {
	return &Poller{name: name, loop: l}
}

// Name returns the stream name.
func (p *Poller) Name() string {
	return p.name
}

// Start begins repeating fn every interval, first run after one interval.
// It returns false and does nothing if the stream is already active.
func (p *Poller) Start(interval time.Duration, fn Task) bool {
	return p.start(interval, interval, fn)
}

// StartNow is Start with the first run on the next loop pass.
func (p *Poller) StartNow(interval time.Duration, fn Task) bool {
	return p.start(0, interval, fn)
}

func (p *Poller) start(delay, interval time.Duration, fn Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loop.Scheduled(p.id) {
		log.Debug().Str("poller", p.name).Msg("poller already active, ignoring start")
		return false
	}
	p.id = p.loop.Every(p.name, delay, interval, fn)
	return true
}

// StartOnce runs fn once after delay. It is a no-op while the stream is active.
func (p *Poller) StartOnce(delay time.Duration, fn Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loop.Scheduled(p.id) {
		log.Debug().Str("poller", p.name).Msg("poller already active, ignoring one-shot")
		return false
	}
	p.id = p.loop.After(p.name, delay, fn)
	return true
}

// Stop cancels the stream. A stopped stream never fires again.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.id != 0 {
		p.loop.Cancel(p.id)
		p.id = 0
	}
}

// IsActive reports whether the stream has a pending timer.
func (p *Poller) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loop.Scheduled(p.id)
}

// Backoff computes exponential retry delays.
type Backoff struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

// DefaultBackoff grows from one second by 1.5x per attempt, capped at 30s.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Factor: 1.5, Max: 30 * time.Second}
}

// Delay returns Base * Factor^attempt, capped at Max when Max is set.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := b.Factor
	if factor <= 0 {
		factor = 1.5
	}
	d := float64(b.Base) * math.Pow(factor, float64(attempt))
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}
