package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// TimerID identifies a scheduled timer on a Loop. Zero is never issued.
type TimerID uint64

// Task is a unit of work run on the loop.
type Task func(ctx context.Context)

type timerEntry struct {
	id       TimerID
	name     string
	due      time.Time
	interval time.Duration // zero for one-shot timers
	task     Task
}

// Loop is a single cooperative event loop. Every queued task and timer
// callback runs on whichever goroutine drives the loop, one at a time, so
// game state owned by callbacks needs no further locking.
type Loop struct {
	clock Clock

	mu     sync.Mutex
	queue  []Task
	timers map[TimerID]*timerEntry
	nextID TimerID

	wakeCh chan struct{}
}

// NewLoop creates a loop driven by the given clock.
func NewLoop(clock Clock) *Loop {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Loop{
		clock:  clock,
		timers: make(map[TimerID]*timerEntry),
		wakeCh: make(chan struct{}, 1),
	}
}

// Now returns the loop clock's current time.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Post queues a task to run on the loop. Safe to call from any goroutine.
func (l *Loop) Post(task Task) {
	l.mu.Lock()
	l.queue = append(l.queue, task)
	l.mu.Unlock()
	l.wake()
}

// After schedules a one-shot task and returns its id.
func (l *Loop) After(name string, delay time.Duration, task Task) TimerID {
	return l.schedule(name, delay, 0, task)
}

// Every schedules a repeating task whose first run is after the given delay.
func (l *Loop) Every(name string, delay, interval time.Duration, task Task) TimerID {
	if interval <= 0 {
		interval = time.Millisecond
	}
	return l.schedule(name, delay, interval, task)
}

func (l *Loop) schedule(name string, delay, interval time.Duration, task Task) TimerID {
	if delay < 0 {
		delay = 0
	}
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.timers[id] = &timerEntry{
		id:       id,
		name:     name,
		due:      l.clock.Now().Add(delay),
		interval: interval,
		task:     task,
	}
	l.mu.Unlock()

	log.Debug().
		Str("timer", name).
		Uint64("timer_id", uint64(id)).
		Dur("delay", delay).
		Dur("interval", interval).
		Msg("timer scheduled")

	l.wake()
	return id
}

// Cancel removes a timer. Cancelling an unknown or fired timer is a no-op.
func (l *Loop) Cancel(id TimerID) {
	if id == 0 {
		return
	}
	l.mu.Lock()
	delete(l.timers, id)
	l.mu.Unlock()
}

// Scheduled reports whether the timer is still pending.
func (l *Loop) Scheduled(id TimerID) bool {
	if id == 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.timers[id]
	return ok
}

// ActiveTimers returns the names of every pending timer, sorted.
func (l *Loop) ActiveTimers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.timers))
	for _, t := range l.timers {
		names = append(names, t.name)
	}
	sort.Strings(names)
	return names
}

// StopAll cancels every pending timer. Queued tasks are kept.
func (l *Loop) StopAll() {
	l.mu.Lock()
	n := len(l.timers)
	l.timers = make(map[TimerID]*timerEntry)
	l.mu.Unlock()

	log.Debug().Int("timers", n).Msg("stopped all timers")
}

// RunDue runs every queued task and every timer that is due at the current
// clock time, in order, on the calling goroutine. It returns the number of
// callbacks executed.
func (l *Loop) RunDue(ctx context.Context) int {
	ran := 0
	for ctx.Err() == nil {
		task, ok := l.next()
		if !ok {
			break
		}
		l.safeRun(ctx, task)
		ran++
	}
	return ran
}

// next pops the next runnable callback. Queued tasks go first, then the
// earliest due timer. Repeating timers are rescheduled before they run so a
// callback may cancel its own timer.
func (l *Loop) next() (Task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) > 0 {
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		return task, true
	}

	now := l.clock.Now()
	var due *timerEntry
	for _, t := range l.timers {
		if t.due.After(now) {
			continue
		}
		if due == nil || t.due.Before(due.due) || (t.due.Equal(due.due) && t.id < due.id) {
			due = t
		}
	}
	if due == nil {
		return nil, false
	}

	if due.interval == 0 {
		delete(l.timers, due.id)
	} else {
		nextDue := due.due.Add(due.interval)
		if !nextDue.After(now) {
			// Overdue ticks are collapsed rather than replayed.
			nextDue = now.Add(due.interval)
		}
		due.due = nextDue
	}
	return due.task, true
}

// nextWait returns how long until the earliest pending timer.
func (l *Loop) nextWait() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) > 0 {
		return 0, true
	}
	var earliest time.Time
	for _, t := range l.timers {
		if earliest.IsZero() || t.due.Before(earliest) {
			earliest = t.due
		}
	}
	if earliest.IsZero() {
		return 0, false
	}
	wait := earliest.Sub(l.clock.Now())
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

// Run drives the loop until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	log.Info().Msg("event loop started")
	for {
		l.RunDue(ctx)

		var timerCh <-chan time.Time
		var timer clockwork.Timer
		if wait, ok := l.nextWait(); ok {
			timer = l.clock.NewTimer(wait)
			timerCh = timer.Chan()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				stopAndDrainTimer(timer)
			}
			log.Info().Msg("event loop stopped")
			return ctx.Err()
		case <-timerCh:
		case <-l.wakeCh:
			if timer != nil {
				stopAndDrainTimer(timer)
			}
		}
	}
}

func (l *Loop) wake() {
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

// safeRun executes a callback, converting a panic into a logged error so a
// single tick can never take down the loop.
func (l *Loop) safeRun(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("recovered panic in loop callback")
		}
	}()
	task(ctx)
}

// stopAndDrainTimer safely stops a timer and drains its channel.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
