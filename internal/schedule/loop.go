package schedule

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"agentsched/internal/eventbus"
	logx "agentsched/pkg/logx"
)

// DefaultTick is the polling cadence of the scheduler loop. Scheduling
// resolution is deliberately coarse (one second); due windows are a minute
// (at-time) or a second (periodic) wide.
const DefaultTick = time.Second

// Dispatcher hands an activated task to the execution backend. Dispatch must
// return immediately; the actual work happens on a detached worker that the
// loop neither tracks nor awaits.
type Dispatcher interface {
	Dispatch(t *Task)
}

// DispatchFunc adapts a function to the Dispatcher interface.
type DispatchFunc func(*Task)

func (f DispatchFunc) Dispatch(t *Task) { f(t) }

// Loop is the single background worker that polls the registry and fires due
// tasks. Stop is cooperative: the stop signal is observed at the top of every
// tick, so shutdown latency is bounded by one tick plus one registry scan.
type Loop struct {
	reg  *Registry
	disp Dispatcher
	bus  eventbus.Bus
	log  logx.Logger

	tick  time.Duration
	nowFn func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

type LoopOption func(*Loop)

// WithTick overrides the polling cadence (tests use a short tick).
func WithTick(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.tick = d
		}
	}
}

// WithNow overrides the clock source (tests simulate wall time).
func WithNow(fn func() time.Time) LoopOption {
	return func(l *Loop) {
		if fn != nil {
			l.nowFn = fn
		}
	}
}

func NewLoop(reg *Registry, disp Dispatcher, bus eventbus.Bus, log logx.Logger, opts ...LoopOption) *Loop {
	if log.IsZero() {
		log = logx.Nop()
	}
	l := &Loop{
		reg:    reg,
		disp:   disp,
		bus:    bus,
		log:    log,
		tick:   DefaultTick,
		nowFn:  time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run polls until Stop is called or ctx is canceled. It always returns nil:
// scan failures are logged and survived, never fatal.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.doneCh)

	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()

	l.log.Info("scheduler loop started", logx.Duration("tick", l.tick))
	for {
		select {
		case <-ctx.Done():
			l.log.Info("scheduler loop exiting", logx.String("reason", "context canceled"))
			return nil
		case <-l.stopCh:
			l.log.Info("scheduler loop exiting", logx.String("reason", "stop requested"))
			return nil
		case <-ticker.C:
			l.scanOnce(l.nowFn())
		}
	}
}

// Stop signals the loop and waits up to grace for the current scan to finish.
// Returns true if the loop exited in time. Safe to call more than once.
func (l *Loop) Stop(grace time.Duration) bool {
	l.stopOnce.Do(func() { close(l.stopCh) })
	if grace <= 0 {
		return true
	}
	select {
	case <-l.doneCh:
		return true
	case <-time.After(grace):
		return false
	}
}

// scanOnce runs one poll of the registry. Panics are recovered and logged so
// one misbehaving task cannot stop the loop or starve the tasks scanned
// after it; the next tick proceeds normally.
func (l *Loop) scanOnce(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("scheduler scan panicked",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	for _, d := range l.reg.DueTasks(now) {
		desc := d.Task.Describe()
		l.log.Info("activating task",
			logx.Int("index", d.Index),
			logx.String("task", desc),
			logx.Time("at", now))
		if l.bus != nil {
			l.bus.Publish(eventbus.Event{
				Type: eventbus.TypeTaskActivated,
				Time: now,
				Data: eventbus.ActivationData{Index: d.Index, Desc: desc},
			})
		}
		l.dispatch(d)
	}
}

// dispatch confines a Dispatch panic to the one task that raised it.
func (l *Loop) dispatch(d Due) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("task dispatch panicked",
				logx.Int("index", d.Index),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()
	if l.disp != nil {
		l.disp.Dispatch(d.Task)
	}
}
