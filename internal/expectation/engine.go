package expectation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/sense/internal/errsink"
	"github.com/gyaneshwarpardhi/sense/internal/event"
	"github.com/gyaneshwarpardhi/sense/internal/metrics"
)

// Engine keeps a counter per event type that at least one active expectation refers to.
// Counters of types nobody is interested in are not kept, so an expectation only counts
// events observed after it was submitted.
//
// Listener calls and await callbacks always run after the lock is released; they may call
// back into the Engine. Listeners see the registration of an expectation before its
// notification even when an Update satisfies it while Submit is still announcing it.
// A NotificationRegistered call must therefore not feed the events that satisfy the
// expectation it announces on the same goroutine.
type Engine struct {
	mu       sync.RWMutex
	counters map[event.EventType]int64
	byName   map[string]*expectation
	byType   map[event.EventType]map[string]*expectation

	listeners []Listener
	errors    errsink.Sink
}

func NewEngine(errs errsink.Sink, listeners ...Listener) *Engine {
	if errs == nil {
		errs = errsink.Log()
	}
	return &Engine{
		counters:  make(map[event.EventType]int64),
		byName:    make(map[string]*expectation),
		byType:    make(map[event.EventType]map[string]*expectation),
		listeners: listeners,
		errors:    errs,
	}
}

func (e *Engine) Name() string { return "notifications" }

// Submit registers r and returns its name.
func (e *Engine) Submit(r Request) (string, error) {
	if err := r.validate(); err != nil {
		return "", err
	}

	e.mu.RLock()
	target := make(map[event.EventType]int64, len(r.Expected))
	for t, n := range r.Expected {
		target[t] = e.counters[t] + n
	}
	e.mu.RUnlock()

	exp := newExpectation(r, target)
	e.mu.Lock()
	if _, ok := e.byName[exp.name]; ok {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: %q", ErrDuplicateName, exp.name)
	}
	e.byName[exp.name] = exp
	for t := range target {
		exps, ok := e.byType[t]
		if !ok {
			exps = make(map[string]*expectation)
			e.byType[t] = exps
		}
		exps[exp.name] = exp
	}
	metrics.ActiveExpectations.Set(float64(len(e.byName)))
	e.mu.Unlock()

	slog.Info("expectation registered", "notification", exp.name, "expected", r.Expected, "target", target)
	info := exp.info()
	e.eachListener("register", func(l Listener) error { return l.NotificationRegistered(info) })
	close(exp.announced)
	return exp.name, nil
}

// Await runs callback once the expectation name is satisfied. An unknown name is treated as
// already satisfied and callback runs immediately.
func (e *Engine) Await(name string, callback func()) {
	e.mu.Lock()
	exp, ok := e.byName[name]
	if ok {
		exp.callbacks = append(exp.callbacks, callback)
	}
	e.mu.Unlock()

	if !ok {
		slog.Info("no expectation submitted, resolving await immediately", "notification", name)
		e.runCallback(name, callback)
		return
	}
	slog.Info("callback added to expectation", "notification", name)
}

// AwaitTimeout blocks until name is satisfied, timeout elapses or ctx is done. On timeout the
// expectation is removed and ErrTimeout returned; if it was satisfied concurrently nil is
// returned instead.
func (e *Engine) AwaitTimeout(ctx context.Context, name string, timeout time.Duration) error {
	done := make(chan struct{})
	e.Await(name, func() { close(done) })

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	err := e.Remove(name)
	if err == nil {
		slog.Info("expectation timed out", "notification", name, "timeout", timeout)
		return fmt.Errorf("%w: %q after %s", ErrTimeout, name, timeout)
	}
	if !errors.Is(err, ErrUnknownName) {
		return err
	}
	// Gone already: either satisfied right before the timer fired or removed by someone else.
	select {
	case <-done:
		return nil
	default:
		return fmt.Errorf("%w: %q after %s", ErrTimeout, name, timeout)
	}
}

// Remove cancels an active expectation. Its callbacks never run.
func (e *Engine) Remove(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	exp, ok := e.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownName, name)
	}
	e.clean(exp)
	slog.Info("expectation removed", "notification", name)
	return nil
}

// Update counts ev for t and notifies every expectation that became satisfied.
// observedAt becomes the notification timestamp.
func (e *Engine) Update(t event.EventType, _ *event.Event, observedAt time.Time) {
	e.mu.Lock()
	exps := e.byType[t]
	if len(exps) == 0 {
		e.mu.Unlock()
		return
	}
	e.counters[t]++
	count := e.counters[t]
	var completed []*expectation
	for _, exp := range exps {
		if exp.observe(t, count) {
			completed = append(completed, exp)
		}
	}
	for _, exp := range completed {
		e.clean(exp)
	}
	e.mu.Unlock()

	sort.Slice(completed, func(i, j int) bool { return completed[i].name < completed[j].name })
	for _, exp := range completed {
		e.notify(exp, observedAt)
	}
}

// Refresh is a no-op: expectations only move on classified events.
func (e *Engine) Refresh(time.Time) {}

// Active lists the pending expectations sorted by name.
func (e *Engine) Active() []Info {
	e.mu.RLock()
	out := make([]Info, 0, len(e.byName))
	for _, exp := range e.byName {
		out = append(out, exp.info())
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Counter returns the current counter of t and whether it is being kept.
func (e *Engine) Counter(t event.EventType) (int64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n, ok := e.counters[t]
	return n, ok
}

// clean must be called with mu held.
func (e *Engine) clean(exp *expectation) {
	delete(e.byName, exp.name)
	for t := range exp.target {
		exps := e.byType[t]
		delete(exps, exp.name)
		if len(exps) == 0 {
			delete(e.byType, t)
			delete(e.counters, t)
		}
	}
	metrics.ActiveExpectations.Set(float64(len(e.byName)))
}

func (e *Engine) notify(exp *expectation, observedAt time.Time) {
	slog.Info("expectation satisfied", "notification", exp.name, "callbacks", len(exp.callbacks))
	for _, cb := range exp.callbacks {
		e.runCallback(exp.name, cb)
	}
	n := Notification{
		Name:            exp.name,
		SourceTimestamp: observedAt,
		AchievedCounts:  maps.Clone(exp.requested),
		Description:     exp.description,
	}
	<-exp.announced
	e.eachListener("notification", func(l Listener) error { return l.Notify(n) })
}

func (e *Engine) runCallback(name string, cb func()) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("cannot execute await callback", "notification", name, "panic", p)
		}
	}()
	cb()
}

func (e *Engine) eachListener(action string, fn func(Listener) error) {
	for _, l := range e.listeners {
		e.callListener(action, l, fn)
	}
}

func (e *Engine) callListener(action string, l Listener, fn func(Listener) error) {
	source := fmt.Sprintf("%T", l)
	defer func() {
		if p := recover(); p != nil {
			e.errors.Report("listener", source, fmt.Errorf("cannot process %s: panic: %v", action, p))
		}
	}()
	if err := fn(l); err != nil {
		e.errors.Report("listener", source, fmt.Errorf("cannot process %s: %w", action, err))
	}
}
