// Package engine runs the classification pipeline: a bounded pool classifies events
// concurrently and a single statistics loop applies accepted events and time refreshes
// in order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gyaneshwarpardhi/sense/internal/classifier"
	"github.com/gyaneshwarpardhi/sense/internal/config"
	"github.com/gyaneshwarpardhi/sense/internal/event"
	"github.com/gyaneshwarpardhi/sense/internal/metrics"
	"github.com/gyaneshwarpardhi/sense/internal/statistics"
)

var (
	ErrQueueFull = errors.New("event queue full")
	ErrStopped   = errors.New("engine stopped")
)

// EventResult is the outcome of processing a single event.
type EventResult struct {
	EventID    string          `json:"event_id"`
	DurationMs float64         `json:"duration_ms"`
	Accepted   bool            `json:"accepted"`
	Type       event.EventType `json:"type,omitempty"`
	Rule       string          `json:"rule,omitempty"`
}

// Recorder keeps ingested events so that later events can resolve them as parents.
type Recorder interface {
	Record(ctx context.Context, ev *event.Event) error
}

// Deps are the components driven by the engine.
type Deps struct {
	Classifier *classifier.Classifier
	// Buckets is also reachable through Statistics; it is kept for snapshots.
	Buckets    *statistics.Buckets
	Statistics statistics.Statistic
	Recorder   Recorder // optional
}

// Engine processes events through the classifier and statistics.
type Engine struct {
	deps         Deps
	classifyPool *workerPool[*eventWork, *EventResult]
	statsPool    *workerPool[statsJob, struct{}]
	conf         config.EngineConf
}

type eventWork struct {
	ev         *event.Event
	observedAt time.Time
	resultC    chan *EventResult
}

type statsKind uint8

const (
	statsUpdate statsKind = iota + 1
	statsRefresh
	statsSnapshot
)

type statsJob struct {
	kind  statsKind
	typ   event.EventType
	ev    *event.Event
	at    time.Time
	stats chan []statistics.TierStats
}

// New creates an Engine using conf and starts worker pools.
func New(ctx context.Context, deps Deps, conf config.EngineConf) *Engine {
	e := &Engine{deps: deps, conf: conf}

	// Start the statistics loop first so classify workers can submit to it.
	// One worker: statistics are not safe for concurrent use.
	e.statsPool = newWorkerPool[statsJob, struct{}](
		ctx,
		1,
		conf.QueueDepth,
		func(_ context.Context, j statsJob) (struct{}, error) {
			e.applyStats(j)
			return struct{}{}, nil
		},
	)

	e.classifyPool = newWorkerPool[*eventWork, *EventResult](
		ctx,
		conf.ClassifyWorkers,
		conf.QueueDepth,
		func(ctx context.Context, w *eventWork) (*EventResult, error) {
			res := e.processEvent(ctx, w)
			if w.resultC != nil {
				w.resultC <- res
			}
			return res, nil
		},
	)

	return e
}

// ProcessSync processes an event synchronously and returns the result.
func (e *Engine) ProcessSync(ctx context.Context, ev *event.Event, observedAt time.Time) (*EventResult, error) {
	resultC := make(chan *EventResult, 1)
	w := &eventWork{ev: ev, observedAt: observedAt, resultC: resultC}

	timeout := time.Duration(e.conf.EventTimeoutMs) * time.Millisecond
	if !e.classifyPool.Submit(w) {
		if e.classifyPool.Closed() {
			return nil, ErrStopped
		}
		metrics.EventsDropped.Inc()
		return nil, fmt.Errorf("%w (capacity %d)", ErrQueueFull, e.conf.QueueDepth)
	}
	metrics.EventsEnqueued.Inc()

	select {
	case res := <-resultC:
		return res, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("event processing timeout after %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProcessAsync enqueues an event for background processing. Returns false if the queue is full.
func (e *Engine) ProcessAsync(ev *event.Event, observedAt time.Time) bool {
	if !e.classifyPool.Submit(&eventWork{ev: ev, observedAt: observedAt}) {
		metrics.EventsDropped.Inc()
		return false
	}
	metrics.EventsEnqueued.Inc()
	return true
}

// OnData enqueues ev, waiting for room in the queue. Queue sources use it so a message is
// only acknowledged once the event is accepted for processing.
func (e *Engine) OnData(ctx context.Context, ev *event.Event, observedAt time.Time) error {
	if !e.classifyPool.SubmitWait(ctx, &eventWork{ev: ev, observedAt: observedAt}) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrStopped
	}
	metrics.EventsEnqueued.Inc()
	return nil
}

// OnTimeRefresh advances the logical time of the statistics.
func (e *Engine) OnTimeRefresh(observedAt time.Time) {
	if !e.statsPool.Submit(statsJob{kind: statsRefresh, at: observedAt}) {
		slog.Warn("statistics queue full, skipping time refresh", "at", observedAt)
	}
}

// Stats returns a snapshot of the windowed statistics taken on the statistics loop.
func (e *Engine) Stats(ctx context.Context) ([]statistics.TierStats, error) {
	reply := make(chan []statistics.TierStats, 1)
	if !e.statsPool.SubmitWait(ctx, statsJob{kind: statsSnapshot, stats: reply}) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrStopped
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// QueueUtilization returns queue used / capacity (0–1).
func (e *Engine) QueueUtilization() float64 {
	if e.classifyPool.QueueCap() == 0 {
		return 0
	}
	return float64(e.classifyPool.QueueLen()) / float64(e.classifyPool.QueueCap())
}

func (e *Engine) processEvent(ctx context.Context, w *eventWork) *EventResult {
	start := time.Now()
	ev := w.ev

	if e.deps.Recorder != nil {
		if err := e.deps.Recorder.Record(ctx, ev); err != nil {
			slog.Warn("cannot record event", "event", ev.ID, "err", err)
		}
	}

	res := e.deps.Classifier.Process(ctx, ev)
	result := &EventResult{EventID: ev.ID, Accepted: res.Accepted, Type: res.Type, Rule: res.Rule}

	if res.Accepted {
		job := statsJob{kind: statsUpdate, typ: res.Type, ev: ev, at: w.observedAt}
		if !e.statsPool.SubmitWait(ctx, job) {
			slog.Warn("statistics loop unavailable, classified event not counted", "event", ev.ID, "type", res.Type)
		}
	}

	elapsed := time.Since(start)
	result.DurationMs = float64(elapsed.Microseconds()) / 1000
	metrics.EventsProcessed.Inc()
	metrics.EventProcessingDuration.Observe(result.DurationMs)
	return result
}

func (e *Engine) applyStats(j statsJob) {
	switch j.kind {
	case statsUpdate:
		// refresh is driven by OnTimeRefresh only
		e.deps.Statistics.Update(j.typ, j.ev, j.at)
	case statsRefresh:
		e.deps.Statistics.Refresh(j.at)
	case statsSnapshot:
		var s []statistics.TierStats
		if e.deps.Buckets != nil {
			s = e.deps.Buckets.Stats()
		}
		j.stats <- s
	}
}

// Shutdown drains both pools gracefully.
func (e *Engine) Shutdown() {
	e.classifyPool.Drain()
	e.statsPool.Drain()
}
