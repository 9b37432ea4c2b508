// Package statistics records classified events. Every sink is driven by the same
// dedicated loop, so implementations need no locking of their own unless they are
// also read from other goroutines.
package statistics

import (
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/sense/internal/errsink"
	"github.com/gyaneshwarpardhi/sense/internal/event"
)

// Statistic consumes classified events and time refresh signals.
type Statistic interface {
	// Update records ev classified as t, observed at the given time.
	Update(t event.EventType, ev *event.Event, observedAt time.Time)
	// Refresh advances the logical time of the statistic.
	Refresh(now time.Time)
}

// Named is implemented by sinks that want a readable identity in failure reports.
type Named interface {
	Name() string
}

// Aggregated fans out to several statistics. A sink that panics is reported to the error
// sink and the remaining sinks still run.
type Aggregated struct {
	sinks  []Statistic
	errors errsink.Sink
}

func NewAggregated(errs errsink.Sink, sinks ...Statistic) *Aggregated {
	if errs == nil {
		errs = errsink.Log()
	}
	return &Aggregated{sinks: sinks, errors: errs}
}

func (a *Aggregated) Update(t event.EventType, ev *event.Event, observedAt time.Time) {
	for _, s := range a.sinks {
		a.guard(s, "update", func() { s.Update(t, ev, observedAt) })
	}
}

func (a *Aggregated) Refresh(now time.Time) {
	for _, s := range a.sinks {
		a.guard(s, "refresh", func() { s.Refresh(now) })
	}
}

func (a *Aggregated) guard(s Statistic, op string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			a.errors.Report("statistic", nameOf(s), fmt.Errorf("%s: panic: %v", op, p))
		}
	}()
	fn()
}

func nameOf(s Statistic) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}
