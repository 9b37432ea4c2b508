// Package source feeds events and time refreshes into the pipeline.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gyaneshwarpardhi/sense/internal/errsink"
	"github.com/gyaneshwarpardhi/sense/internal/event"
)

// Listener receives ingested events and time refreshes.
type Listener interface {
	OnData(ctx context.Context, ev *event.Event, observedAt time.Time) error
	OnTimeRefresh(observedAt time.Time)
}

// Listeners fans every call out to all listeners. A failing or panicking listener is
// reported and does not stop delivery to the others.
type Listeners struct {
	listeners []Listener
	errors    errsink.Sink
}

func NewListeners(errs errsink.Sink, listeners ...Listener) *Listeners {
	if errs == nil {
		errs = errsink.Log()
	}
	return &Listeners{listeners: listeners, errors: errs}
}

// OnData returns the first listener error so queue sources can redeliver the message.
func (ls *Listeners) OnData(ctx context.Context, ev *event.Event, observedAt time.Time) error {
	var first error
	for _, l := range ls.listeners {
		err := ls.guard(l, "data", func() error { return l.OnData(ctx, ev, observedAt) })
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (ls *Listeners) OnTimeRefresh(observedAt time.Time) {
	for _, l := range ls.listeners {
		_ = ls.guard(l, "refresh", func() error {
			l.OnTimeRefresh(observedAt)
			return nil
		})
	}
}

func (ls *Listeners) guard(l Listener, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", op, r)
		}
		if err != nil {
			ls.errors.Report("source", fmt.Sprintf("%T", l), err)
		}
	}()
	return fn()
}

// Ticker calls OnTimeRefresh on l every interval until ctx is done, so windows advance
// while no events arrive.
func Ticker(ctx context.Context, interval time.Duration, l Listener) {
	t := time.NewTicker(interval)
	defer t.Stop()
	slog.Debug("time refresh started", "interval", interval)
	for {
		select {
		case now := <-t.C:
			l.OnTimeRefresh(now)
		case <-ctx.Done():
			return
		}
	}
}
