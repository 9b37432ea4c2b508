// Package classifier maps raw events to user-defined event types. Rules are evaluated in
// registration order against an immutable snapshot of the registry; the first rule whose
// predicate tree accepts the event supplies the type.
package classifier

import (
	"context"
	"log/slog"

	"github.com/gyaneshwarpardhi/sense/internal/errsink"
	"github.com/gyaneshwarpardhi/sense/internal/event"
	"github.com/gyaneshwarpardhi/sense/internal/provider"
)

// Result is the outcome of one classification pass. Accepted is false for Skip.
type Result struct {
	Accepted bool            `json:"accepted"`
	Type     event.EventType `json:"type,omitempty"`
	Rule     string          `json:"rule,omitempty"`
}

// Skip is the result when no rule accepts the event.
var Skip = Result{}

type Classifier struct {
	registry *Registry
	provider provider.Provider
	sink     errsink.Sink
}

func New(reg *Registry, p provider.Provider, sink errsink.Sink) *Classifier {
	if sink == nil {
		sink = errsink.Log()
	}
	return &Classifier{registry: reg, provider: p, sink: sink}
}

func (c *Classifier) Registry() *Registry { return c.registry }

// Process classifies ev. A rule that fails is reported to the error sink and treated as not
// matching; the remaining rules still run.
func (c *Classifier) Process(ctx context.Context, ev *event.Event) Result {
	snap := c.registry.Snapshot()
	pass := newContext(ctx, c.provider)
	for _, rule := range snap.Rules {
		t, ok, err := rule.apply(pass, ev)
		if err != nil {
			c.sink.Report("rule", rule.Name(), err)
			continue
		}
		if ok {
			slog.Debug("event classified", "event", ev.ID, "rule", rule.Name(), "type", t)
			return Result{Accepted: true, Type: t, Rule: rule.Name()}
		}
	}
	return Skip
}
