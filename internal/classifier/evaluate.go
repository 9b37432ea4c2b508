package classifier

import (
	"fmt"
	"log/slog"

	"github.com/gyaneshwarpardhi/sense/internal/event"
)

// Evaluate runs the predicate tree n against subject (an *event.Event at the root).
func Evaluate(n *Node, subject any, c *Context) (bool, error) {
	switch n.kind {
	case KindField:
		v, err := n.lens.Apply(subject)
		if err != nil {
			return false, err
		}
		ok, err := n.test(c, v)
		if err != nil {
			return false, fmt.Errorf("%s: %w", n, err)
		}
		trace(c, n, ok)
		return ok, nil

	case KindAllOf:
		for _, child := range n.children {
			ok, err := Evaluate(child, subject, c)
			if err != nil || !ok {
				return false, err // short-circuit
			}
		}
		return true, nil

	case KindAnyOf:
		for _, child := range n.children {
			ok, err := Evaluate(child, subject, c)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil // short-circuit
			}
		}
		return false, nil

	case KindNoneOf:
		for _, child := range n.children {
			ok, err := Evaluate(child, subject, c)
			if err != nil {
				return false, err
			}
			if ok {
				return false, nil
			}
		}
		return true, nil

	case KindRelated:
		rel, err := relatedOf(n.relation, subject, c)
		if err != nil || rel == nil {
			return false, err
		}
		ok, err := Evaluate(n.sub, rel, c)
		trace(c, n, ok)
		return ok, err

	case KindHasRelated:
		rel, err := relatedOf(n.relation, subject, c)
		if err != nil {
			return false, err
		}
		ok := (rel != nil) == n.mustExist
		trace(c, n, ok)
		return ok, nil

	case KindTransform:
		v, err := n.lens.Apply(subject)
		if err != nil {
			return false, err
		}
		return Evaluate(n.sub, v, c)
	}
	return false, fmt.Errorf("unknown node kind %s", n.kind)
}

func relatedOf(rel Relation, subject any, c *Context) (*event.Event, error) {
	ev, ok := subject.(*event.Event)
	if !ok {
		return nil, fmt.Errorf("%s lookup: %w: got %T", rel, ErrNotEvent, subject)
	}
	r, err := c.related(rel, ev)
	if err != nil {
		return nil, fmt.Errorf("%s lookup for %s: %w", rel, ev.ID, err)
	}
	return r, nil
}

// levelTrace sits below Debug; per-matcher logs are only useful when chasing a single rule.
const levelTrace = slog.LevelDebug - 4

func trace(c *Context, n *Node, ok bool) {
	if !slog.Default().Enabled(c.ctx, levelTrace) {
		return
	}
	slog.Log(c.ctx, levelTrace, "matcher evaluated", "matcher", n.String(), "accepted", ok)
}
