package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/gyaneshwarpardhi/sense/internal/event"
)

// ErrNotFound is returned by a Store when no event has the requested id.
var ErrNotFound = errors.New("event not found")

// maxAncestry bounds the root walk so a cyclic parent chain cannot spin forever.
const maxAncestry = 1024

// Provider resolves events and their ancestry. A nil event with a nil error means "absent".
type Provider interface {
	FindEvent(ctx context.Context, id string) (*event.Event, error)
	FindParentFor(ctx context.Context, ev *event.Event) (*event.Event, error)
	FindRootFor(ctx context.Context, ev *event.Event) (*event.Event, error)
}

// Store is the raw lookup backing a Provider.
type Store interface {
	Get(ctx context.Context, id string) (*event.Event, error)
}

// Recorder is implemented by stores that can keep ingested events for later lookups.
type Recorder interface {
	Put(ctx context.Context, ev *event.Event) error
}

// findParent and findRoot implement the ancestry walk on top of a single-event lookup.
func findParent(ctx context.Context, find func(context.Context, string) (*event.Event, error), ev *event.Event) (*event.Event, error) {
	if !ev.HasParent() {
		return nil, nil
	}
	return find(ctx, ev.ParentID)
}

func findRoot(ctx context.Context, find func(context.Context, string) (*event.Event, error), ev *event.Event) (*event.Event, error) {
	if !ev.HasParent() {
		return nil, nil
	}
	current := ev
	for depth := 0; depth < maxAncestry; depth++ {
		parent, err := findParent(ctx, find, current)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			// Broken chain: no ancestor without a parent is reachable.
			return nil, nil
		}
		if !parent.HasParent() {
			return parent, nil
		}
		current = parent
	}
	return nil, fmt.Errorf("root lookup for %s: ancestry deeper than %d", ev.ID, maxAncestry)
}
