package classifier

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/sense/internal/event"
)

// ErrNotEvent is returned when an event-only node or lens is applied to a plain value.
var ErrNotEvent = errors.New("subject is not an event")

// Step is one extraction of a Lens with the description used in diagnostics.
type Step struct {
	Desc    string
	Extract func(v any) (any, error)
}

// Lens is an explicit chain of extractors. The zero Lens is the identity.
type Lens struct {
	steps []Step
}

func NewLens(desc string, extract func(any) (any, error)) Lens {
	return Lens{steps: []Step{{Desc: desc, Extract: extract}}}
}

// Compose returns a lens applying l then next.
func (l Lens) Compose(next Lens) Lens {
	steps := make([]Step, 0, len(l.steps)+len(next.steps))
	steps = append(steps, l.steps...)
	steps = append(steps, next.steps...)
	return Lens{steps: steps}
}

func (l Lens) IsIdentity() bool { return len(l.steps) == 0 }

func (l Lens) Apply(v any) (any, error) {
	for _, s := range l.steps {
		out, err := s.Extract(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Desc, err)
		}
		v = out
	}
	return v, nil
}

func (l Lens) String() string {
	if len(l.steps) == 0 {
		return "value"
	}
	parts := make([]string, len(l.steps))
	for i, s := range l.steps {
		parts[i] = s.Desc
	}
	return strings.Join(parts, ".")
}

func eventLens(desc string, get func(*event.Event) any) Lens {
	return NewLens(desc, func(v any) (any, error) {
		ev, ok := v.(*event.Event)
		if !ok {
			return nil, fmt.Errorf("%w: got %T", ErrNotEvent, v)
		}
		return get(ev), nil
	})
}

// Event field lenses.
var (
	ID         = eventLens("id", func(e *event.Event) any { return e.ID })
	Name       = eventLens("name", func(e *event.Event) any { return e.Name })
	Type       = eventLens("type", func(e *event.Event) any { return e.Type })
	Status     = eventLens("status", func(e *event.Event) any { return e.Status })
	StartTime  = eventLens("startTimestamp", func(e *event.Event) any { return e.StartTime })
	EndTime    = eventLens("endTimestamp", func(e *event.Event) any { return e.EndTime })
	ParentID   = eventLens("parentId", func(e *event.Event) any { return e.ParentID })
	Messages   = eventLens("messages", func(e *event.Event) any { return e.Messages() })
	References = eventLens("references", func(e *event.Event) any { return e.References() })
	Duration   = eventLens("duration", func(e *event.Event) any { return e.EndTime.Sub(e.StartTime) })
)

// Joined turns a []string into a single string separated by sep.
func Joined(sep string) Lens {
	return NewLens("joined", func(v any) (any, error) {
		parts, ok := v.([]string)
		if !ok {
			return nil, fmt.Errorf("joined: expected []string, got %T", v)
		}
		return strings.Join(parts, sep), nil
	})
}

// Size returns the length of a string or []string.
var Size = NewLens("size", func(v any) (any, error) {
	switch s := v.(type) {
	case string:
		return len(s), nil
	case []string:
		return len(s), nil
	}
	return nil, fmt.Errorf("size: unsupported %T", v)
})
