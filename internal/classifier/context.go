package classifier

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/gyaneshwarpardhi/sense/internal/event"
	"github.com/gyaneshwarpardhi/sense/internal/provider"
)

var (
	// ErrContextType is returned when a context entry does not hold the type its key promises.
	ErrContextType = errors.New("context value has unexpected type")
	// ErrNoRelated is returned by Context.Parent and Context.Root when the event has no such ancestor.
	ErrNoRelated = errors.New("related event not found")
)

type keyID struct {
	name string
	typ  reflect.Type
}

// Key identifies a typed entry of the per-event Context. Two keys are the same entry only if
// both name and type match.
type Key[T any] struct {
	id keyID
}

func NewKey[T any](name string) Key[T] {
	return Key[T]{id: keyID{name: name, typ: reflect.TypeFor[T]()}}
}

func (k Key[T]) String() string { return fmt.Sprintf("%s(%s)", k.id.name, k.id.typ) }

type entry struct {
	id    keyID
	value any
}

// Context is created for one classification pass and shared by every rule evaluated for that
// event. It is not safe for concurrent use.
type Context struct {
	ctx      context.Context
	provider provider.Provider
	entries  []entry
}

func newContext(ctx context.Context, p provider.Provider) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{ctx: ctx, provider: p}
}

// NewContext creates a standalone pass context, used by tests and tools evaluating nodes directly.
func NewContext(ctx context.Context, p provider.Provider) *Context {
	return newContext(ctx, p)
}

// Ctx returns the request context of the pass.
func (c *Context) Ctx() context.Context { return c.ctx }

func (c *Context) index(id keyID) int {
	for i := range c.entries {
		if c.entries[i].id == id {
			return i
		}
	}
	return -1
}

// Get returns the value stored under key.
func Get[T any](c *Context, key Key[T]) (T, bool, error) {
	var zero T
	i := c.index(key.id)
	if i < 0 {
		return zero, false, nil
	}
	v, ok := c.entries[i].value.(T)
	if !ok {
		return zero, false, fmt.Errorf("%w: %s holds %T", ErrContextType, key, c.entries[i].value)
	}
	return v, true, nil
}

// Set stores value under key, replacing any previous value.
func Set[T any](c *Context, key Key[T], value T) {
	if i := c.index(key.id); i >= 0 {
		c.entries[i].value = value
		return
	}
	c.entries = append(c.entries, entry{id: key.id, value: value})
}

// Remove deletes key and returns the value it held.
func Remove[T any](c *Context, key Key[T]) (T, bool, error) {
	v, ok, err := Get(c, key)
	if i := c.index(key.id); i >= 0 {
		c.entries = append(c.entries[:i], c.entries[i+1:]...)
	}
	return v, ok, err
}

func (c *Context) related(rel Relation, ev *event.Event) (*event.Event, error) {
	if c.provider == nil {
		return nil, fmt.Errorf("no event provider to resolve %s of %s", rel, ev.ID)
	}
	switch rel {
	case RelationParent:
		return c.provider.FindParentFor(c.ctx, ev)
	case RelationRoot:
		return c.provider.FindRootFor(c.ctx, ev)
	}
	return nil, fmt.Errorf("unknown relation %d", rel)
}

// Parent returns the parent of ev or ErrNoRelated.
func (c *Context) Parent(ev *event.Event) (*event.Event, error) {
	return c.mustRelated(RelationParent, ev)
}

// Root returns the root of ev or ErrNoRelated (also when ev is itself a root).
func (c *Context) Root(ev *event.Event) (*event.Event, error) {
	return c.mustRelated(RelationRoot, ev)
}

func (c *Context) mustRelated(rel Relation, ev *event.Event) (*event.Event, error) {
	r, err := c.related(rel, ev)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: no %s event for %s", ErrNoRelated, rel, ev.ID)
	}
	return r, nil
}
