package classifier

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/sense/internal/event"
)

// TypeSupplier produces the EventType of an event accepted by a rule.
type TypeSupplier func(c *Context, ev *event.Event) (event.EventType, error)

// Const always yields the same type.
func Const(name string) TypeSupplier {
	t := event.EventType(name)
	return func(*Context, *event.Event) (event.EventType, error) { return t, nil }
}

// Rule maps the events accepted by Match to the type produced by Type.
// Rules are immutable and safe to share between goroutines.
type Rule struct {
	name  string
	typ   TypeSupplier
	match *Node
}

func NewRule(name string, typ TypeSupplier, match *Node) (*Rule, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("rule name cannot be blank")
	}
	if typ == nil {
		return nil, fmt.Errorf("rule %s: type supplier is required", name)
	}
	if match == nil {
		return nil, fmt.Errorf("rule %s: matcher is required", name)
	}
	return &Rule{name: name, typ: typ, match: match}, nil
}

func (r *Rule) Name() string { return r.name }

func (r *Rule) Match() *Node { return r.match }

// apply returns the type if the rule accepts ev; ok is false otherwise.
func (r *Rule) apply(c *Context, ev *event.Event) (t event.EventType, ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			t, ok, err = "", false, fmt.Errorf("panic: %v", p)
		}
	}()
	matched, err := Evaluate(r.match, ev, c)
	if err != nil || !matched {
		return "", false, err
	}
	t, err = r.typ(c, ev)
	if err != nil {
		return "", false, fmt.Errorf("type supplier: %w", err)
	}
	if t == "" {
		return "", false, errors.New("type supplier returned an empty type")
	}
	return t, true, nil
}

// SubstringBetween returns the part of s between the first start and the next end after it,
// or "" when either marker is missing. Handy in dynamic type suppliers.
func SubstringBetween(s, start, end string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return ""
	}
	rest := s[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		return ""
	}
	return rest[:j]
}
