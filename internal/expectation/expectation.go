// Package expectation tracks named count thresholds over classified events and notifies
// listeners once every threshold of an expectation is reached.
package expectation

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/sense/internal/event"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrDuplicateName   = errors.New("duplicated expectation name")
	ErrUnknownName     = errors.New("unknown expectation name")
	ErrTimeout         = errors.New("expectation timed out")
)

// Request asks to be notified once Expected[t] more events of every type t are observed.
type Request struct {
	Name        string
	Expected    map[event.EventType]int64
	Description string
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name cannot be blank", ErrInvalidArgument)
	}
	if len(r.Expected) == 0 {
		return fmt.Errorf("%w: at least one type must be expected", ErrInvalidArgument)
	}
	for t, n := range r.Expected {
		if t == "" {
			return fmt.Errorf("%w: event type cannot be blank", ErrInvalidArgument)
		}
		if n <= 0 {
			return fmt.Errorf("%w: positive number must be expected for type %s but was %d", ErrInvalidArgument, t, n)
		}
	}
	return nil
}

// Info is sent to listeners when an expectation is registered.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Notification is sent to listeners when an expectation is satisfied.
type Notification struct {
	Name            string                    `json:"name"`
	SourceTimestamp time.Time                 `json:"source_timestamp"`
	AchievedCounts  map[event.EventType]int64 `json:"achieved_counts"`
	Description     string                    `json:"description,omitempty"`
}

// Listener receives the lifecycle of expectations. Errors are reported and do not affect
// other listeners.
type Listener interface {
	NotificationRegistered(info Info) error
	Notify(n Notification) error
}

type expectation struct {
	name        string
	description string
	target      map[event.EventType]int64 // absolute counter values
	requested   map[event.EventType]int64
	achieved    map[event.EventType]struct{}
	callbacks   []func()
	announced   chan struct{} // closed once listeners saw the registration
}

func newExpectation(r Request, target map[event.EventType]int64) *expectation {
	return &expectation{
		name:        r.Name,
		description: r.Description,
		target:      target,
		requested:   maps.Clone(r.Expected),
		achieved:    make(map[event.EventType]struct{}, len(target)),
		announced:   make(chan struct{}),
	}
}

// observe records the counter value of t and reports whether every type is achieved.
func (e *expectation) observe(t event.EventType, count int64) bool {
	if want, ok := e.target[t]; ok && count >= want {
		e.achieved[t] = struct{}{}
	}
	return e.done()
}

func (e *expectation) done() bool {
	return len(e.achieved) == len(e.target)
}

func (e *expectation) info() Info {
	return Info{Name: e.name, Description: e.description}
}
