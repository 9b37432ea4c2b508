package classifier

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	ErrUnknownRule = errors.New("unknown rule handle")
	ErrStartupRule = errors.New("startup rules cannot be unregistered")
)

// Handle identifies a rule registered at runtime.
type Handle string

func newHandle(name string) Handle {
	return Handle(name + "#" + uuid.NewString())
}

// Snapshot is an immutable view of the active rules in evaluation order.
type Snapshot struct {
	Version uint64
	Rules   []*Rule
}

// RuleInfo describes one registered rule.
type RuleInfo struct {
	Name    string `json:"name"`
	Handle  Handle `json:"handle,omitempty"`
	Startup bool   `json:"startup"`
}

type registered struct {
	rule   *Rule
	handle Handle
}

// Registry holds the active rule set. Startup rules come from configuration and are replaced
// as a whole on reload; runtime rules are added and removed one by one and evaluated after them.
// Mutations are serialized by one mutex and publish a new Snapshot; readers never lock.
type Registry struct {
	mu      sync.Mutex
	startup []*Rule
	runtime []registered
	version uint64
	current atomic.Pointer[Snapshot]
}

func NewRegistry(startup ...*Rule) *Registry {
	r := &Registry{startup: append([]*Rule(nil), startup...)}
	r.publish()
	return r
}

// publish must be called with mu held (or before the registry is shared).
func (r *Registry) publish() {
	r.version++
	rules := make([]*Rule, 0, len(r.startup)+len(r.runtime))
	rules = append(rules, r.startup...)
	for _, rt := range r.runtime {
		rules = append(rules, rt.rule)
	}
	r.current.Store(&Snapshot{Version: r.version, Rules: rules})
}

// Snapshot returns the rule set to use for one classification pass.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Register appends a runtime rule and returns its handle.
func (r *Registry) Register(rule *Rule) (Handle, error) {
	if rule == nil {
		return "", errors.New("nil rule")
	}
	h := newHandle(rule.Name())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runtime = append(r.runtime, registered{rule: rule, handle: h})
	r.publish()
	return h, nil
}

// Unregister removes the runtime rule registered under h.
func (r *Registry) Unregister(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rt := range r.runtime {
		if rt.handle == h {
			r.runtime = append(r.runtime[:i:i], r.runtime[i+1:]...)
			r.publish()
			return nil
		}
	}
	for _, rule := range r.startup {
		if Handle(rule.Name()) == h {
			return fmt.Errorf("%s: %w", h, ErrStartupRule)
		}
	}
	return fmt.Errorf("%s: %w", h, ErrUnknownRule)
}

// ReplaceStartup swaps the startup rules, keeping runtime registrations.
func (r *Registry) ReplaceStartup(rules []*Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startup = append([]*Rule(nil), rules...)
	r.publish()
}

// List describes the registered rules in evaluation order.
func (r *Registry) List() []RuleInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RuleInfo, 0, len(r.startup)+len(r.runtime))
	for _, rule := range r.startup {
		out = append(out, RuleInfo{Name: rule.Name(), Startup: true})
	}
	for _, rt := range r.runtime {
		out = append(out, RuleInfo{Name: rt.rule.Name(), Handle: rt.handle})
	}
	return out
}
