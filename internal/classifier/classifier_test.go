package classifier_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/sense/internal/classifier"
	"github.com/gyaneshwarpardhi/sense/internal/errsink"
	"github.com/gyaneshwarpardhi/sense/internal/event"
	"github.com/gyaneshwarpardhi/sense/internal/provider"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func makeEvent(id, name, typ, parent string) *event.Event {
	return &event.Event{
		ID:        id,
		Name:      name,
		Type:      typ,
		StartTime: t0,
		EndTime:   t0.Add(250 * time.Millisecond),
		Status:    event.StatusSuccess,
		ParentID:  parent,
	}
}

// tree: root <- suite <- test
func testProvider(t *testing.T) (*provider.Cached, map[string]*event.Event) {
	t.Helper()
	evs := map[string]*event.Event{
		"root":  makeEvent("root", "Run", "Root", ""),
		"suite": makeEvent("suite", "Suite A", "Suite", "root"),
		"test":  makeEvent("test", "TestLogin", "Test", "suite"),
	}
	store := provider.NewMemoryStore(evs["root"], evs["suite"], evs["test"])
	p, err := provider.NewCached(store, provider.CacheConf{})
	require.NoError(t, err)
	return p, evs
}

type recordingSink struct {
	mu      sync.Mutex
	sources []string
	errs    []error
}

func (s *recordingSink) Report(_, source string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append(s.sources, source)
	s.errs = append(s.errs, err)
}

func mustRule(t *testing.T, name string, typ classifier.TypeSupplier, build func(*classifier.Builder)) *classifier.Rule {
	t.Helper()
	match, err := classifier.AllOf(build)
	require.NoError(t, err)
	r, err := classifier.NewRule(name, typ, match)
	require.NoError(t, err)
	return r
}

func TestEmptyCompositeFails(t *testing.T) {
	for name, build := range map[string]func(func(*classifier.Builder)) (*classifier.Node, error){
		"allOf":  classifier.AllOf,
		"anyOf":  classifier.AnyOf,
		"noneOf": classifier.NoneOf,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := build(func(*classifier.Builder) {})
			assert.ErrorIs(t, err, classifier.ErrEmptyComposite)
		})
	}

	_, err := classifier.NewAnyOf()
	assert.ErrorIs(t, err, classifier.ErrEmptyComposite)

	// an empty nested combinator poisons the enclosing builder
	_, err = classifier.AllOf(func(b *classifier.Builder) {
		b.Field(classifier.Name, classifier.Equal("x"))
		b.FieldAnyOf(classifier.Name, func(*classifier.Builder) {})
	})
	assert.ErrorIs(t, err, classifier.ErrEmptyComposite)
}

func TestProcess_FirstMatchWins(t *testing.T) {
	p, evs := testProvider(t)
	reg := classifier.NewRegistry(
		mustRule(t, "suites", classifier.Const("SuiteEvent"), func(b *classifier.Builder) {
			b.Field(classifier.Type, classifier.Equal("Suite"))
		}),
		mustRule(t, "any-child", classifier.Const("Child"), func(b *classifier.Builder) {
			b.HasParent()
		}),
		mustRule(t, "tests", classifier.Const("TestEvent"), func(b *classifier.Builder) {
			b.Field(classifier.Type, classifier.Equal("Test"))
		}),
	)
	c := classifier.New(reg, p, &recordingSink{})

	res := c.Process(context.Background(), evs["suite"])
	assert.Equal(t, classifier.Result{Accepted: true, Type: "SuiteEvent", Rule: "suites"}, res)

	// "tests" would match too but "any-child" comes first
	res = c.Process(context.Background(), evs["test"])
	assert.Equal(t, event.EventType("Child"), res.Type)

	res = c.Process(context.Background(), evs["root"])
	assert.Equal(t, classifier.Skip, res)
}

func TestProcess_NameAllOf(t *testing.T) {
	p, _ := testProvider(t)
	rule := mustRule(t, "t-names", classifier.Const("T"), func(b *classifier.Builder) {
		b.FieldAllOf(classifier.Name, func(v *classifier.Builder) {
			v.Match(classifier.StartsWith("T"))
			v.Match(classifier.EndsWith("t"))
		})
	})
	c := classifier.New(classifier.NewRegistry(rule), p, &recordingSink{})

	assert.False(t, c.Process(context.Background(), makeEvent("e1", "Test1", "Test", "")).Accepted)
	assert.True(t, c.Process(context.Background(), makeEvent("e2", "Test", "Test", "")).Accepted)
}

func TestHasRelated(t *testing.T) {
	p, evs := testProvider(t)
	noParent, err := classifier.AllOf(func(b *classifier.Builder) { b.DoesNotHaveParent() })
	require.NoError(t, err)
	isRoot, err := classifier.AllOf(func(b *classifier.Builder) { b.IsRoot() })
	require.NoError(t, err)

	cases := []struct {
		name string
		node *classifier.Node
		ev   *event.Event
		want bool
	}{
		{"no parent on root event", noParent, evs["root"], true},
		{"no parent on child event", noParent, evs["suite"], false},
		{"is root on root event", isRoot, evs["root"], true},
		{"is root on nested event", isRoot, evs["test"], false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := classifier.Evaluate(tc.node, tc.ev, classifier.NewContext(context.Background(), p))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRelatedMatch(t *testing.T) {
	p, evs := testProvider(t)
	node, err := classifier.AllOf(func(b *classifier.Builder) {
		b.Parent(func(pb *classifier.Builder) {
			pb.Field(classifier.Type, classifier.Equal("Suite"))
		})
		b.Root(func(rb *classifier.Builder) {
			rb.Field(classifier.Name, classifier.Equal("Run"))
		})
	})
	require.NoError(t, err)

	pass := classifier.NewContext(context.Background(), p)
	ok, err := classifier.Evaluate(node, evs["test"], pass)
	require.NoError(t, err)
	assert.True(t, ok)

	// the suite's root is also its parent; parent type is Root, not Suite
	ok, err = classifier.Evaluate(node, evs["suite"], pass)
	require.NoError(t, err)
	assert.False(t, ok)

	// absent related event: false, not an error
	ok, err = classifier.Evaluate(node, evs["root"], pass)
	require.NoError(t, err)
	assert.False(t, ok)

	root, err := pass.Root(evs["test"])
	require.NoError(t, err)
	assert.Equal(t, "root", root.ID)

	_, err = pass.Root(evs["root"])
	assert.ErrorIs(t, err, classifier.ErrNoRelated)
}

func TestShortCircuit(t *testing.T) {
	calls := 0
	counting := classifier.Func("counting", func(*classifier.Context, any) (bool, error) {
		calls++
		return true, nil
	})

	anyOf, err := classifier.NewAnyOf(classifier.Equal("a"), counting)
	require.NoError(t, err)
	ok, err := classifier.Evaluate(anyOf, "a", classifier.NewContext(context.Background(), nil))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, calls)

	allOf, err := classifier.NewAllOf(classifier.Equal("b"), counting)
	require.NoError(t, err)
	ok, err = classifier.Evaluate(allOf, "a", classifier.NewContext(context.Background(), nil))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, calls)

	noneOf, err := classifier.NewNoneOf(classifier.Equal("a"), counting)
	require.NoError(t, err)
	ok, err = classifier.Evaluate(noneOf, "a", classifier.NewContext(context.Background(), nil))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, calls)
}

func TestProcess_IsolatesFailingRules(t *testing.T) {
	p, evs := testProvider(t)
	boom := errors.New("boom")
	failing := mustRule(t, "failing", classifier.Const("Never"), func(b *classifier.Builder) {
		b.Match(classifier.Func("fails", func(*classifier.Context, any) (bool, error) { return false, boom }))
	})
	panicking := mustRule(t, "panicking", classifier.Const("Never"), func(b *classifier.Builder) {
		b.Match(classifier.Func("panics", func(*classifier.Context, any) (bool, error) { panic("bad matcher") }))
	})
	ok := mustRule(t, "ok", classifier.Const("Fine"), func(b *classifier.Builder) {
		b.Field(classifier.ID, classifier.Equal("test"))
	})
	sink := &recordingSink{}
	c := classifier.New(classifier.NewRegistry(failing, panicking, ok), p, sink)

	res := c.Process(context.Background(), evs["test"])
	assert.Equal(t, event.EventType("Fine"), res.Type)
	assert.Equal(t, []string{"failing", "panicking"}, sink.sources)
	assert.ErrorIs(t, sink.errs[0], boom)

	// every rule failing yields Skip
	c = classifier.New(classifier.NewRegistry(failing, panicking), p, sink)
	assert.Equal(t, classifier.Skip, c.Process(context.Background(), evs["test"]))
}

func TestDynamicType(t *testing.T) {
	p, evs := testProvider(t)
	dynamic := func(_ *classifier.Context, ev *event.Event) (event.EventType, error) {
		return event.EventType("Test:" + classifier.SubstringBetween(ev.Name, "Test", "")), nil
	}
	rule := mustRule(t, "by-name", dynamic, func(b *classifier.Builder) {
		b.Field(classifier.Name, classifier.StartsWith("Test"))
	})
	c := classifier.New(classifier.NewRegistry(rule), p, &recordingSink{})
	assert.Equal(t, event.EventType("Test:"), c.Process(context.Background(), evs["test"]).Type)

	assert.Equal(t, "Login", classifier.SubstringBetween("TestLogin[1]", "Test", "["))
	assert.Equal(t, "", classifier.SubstringBetween("Suite", "Test", "["))
}

func TestContextSharedAcrossRules(t *testing.T) {
	p, evs := testProvider(t)
	seen := classifier.NewKey[int]("seen")
	writer := mustRule(t, "writer", classifier.Const("Never"), func(b *classifier.Builder) {
		b.Match(classifier.Func("mark", func(c *classifier.Context, _ any) (bool, error) {
			classifier.Set(c, seen, 42)
			return false, nil
		}))
	})
	reader := mustRule(t, "reader", classifier.Const("Marked"), func(b *classifier.Builder) {
		b.Match(classifier.Func("check", func(c *classifier.Context, _ any) (bool, error) {
			v, ok, err := classifier.Get(c, seen)
			return ok && v == 42, err
		}))
	})
	c := classifier.New(classifier.NewRegistry(writer, reader), p, &recordingSink{})
	assert.True(t, c.Process(context.Background(), evs["test"]).Accepted)

	// a fresh pass starts with an empty context
	only := classifier.New(classifier.NewRegistry(reader), p, &recordingSink{})
	assert.False(t, only.Process(context.Background(), evs["test"]).Accepted)
}

func TestContextKeys(t *testing.T) {
	c := classifier.NewContext(context.Background(), nil)
	intKey := classifier.NewKey[int]("k")
	strKey := classifier.NewKey[string]("k")

	classifier.Set(c, intKey, 1)
	classifier.Set(c, strKey, "one")

	i, ok, err := classifier.Get(c, intKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	s, ok, err := classifier.Remove(c, strKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "one", s)

	_, ok, err = classifier.Get(c, strKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry(t *testing.T) {
	startup := mustRule(t, "startup", classifier.Const("A"), func(b *classifier.Builder) { b.HasParent() })
	reg := classifier.NewRegistry(startup)
	first := reg.Snapshot()

	runtime := mustRule(t, "runtime", classifier.Const("B"), func(b *classifier.Builder) { b.IsRoot() })
	h, err := reg.Register(runtime)
	require.NoError(t, err)
	assert.Contains(t, string(h), "runtime#")

	snap := reg.Snapshot()
	assert.Greater(t, snap.Version, first.Version)
	require.Len(t, snap.Rules, 2)
	assert.Equal(t, "runtime", snap.Rules[1].Name())
	// published snapshots are never mutated
	assert.Len(t, first.Rules, 1)

	assert.ErrorIs(t, reg.Unregister("startup"), classifier.ErrStartupRule)
	assert.ErrorIs(t, reg.Unregister("nope#1"), classifier.ErrUnknownRule)

	reg.ReplaceStartup(nil)
	infos := reg.List()
	require.Len(t, infos, 1)
	assert.Equal(t, h, infos[0].Handle)

	require.NoError(t, reg.Unregister(h))
	assert.Empty(t, reg.Snapshot().Rules)
	assert.ErrorIs(t, reg.Unregister(h), classifier.ErrUnknownRule)
}

func TestNewRuleValidation(t *testing.T) {
	match := classifier.Equal("x")
	_, err := classifier.NewRule(" ", classifier.Const("A"), match)
	assert.Error(t, err)
	_, err = classifier.NewRule("r", nil, match)
	assert.Error(t, err)
	_, err = classifier.NewRule("r", classifier.Const("A"), nil)
	assert.Error(t, err)
}

var _ errsink.Sink = (*recordingSink)(nil)
