package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/sense/internal/classifier"
	"github.com/gyaneshwarpardhi/sense/internal/config"
	"github.com/gyaneshwarpardhi/sense/internal/engine"
	"github.com/gyaneshwarpardhi/sense/internal/errsink"
	"github.com/gyaneshwarpardhi/sense/internal/event"
	"github.com/gyaneshwarpardhi/sense/internal/expectation"
	"github.com/gyaneshwarpardhi/sense/internal/provider"
	"github.com/gyaneshwarpardhi/sense/internal/statistics"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	eng          *engine.Engine
	buckets      *statistics.Buckets
	expectations *expectation.Engine
	cache        *provider.Cached
}

func newFixture(t *testing.T, conf config.EngineConf) *fixture {
	t.Helper()
	match, err := classifier.AllOf(func(b *classifier.Builder) {
		b.Field(classifier.Type, classifier.Equal("Test"))
	})
	require.NoError(t, err)
	rule, err := classifier.NewRule("tests", classifier.Const("TestEvent"), match)
	require.NoError(t, err)

	cache, err := provider.NewCached(provider.NewMemoryStore(), provider.CacheConf{})
	require.NoError(t, err)

	buckets, err := statistics.NewBuckets([]time.Duration{time.Second, time.Minute})
	require.NoError(t, err)
	exps := expectation.NewEngine(errsink.Log())

	ctx, cancel := context.WithCancel(context.Background())
	eng := engine.New(ctx, engine.Deps{
		Classifier: classifier.New(classifier.NewRegistry(rule), cache, errsink.Log()),
		Buckets:    buckets,
		Statistics: statistics.NewAggregated(errsink.Log(), buckets, exps),
		Recorder:   cache,
	}, conf)
	t.Cleanup(func() {
		cancel()
		eng.Shutdown()
	})
	return &fixture{eng: eng, buckets: buckets, expectations: exps, cache: cache}
}

func defaultConf() config.EngineConf {
	return config.EngineConf{ClassifyWorkers: 2, QueueDepth: 16, EventTimeoutMs: 1000}
}

func testEvent(id, typ string) *event.Event {
	return &event.Event{ID: id, Name: id, Type: typ, StartTime: t0, EndTime: t0.Add(time.Millisecond)}
}

func total(stats []statistics.TierStats) map[event.EventType]int {
	out := map[event.EventType]int{}
	for _, tier := range stats {
		for _, s := range tier.Stats {
			out[s.Type] += s.Count
		}
	}
	return out
}

func TestProcessSync(t *testing.T) {
	f := newFixture(t, defaultConf())
	ctx := context.Background()

	res, err := f.eng.ProcessSync(ctx, testEvent("e1", "Test"), t0)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, event.EventType("TestEvent"), res.Type)
	assert.Equal(t, "tests", res.Rule)
	assert.Equal(t, "e1", res.EventID)

	res, err = f.eng.ProcessSync(ctx, testEvent("e2", "Suite"), t0)
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Empty(t, res.Type)

	stats, err := f.eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[event.EventType]int{"TestEvent": 1}, total(stats))

	// ingested events become resolvable as parents
	got, err := f.cache.FindEvent(ctx, "e2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Suite", got.Type)
}

func TestAcceptedEventsReachExpectations(t *testing.T) {
	f := newFixture(t, defaultConf())
	ctx := context.Background()

	_, err := f.expectations.Submit(expectation.Request{Name: "two", Expected: map[event.EventType]int64{"TestEvent": 2}})
	require.NoError(t, err)

	for _, id := range []string{"a", "b"} {
		require.NoError(t, f.eng.OnData(ctx, testEvent(id, "Test"), t0))
	}
	require.NoError(t, f.expectations.AwaitTimeout(ctx, "two", 2*time.Second))
}

func TestOnTimeRefreshEvictsOldBuckets(t *testing.T) {
	f := newFixture(t, defaultConf())
	ctx := context.Background()

	_, err := f.eng.ProcessSync(ctx, testEvent("e1", "Test"), t0)
	require.NoError(t, err)

	f.eng.OnTimeRefresh(t0.Add(2 * time.Minute))

	// the snapshot is queued behind the refresh
	stats, err := f.eng.Stats(ctx)
	require.NoError(t, err)
	assert.Empty(t, total(stats))
}

func TestUpdatesDoNotRefresh(t *testing.T) {
	f := newFixture(t, defaultConf())
	ctx := context.Background()

	_, err := f.eng.ProcessSync(ctx, testEvent("e1", "Test"), t0)
	require.NoError(t, err)
	later := testEvent("e2", "Test")
	later.StartTime = t0.Add(2 * time.Minute)
	_, err = f.eng.ProcessSync(ctx, later, later.StartTime)
	require.NoError(t, err)

	stats, err := f.eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[event.EventType]int{"TestEvent": 2}, total(stats), "only the time refresh evicts")

	f.eng.OnTimeRefresh(later.StartTime)
	stats, err = f.eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[event.EventType]int{"TestEvent": 1}, total(stats))
}

func TestProcessAsync(t *testing.T) {
	f := newFixture(t, defaultConf())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.True(t, f.eng.ProcessAsync(testEvent("async", "Test"), t0))
	}
	assert.Eventually(t, func() bool {
		stats, err := f.eng.Stats(ctx)
		return err == nil && total(stats)["TestEvent"] == 5
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConcurrentIngestion(t *testing.T) {
	f := newFixture(t, config.EngineConf{ClassifyWorkers: 4, QueueDepth: 8, EventTimeoutMs: 5000})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.eng.OnData(ctx, testEvent("c", "Test"), t0))
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		stats, err := f.eng.Stats(ctx)
		return err == nil && total(stats)["TestEvent"] == 50
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStoppedEngineRejects(t *testing.T) {
	f := newFixture(t, defaultConf())
	f.eng.Shutdown()

	assert.False(t, f.eng.ProcessAsync(testEvent("late", "Test"), t0))
	assert.ErrorIs(t, f.eng.OnData(context.Background(), testEvent("late", "Test"), t0), engine.ErrStopped)
	_, err := f.eng.ProcessSync(context.Background(), testEvent("late", "Test"), t0)
	assert.ErrorIs(t, err, engine.ErrStopped)
	_, err = f.eng.Stats(context.Background())
	assert.ErrorIs(t, err, engine.ErrStopped)
}
