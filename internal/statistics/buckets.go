package statistics

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/sense/internal/event"
	"github.com/gyaneshwarpardhi/sense/internal/metrics"
)

// ErrInvalidBuckets is returned for an empty, non-positive or duplicated set of tiers.
var ErrInvalidBuckets = errors.New("invalid statistic buckets")

// DefaultBuckets are used when the configuration names none.
var DefaultBuckets = []time.Duration{time.Second, time.Minute, time.Hour}

// series keeps the event counts of one type ordered by start time (unix nanoseconds).
type series struct {
	starts []int64
	n      map[int64]int
	total  int
}

func (s *series) add(start int64, n int) {
	if _, ok := s.n[start]; !ok {
		i, _ := slices.BinarySearch(s.starts, start)
		s.starts = slices.Insert(s.starts, i, start)
	}
	s.n[start] += n
	s.total += n
}

// counts maps an event type to its series.
type counts map[event.EventType]*series

func (c counts) add(t event.EventType, start int64, n int) {
	s, ok := c[t]
	if !ok {
		s = &series{n: make(map[int64]int)}
		c[t] = s
	}
	s.add(start, n)
}

func (c counts) merge(other counts) {
	for t, s := range other {
		for _, start := range s.starts {
			c.add(t, start, s.n[start])
		}
	}
}

// evict removes and returns every entry that started at or before end. Only the evicted
// prefix of each series is visited.
func (c counts) evict(end time.Time) counts {
	out := counts{}
	limit := end.UnixNano()
	for t, s := range c {
		i := sort.Search(len(s.starts), func(i int) bool { return s.starts[i] > limit })
		if i == 0 {
			continue
		}
		for _, start := range s.starts[:i] {
			n := s.n[start]
			out.add(t, start, n)
			delete(s.n, start)
			s.total -= n
		}
		s.starts = s.starts[i:]
		if len(s.starts) == 0 {
			delete(c, t)
		}
	}
	return out
}

type tier struct {
	duration time.Duration
	counts   counts
}

// Buckets keeps per-type event counts in tiers of increasing duration. An event lands in the
// smallest tier longer than its age; refresh moves expired entries up one tier at a time and
// drops what expires from the last one.
//
// Buckets is not safe for concurrent use; Update, Refresh and Stats must be serialized.
type Buckets struct {
	tiers []tier
}

func NewBuckets(durations []time.Duration) (*Buckets, error) {
	if len(durations) == 0 {
		return nil, fmt.Errorf("%w: at least one bucket is required", ErrInvalidBuckets)
	}
	sorted := slices.Clone(durations)
	slices.Sort(sorted)
	if sorted[0] <= 0 {
		return nil, fmt.Errorf("%w: buckets must be positive but got %s", ErrInvalidBuckets, sorted[0])
	}
	tiers := make([]tier, len(sorted))
	for i, d := range sorted {
		if i > 0 && sorted[i-1] == d {
			return nil, fmt.Errorf("%w: duplicate bucket %s", ErrInvalidBuckets, d)
		}
		tiers[i] = tier{duration: d, counts: counts{}}
	}
	return &Buckets{tiers: tiers}, nil
}

func (b *Buckets) Name() string { return "buckets" }

func (b *Buckets) Update(t event.EventType, ev *event.Event, observedAt time.Time) {
	delta := observedAt.Sub(ev.StartTime)
	for i := range b.tiers {
		if b.tiers[i].duration > delta {
			b.tiers[i].counts.add(t, ev.StartTime.UnixNano(), 1)
			return
		}
	}
	metrics.StatisticDropped.Inc()
	slog.Debug("event is outside of any bucket",
		"event", ev.ID, "start", ev.StartTime, "observed_at", observedAt,
		"last_bucket", b.tiers[len(b.tiers)-1].duration)
}

func (b *Buckets) Refresh(now time.Time) {
	var pending counts
	for i := range b.tiers {
		tr := &b.tiers[i]
		if pending != nil {
			tr.counts.merge(pending)
		}
		pending = tr.counts.evict(now.Add(-tr.duration))
	}
	// evictions from the last tier are discarded
}

// BucketStat is the total count of one type within a tier.
type BucketStat struct {
	Type  event.EventType `json:"type"`
	Count int             `json:"count"`
}

// TierStats is the snapshot of one tier.
type TierStats struct {
	Duration time.Duration `json:"-"`
	Bucket   string        `json:"bucket"`
	Stats    []BucketStat  `json:"stats"`
}

// Stats returns, per tier in ascending order, the retained count of each type sorted by type.
func (b *Buckets) Stats() []TierStats {
	out := make([]TierStats, len(b.tiers))
	for i, tr := range b.tiers {
		stats := make([]BucketStat, 0, len(tr.counts))
		for t, s := range tr.counts {
			if s.total > 0 {
				stats = append(stats, BucketStat{Type: t, Count: s.total})
			}
		}
		sort.Slice(stats, func(i, j int) bool {
			return strings.Compare(string(stats[i].Type), string(stats[j].Type)) < 0
		})
		out[i] = TierStats{Duration: tr.duration, Bucket: tr.duration.String(), Stats: stats}
	}
	return out
}
