package cache

import (
	"sync/atomic"
	"time"
)

// MissReason says why a lookup did not produce an outcome.
type MissReason int

const (
	// MissAbsent means no entry was stored under the fingerprint.
	MissAbsent MissReason = iota
	// MissExpired means the entry was at least TTL old.
	MissExpired
	// MissUnreadable means the stored result could not be decoded.
	MissUnreadable
	// MissFailed means the backend returned an error.
	MissFailed

	missReasons
)

func (r MissReason) String() string {
	switch r {
	case MissAbsent:
		return "absent"
	case MissExpired:
		return "expired"
	case MissUnreadable:
		return "unreadable"
	case MissFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Hits   uint64
	Misses uint64
	// MissesBy breaks Misses down by reason.
	MissesBy    map[MissReason]uint64
	Writes      uint64
	Evictions   uint64
	LastUpdated time.Time
}

// HitRate returns hits over lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// StatsCollector counts cache activity. It is safe for concurrent use.
type StatsCollector struct {
	hits        atomic.Uint64
	misses      [missReasons]atomic.Uint64
	writes      atomic.Uint64
	evictions   atomic.Uint64
	lastUpdated atomic.Int64
}

// NewStatsCollector creates an empty collector.
func NewStatsCollector() *StatsCollector {
	c := &StatsCollector{}
	c.touch()
	return c
}

func (c *StatsCollector) RecordHit() {
	c.hits.Add(1)
	c.touch()
}

// RecordMiss counts a miss. Unknown reasons count as MissAbsent.
func (c *StatsCollector) RecordMiss(reason MissReason) {
	if reason < 0 || reason >= missReasons {
		reason = MissAbsent
	}
	c.misses[reason].Add(1)
	c.touch()
}

func (c *StatsCollector) RecordWrite() {
	c.writes.Add(1)
	c.touch()
}

func (c *StatsCollector) RecordEviction() {
	c.evictions.Add(1)
	c.touch()
}

// Snapshot returns the current counters.
func (c *StatsCollector) Snapshot() Stats {
	s := Stats{
		Hits:        c.hits.Load(),
		MissesBy:    make(map[MissReason]uint64, missReasons),
		Writes:      c.writes.Load(),
		Evictions:   c.evictions.Load(),
		LastUpdated: time.Unix(0, c.lastUpdated.Load()),
	}
	for r := MissReason(0); r < missReasons; r++ {
		n := c.misses[r].Load()
		s.Misses += n
		if n > 0 {
			s.MissesBy[r] = n
		}
	}
	return s
}

func (c *StatsCollector) touch() {
	c.lastUpdated.Store(time.Now().UnixNano())
}
