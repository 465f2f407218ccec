// Package cache stores resolved questions keyed by their fingerprint and
// decides when a stored resolution is too old to serve.
package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/fedquery/pkg/models"
)

// TimestampLayout is the format CreatedAt is written in.
const TimestampLayout = time.RFC3339Nano

// Backend is raw fingerprint-keyed storage. It applies no expiry policy.
type Backend interface {
	// Load returns the entry for fp. ok is false when nothing is stored.
	Load(ctx context.Context, fp models.Fingerprint) (entry *models.CacheEntry, ok bool, err error)
	// Save upserts entry, replacing any previous entry with the same fingerprint.
	Save(ctx context.Context, entry *models.CacheEntry) error
	// Clear removes all entries.
	Clear(ctx context.Context) error
	// Close releases any resources held by the backend.
	Close() error
}

// QueryCache applies the TTL policy and outcome serialization on top of a
// Backend. It is safe for concurrent use if the Backend is.
type QueryCache struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	stats   *StatsCollector
	logger  zerolog.Logger
}

// NewQueryCache wraps backend. A nil cfg uses DefaultConfig and a nil stats
// creates a fresh collector.
func NewQueryCache(backend Backend, cfg *Config, stats *StatsCollector, logger zerolog.Logger) *QueryCache {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if stats == nil {
		stats = NewStatsCollector()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		now:     time.Now,
		stats:   stats,
		logger:  logger.With().Str("component", "query_cache").Logger(),
	}
}

// SetClock replaces the time source.
func (c *QueryCache) SetClock(now func() time.Time) {
	c.now = now
}

// TTL returns the configured time-to-live.
func (c *QueryCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the stored outcome for fp. Entries whose timestamp parses and is
// at least TTL old are a miss; entries with an unreadable timestamp are served.
// Backend and decode failures are logged and reported as a miss.
func (c *QueryCache) Get(ctx context.Context, fp models.Fingerprint) (*models.Outcome, bool) {
	entry, ok, err := c.backend.Load(ctx, fp)
	if err != nil {
		c.logger.Warn().Err(err).Str("fingerprint", string(fp)).Msg("Cache read failed")
		c.stats.RecordMiss(MissFailed)
		return nil, false
	}
	if !ok || entry == nil {
		c.stats.RecordMiss(MissAbsent)
		return nil, false
	}

	if Expired(entry.CreatedAt, c.now(), c.ttl) {
		c.logger.Debug().Str("fingerprint", string(fp)).Str("created_at", entry.CreatedAt).Msg("Cache entry expired")
		c.stats.RecordMiss(MissExpired)
		return nil, false
	}

	outcome, err := models.DecodeOutcome(entry.Result)
	if err != nil {
		c.logger.Warn().Err(err).Str("fingerprint", string(fp)).Msg("Cache entry unreadable")
		c.stats.RecordMiss(MissUnreadable)
		return nil, false
	}

	c.stats.RecordHit()
	return outcome, true
}

// Put stores outcome under fp, stamped with the current time.
func (c *QueryCache) Put(ctx context.Context, fp models.Fingerprint, text string, kind models.PlanKind, outcome *models.Outcome) error {
	data, err := models.EncodeOutcome(outcome)
	if err != nil {
		return err
	}

	entry := &models.CacheEntry{
		Fingerprint: fp,
		QueryText:   text,
		PlanKind:    kind,
		Result:      data,
		CreatedAt:   c.now().UTC().Format(TimestampLayout),
	}
	if err := c.backend.Save(ctx, entry); err != nil {
		return err
	}
	c.stats.RecordWrite()
	return nil
}

// Clear removes every entry.
func (c *QueryCache) Clear(ctx context.Context) error {
	if err := c.backend.Clear(ctx); err != nil {
		return err
	}
	c.logger.Info().Msg("Cache cleared")
	return nil
}

// Stats returns hit/miss statistics.
func (c *QueryCache) Stats() Stats {
	return c.stats.Snapshot()
}

// Close closes the backend.
func (c *QueryCache) Close() error {
	return c.backend.Close()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a CreatedAt value. Layouts without a zone are read as
// UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Expired reports whether an entry created at createdAt is at least ttl old.
// An unparseable timestamp never expires.
func Expired(createdAt string, now time.Time, ttl time.Duration) bool {
	created, ok := ParseTimestamp(createdAt)
	if !ok {
		return false
	}
	return now.Sub(created) >= ttl
}
