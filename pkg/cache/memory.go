package cache

import (
	"container/list"
	"context"
	"sync"

	"github.com/TFMV/fedquery/pkg/models"
)

// MemoryBackend keeps entries in process memory, evicting the least recently
// used entry once maxEntries is reached.
type MemoryBackend struct {
	mu         sync.Mutex
	entries    map[models.Fingerprint]*list.Element
	order      *list.List
	maxEntries int
	stats      *StatsCollector
}

// NewMemoryBackend creates a memory backend. maxEntries <= 0 disables eviction.
// stats may be nil.
func NewMemoryBackend(maxEntries int, stats *StatsCollector) *MemoryBackend {
	return &MemoryBackend{
		entries:    make(map[models.Fingerprint]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		stats:      stats,
	}
}

// Load returns a copy of the stored entry.
func (m *MemoryBackend) Load(ctx context.Context, fp models.Fingerprint) (*models.CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[fp]
	if !ok {
		return nil, false, nil
	}
	m.order.MoveToFront(el)
	return copyEntry(el.Value.(*models.CacheEntry)), true, nil
}

// Save upserts entry.
func (m *MemoryBackend) Save(ctx context.Context, entry *models.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[entry.Fingerprint]; ok {
		el.Value = copyEntry(entry)
		m.order.MoveToFront(el)
		return nil
	}

	if m.maxEntries > 0 && m.order.Len() >= m.maxEntries {
		m.evictOldest()
	}
	m.entries[entry.Fingerprint] = m.order.PushFront(copyEntry(entry))
	return nil
}

// Clear removes all entries.
func (m *MemoryBackend) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[models.Fingerprint]*list.Element)
	m.order.Init()
	return nil
}

// Close releases any resources held by the cache
func (m *MemoryBackend) Close() error {
	return m.Clear(context.Background())
}

// Len returns the number of stored entries.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

func (m *MemoryBackend) evictOldest() {
	el := m.order.Back()
	if el == nil {
		return
	}
	m.order.Remove(el)
	delete(m.entries, el.Value.(*models.CacheEntry).Fingerprint)
	if m.stats != nil {
		m.stats.RecordEviction()
	}
}

func copyEntry(e *models.CacheEntry) *models.CacheEntry {
	cp := *e
	cp.Result = append([]byte(nil), e.Result...)
	return &cp
}
