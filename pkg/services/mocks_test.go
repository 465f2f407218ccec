package services

import (
	"context"
	"sync"
	"time"

	"github.com/TFMV/fedquery/pkg/models"
)

// mockSource implements repositories.SourceClient
type mockSource struct {
	backend     models.BackendID
	executeFunc func(ctx context.Context, stmt models.SQLStatement) (*models.ResultSet, error)

	mu    sync.Mutex
	calls []models.SQLStatement
}

func (m *mockSource) Backend() models.BackendID {
	return m.backend
}

func (m *mockSource) Execute(ctx context.Context, stmt models.SQLStatement) (*models.ResultSet, error) {
	m.mu.Lock()
	m.calls = append(m.calls, stmt)
	m.mu.Unlock()
	return m.executeFunc(ctx, stmt)
}

func (m *mockSource) Calls() []models.SQLStatement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.SQLStatement(nil), m.calls...)
}

func returning(rs *models.ResultSet) func(context.Context, models.SQLStatement) (*models.ResultSet, error) {
	return func(context.Context, models.SQLStatement) (*models.ResultSet, error) {
		return rs, nil
	}
}

// mockGenerative implements generative.Service
type mockGenerative struct {
	generateFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (m *mockGenerative) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	return m.generateFunc(ctx, prompt, maxTokens)
}

func (m *mockGenerative) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

func replying(text string) *mockGenerative {
	return &mockGenerative{generateFunc: func(context.Context, string, int) (string, error) {
		return text, nil
	}}
}

// mockCache implements ResultCache
type mockCache struct {
	mu      sync.Mutex
	entries map[models.Fingerprint]*models.Outcome
	putErr  error
	puts    int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[models.Fingerprint]*models.Outcome)}
}

func (m *mockCache) Get(ctx context.Context, fp models.Fingerprint) (*models.Outcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.entries[fp]
	return o, ok
}

func (m *mockCache) Put(ctx context.Context, fp models.Fingerprint, text string, kind models.PlanKind, outcome *models.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	m.entries[fp] = outcome
	return nil
}

func rows(columns []string, rs ...models.Row) *models.ResultSet {
	if rs == nil {
		rs = []models.Row{}
	}
	return &models.ResultSet{Columns: columns, Rows: rs}
}

// recordingMetrics implements MetricsCollector and records counter calls.
type recordingMetrics struct {
	mu       sync.Mutex
	counters []string
}

func (m *recordingMetrics) IncrementCounter(name string, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := name
	for i := 0; i+1 < len(labels); i += 2 {
		entry += " " + labels[i] + "=" + labels[i+1]
	}
	m.counters = append(m.counters, entry)
}

func (m *recordingMetrics) RecordHistogram(string, float64, ...string) {}

func (m *recordingMetrics) RecordGauge(string, float64, ...string) {}

func (m *recordingMetrics) StartTimer(string, ...string) Timer {
	return nopTimer{start: time.Now()}
}

func (m *recordingMetrics) Counters() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.counters...)
}
