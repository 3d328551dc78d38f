package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/admissions-api/pkg/errors"
)

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	c.ttls[key] = ttl
	return nil
}

func TestDocumentCatalogCachesDocuments(t *testing.T) {
	f := newFixture(t)
	store := newMemCache()
	metrics := NewMetricsService()
	cache := NewCacheService(store, metrics, time.Minute, zap.NewNop(), true)
	catalog := NewDocumentCatalog(f.catalog, cache, zap.NewNop())
	ctx := context.Background()

	first, err := catalog.Documents(ctx, "proc-1")
	require.NoError(t, err)
	second, err := catalog.Documents(ctx, "proc-1")
	require.NoError(t, err)

	require.Equal(t, 1, f.catalog.listCalls)
	require.Equal(t, ids(first), ids(second))
	require.True(t, second[1].VacancyTypes.Contains("RACIAL_QUOTA"))
	require.False(t, second[1].VacancyTypes.Contains("BROAD_COMPETITION"))
	require.Equal(t, time.Minute, store.ttls["process:proc-1:documents"])
}

func TestDocumentCatalogLookups(t *testing.T) {
	f := newFixture(t)
	catalog := NewDocumentCatalog(f.catalog, nil, nil)
	ctx := context.Background()

	doc, err := catalog.Document(ctx, "proc-1", "doc-cv")
	require.NoError(t, err)
	require.Equal(t, "Curriculum vitae", doc.Name)

	_, err = catalog.Document(ctx, "proc-1", "doc-missing")
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	f.process.Active = false
	_, err = catalog.Process(ctx, "proc-1")
	require.ErrorIs(t, err, appErrors.ErrProcessNotFound)

	line, err := catalog.ResearchLine(ctx, "proc-1", "line-1")
	require.NoError(t, err)
	require.True(t, line.HasTutor("tutor-2"))

	_, err = catalog.ResearchLine(ctx, "proc-1", "line-404")
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestMetricsServiceExposesWorkflowCounters(t *testing.T) {
	metrics := NewMetricsService()
	metrics.RecordGateRejection(appErrors.ErrWindowClosed.Code)
	metrics.ObserveSweep(3, 20*time.Millisecond)
	metrics.RecordCleanupFailure()
	metrics.ObserveCacheOperation("get", "miss", time.Millisecond)

	families, err := metrics.registry.Gather()
	require.NoError(t, err)
	found := map[string]bool{}
	for _, family := range families {
		found[family.GetName()] = true
	}
	require.True(t, found["admission_gate_rejections_total"])
	require.True(t, found["admission_sweep_rejected_total"])
	require.True(t, found["storage_cleanup_failures_total"])
	require.True(t, found["admission_catalog_cache_operation_seconds"])
	require.True(t, found["go_goroutines"])

	var nilMetrics *MetricsService
	require.NotPanics(t, func() { nilMetrics.RecordGateRejection("X") })
}
