package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flanksource/lintsvc/internal/db"
	"github.com/flanksource/lintsvc/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "cache_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return New(database)
}

func TestGenerateContentHashIsStableAndSensitiveToInput(t *testing.T) {
	a := GenerateContentHash([]byte("hello"))
	b := GenerateContentHash([]byte("hello"))
	c := GenerateContentHash([]byte("world"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestGenerateOptionsHashIsOrderIndependent(t *testing.T) {
	a := GenerateOptionsHash(models.Options{ExcludePatterns: []string{"b", "a"}})
	b := GenerateOptionsHash(models.Options{ExcludePatterns: []string{"a", "b"}})
	assert.Equal(t, a, b)
}

func TestSetThenGetRoundTrips(t *testing.T) {
	svc := newTestService(t)
	result := models.ExecutionResult{Success: true, ExitCode: 0, FileCount: 1}

	require.NoError(t, svc.Set("hash1", "eslint", models.FormatJSON, "opt1", result, models.CacheStatusSuccess, "", 0))

	got := svc.Get("hash1", "eslint", models.FormatJSON, "opt1")
	require.NotNil(t, got)
	assert.Equal(t, result.Success, got.Success)
	assert.Equal(t, result.FileCount, got.FileCount)
}

func TestGetMissIncrementsMissCounter(t *testing.T) {
	svc := newTestService(t)
	svc.ResetStats()

	got := svc.Get("nope", "eslint", models.FormatJSON, "nope")
	assert.Nil(t, got)

	stats := svc.GetHitMissStats()
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestGetHitIncrementsHitCounter(t *testing.T) {
	svc := newTestService(t)
	svc.ResetStats()
	require.NoError(t, svc.Set("h", "ruff", models.FormatJSON, "o", models.ExecutionResult{}, models.CacheStatusSuccess, "", 0))

	_ = svc.Get("h", "ruff", models.FormatJSON, "o")

	stats := svc.GetHitMissStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(0), stats.Misses)
}

func TestExpiredEntryIsInvisible(t *testing.T) {
	svc := newTestService(t)

	// ttlHours negative/zero falls back to DefaultTTL, so an already-past
	// expiry can't be requested directly: use a tiny positive TTL
	// (about 1ms) and sleep past it.
	require.NoError(t, svc.Set("h2", "ruff", models.FormatJSON, "o2", models.ExecutionResult{}, models.CacheStatusSuccess, "", 0.0000003))
	time.Sleep(5 * time.Millisecond)

	got := svc.Get("h2", "ruff", models.FormatJSON, "o2")
	assert.Nil(t, got)
}

func TestInvalidateNarrowScope(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Set("h3", "ruff", models.FormatJSON, "o3", models.ExecutionResult{}, models.CacheStatusSuccess, "", 0))
	require.NoError(t, svc.Set("h4", "eslint", models.FormatJSON, "o4", models.ExecutionResult{}, models.CacheStatusSuccess, "", 0))

	require.NoError(t, svc.Invalidate("h3", ""))

	assert.Nil(t, svc.Get("h3", "ruff", models.FormatJSON, "o3"))
	assert.NotNil(t, svc.Get("h4", "eslint", models.FormatJSON, "o4"))
}

func TestInvalidateBroadScopeClearsEverything(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Set("h5", "ruff", models.FormatJSON, "o5", models.ExecutionResult{}, models.CacheStatusSuccess, "", 0))
	require.NoError(t, svc.Set("h6", "eslint", models.FormatJSON, "o6", models.ExecutionResult{}, models.CacheStatusSuccess, "", 0))

	require.NoError(t, svc.Invalidate("", ""))

	assert.Nil(t, svc.Get("h5", "ruff", models.FormatJSON, "o5"))
	assert.Nil(t, svc.Get("h6", "eslint", models.FormatJSON, "o6"))
}

func TestCleanupRemovesExpiredEntriesOnly(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Set("fresh", "ruff", models.FormatJSON, "o", models.ExecutionResult{}, models.CacheStatusSuccess, "", 0))
	require.NoError(t, svc.Set("stale", "ruff", models.FormatJSON, "o", models.ExecutionResult{}, models.CacheStatusSuccess, "", 0.0000003))
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, svc.Cleanup())

	stats := svc.GetStats()
	assert.Equal(t, int64(1), stats.TotalEntries)
}

func TestGenerateCacheKeyFormat(t *testing.T) {
	key := GenerateCacheKey("abc123", "eslint", models.FormatJSON, "def456")
	assert.Equal(t, "eslint:json:abc123:def456", key)
}
