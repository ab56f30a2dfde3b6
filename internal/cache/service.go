// Package cache is the Cache Service: content-addressed, two-tier
// (in-process map plus the persistent lint_results table) storage for
// linter results, keyed by {linter}:{format}:{contentHash}:{optionsHash}
// with TTL-based expiry.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/flanksource/commons/logger"
	"github.com/flanksource/lintsvc/internal/db"
	"github.com/flanksource/lintsvc/internal/models"
)

// DefaultTTL is the entry lifetime used when callers don't specify one.
const DefaultTTL = 24 * time.Hour

// WarmConfig is one item handed to WarmCache.
type WarmConfig struct {
	Content []byte
	Linter  string
	Format  models.Format
	Options models.Options
}

// Stats mirrors getStats()'s response shape.
type Stats struct {
	TotalEntries   int64   `json:"total_entries"`
	HitRatePercent float64 `json:"hit_rate_percentage"`
	SizeMB         float64 `json:"size_mb"`
	ExpiredEntries int64   `json:"expired_entries"`
}

// HitMissStats mirrors getHitMissStats()'s response shape.
type HitMissStats struct {
	Hits   int64   `json:"hits"`
	Misses int64   `json:"misses"`
	Rate   float64 `json:"rate"`
}

type memEntry struct {
	result    models.ExecutionResult
	status    models.CacheStatus
	expiresAt time.Time
}

// Service is the Cache Service. The persistent layer (via *db.DB) is
// authoritative; the in-process map only ever serves entries it knows
// have not expired.
type Service struct {
	database *db.DB

	mu  sync.RWMutex
	mem map[string]memEntry

	hits   int64
	misses int64

	cleanupStop chan struct{}
}

// New builds a Service backed by database.
func New(database *db.DB) *Service {
	return &Service{
		database: database,
		mem:      make(map[string]memEntry),
	}
}

// GenerateContentHash returns the hex-encoded SHA-256 of content.
func GenerateContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// GenerateOptionsHash normalizes opts per the documented Options
// normalization rules, then returns the hex-encoded SHA-256 of its
// canonical JSON encoding.
func GenerateOptionsHash(opts models.Options) string {
	normalized := opts.Normalize()
	encoded, _ := json.Marshal(normalized)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// GenerateCacheKey builds the composite key the spec defines as
// {linter}:{format}:{contentHash}:{optionsHash}.
func GenerateCacheKey(contentHash, linter string, format models.Format, optionsHash string) string {
	return fmt.Sprintf("%s:%s:%s:%s", linter, format, contentHash, optionsHash)
}

// Get returns the freshest non-expired entry for the given coordinates, or
// nil if there is none. Any collaborator error is swallowed, logged, and
// counted as a miss.
func (s *Service) Get(contentHash, linter string, format models.Format, optionsHash string) *models.ExecutionResult {
	key := GenerateCacheKey(contentHash, linter, format, optionsHash)
	now := time.Now()

	s.mu.RLock()
	entry, ok := s.mem[key]
	s.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		atomic.AddInt64(&s.hits, 1)
		result := entry.result
		return &result
	}

	var row models.CacheEntry
	err := s.database.Read().
		Where("content_hash = ? AND linter_type = ? AND format = ? AND options_hash = ? AND expires_at > ?",
			contentHash, linter, string(format), optionsHash, now).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			logger.Warnf("cache lookup failed, treating as miss: %v", err)
		}
		atomic.AddInt64(&s.misses, 1)
		return nil
	}

	var result models.ExecutionResult
	if err := json.Unmarshal([]byte(row.Result), &result); err != nil {
		logger.Warnf("cache entry %s has unparseable result, treating as miss: %v", key, err)
		atomic.AddInt64(&s.misses, 1)
		return nil
	}

	atomic.AddInt64(&s.hits, 1)
	s.mu.Lock()
	s.mem[key] = memEntry{result: result, status: row.Status, expiresAt: row.ExpiresAt}
	s.mu.Unlock()

	return &result
}

// Set persists result under the given coordinates with a TTL of
// ttlHours (DefaultTTL when ttlHours is zero or negative).
func (s *Service) Set(contentHash, linter string, format models.Format, optionsHash string, result models.ExecutionResult, status models.CacheStatus, errorMessage string, ttlHours float64) error {
	ttl := DefaultTTL
	if ttlHours > 0 {
		ttl = time.Duration(ttlHours * float64(time.Hour))
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return models.NewAppError(models.ErrCache, "failed to serialize cache entry", err)
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	row := models.CacheEntry{
		ContentHash:  contentHash,
		LinterType:   linter,
		OptionsHash:  optionsHash,
		Format:       format,
		Result:       string(encoded),
		Status:       status,
		ErrorMessage: errorMessage,
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
	}
	if err := s.database.Write().Create(&row).Error; err != nil {
		return models.NewAppError(models.ErrCache, "failed to persist cache entry", err)
	}

	key := GenerateCacheKey(contentHash, linter, format, optionsHash)
	s.mu.Lock()
	s.mem[key] = memEntry{result: result, status: status, expiresAt: expiresAt}
	s.mu.Unlock()

	return nil
}

// Invalidate removes matching entries; omitted arguments broaden scope.
// Passing both empty clears every entry.
func (s *Service) Invalidate(contentHash, linter string) error {
	q := s.database.Write().Model(&models.CacheEntry{})
	if contentHash != "" {
		q = q.Where("content_hash = ?", contentHash)
	}
	if linter != "" {
		q = q.Where("linter_type = ?", linter)
	}
	if contentHash == "" && linter == "" {
		q = q.Session(&gorm.Session{AllowGlobalUpdate: true})
	}
	if err := q.Delete(&models.CacheEntry{}).Error; err != nil {
		return models.NewAppError(models.ErrCache, "failed to invalidate cache entries", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if contentHash == "" && linter == "" {
		s.mem = make(map[string]memEntry)
		return nil
	}
	for key := range s.mem {
		if contentHash != "" && !strings.Contains(key, contentHash) {
			continue
		}
		if linter != "" && !strings.HasPrefix(key, linter+":") {
			continue
		}
		delete(s.mem, key)
	}
	return nil
}

// Cleanup deletes every expired entry from the persistent store and
// drops any matching in-memory entries.
func (s *Service) Cleanup() error {
	if err := s.database.Write().
		Where("expires_at <= ?", time.Now()).
		Delete(&models.CacheEntry{}).Error; err != nil {
		return models.NewAppError(models.ErrCache, "failed to clean up expired cache entries", err)
	}

	now := time.Now()
	s.mu.Lock()
	for key, entry := range s.mem {
		if now.After(entry.expiresAt) {
			delete(s.mem, key)
		}
	}
	s.mu.Unlock()
	return nil
}

// WarmCache precomputes the cache key for each configuration and checks
// whether a live entry already exists. It writes no entries. Lookup
// failures are logged and skipped; WarmCache never raises.
func (s *Service) WarmCache(configs []WarmConfig) {
	for _, cfg := range configs {
		contentHash := GenerateContentHash(cfg.Content)
		optionsHash := GenerateOptionsHash(cfg.Options)
		key := GenerateCacheKey(contentHash, cfg.Linter, cfg.Format, optionsHash)

		s.mu.RLock()
		_, exists := s.mem[key]
		s.mu.RUnlock()
		if exists {
			continue
		}

		var row models.CacheEntry
		err := s.database.Read().
			Where("content_hash = ? AND linter_type = ? AND format = ? AND options_hash = ? AND expires_at > ?",
				contentHash, cfg.Linter, string(cfg.Format), optionsHash, time.Now()).
			First(&row).Error
		if err != nil {
			logger.Debugf("warmCache: no existing entry for %s, skipping seed", key)
			continue
		}
	}
}

// GetStats returns the aggregate {total_entries, hit_rate_percentage,
// size_mb, expired_entries} snapshot.
func (s *Service) GetStats() Stats {
	var total, expired int64
	var sizeBytes int64

	s.database.Read().Model(&models.CacheEntry{}).Count(&total)
	s.database.Read().Model(&models.CacheEntry{}).Where("expires_at <= ?", time.Now()).Count(&expired)
	s.database.Read().Model(&models.CacheEntry{}).Select("COALESCE(SUM(LENGTH(result)), 0)").Scan(&sizeBytes)

	hm := s.GetHitMissStats()

	return Stats{
		TotalEntries:   total,
		HitRatePercent: hm.Rate,
		SizeMB:         float64(sizeBytes) / (1024 * 1024),
		ExpiredEntries: expired,
	}
}

// GetHitMissStats returns the {hits, misses, rate} snapshot.
func (s *Service) GetHitMissStats() HitMissStats {
	hits := atomic.LoadInt64(&s.hits)
	misses := atomic.LoadInt64(&s.misses)
	total := hits + misses
	rate := 0.0
	if total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	return HitMissStats{Hits: hits, Misses: misses, Rate: rate}
}

// ResetStats zeros the hit/miss counters.
func (s *Service) ResetStats() {
	atomic.StoreInt64(&s.hits, 0)
	atomic.StoreInt64(&s.misses, 0)
}

// StartCleanupTimer starts a background goroutine invoking Cleanup on
// interval. It returns a stop function that halts the goroutine; calling
// it more than once is safe. Constructing the Service does not start a
// timer — callers opt in explicitly.
func (s *Service) StartCleanupTimer(interval time.Duration) (stop func()) {
	s.cleanupStop = make(chan struct{})
	ticker := time.NewTicker(interval)
	stopCh := s.cleanupStop

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.Cleanup(); err != nil {
					logger.Warnf("cache cleanup tick failed: %v", err)
				}
			case <-stopCh:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stopCh) })
	}
}

