package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// DefaultCacheMaxAge bounds how old a cached result may be on read.
const DefaultCacheMaxAge = 24 * time.Hour

// ResultCache is an optional shared cache backend mirroring the
// in-process cache (e.g. Redis). Best-effort: implementations return
// errors, callers log and continue.
type ResultCache interface {
	Save(ctx context.Context, fingerprint string, payload map[string]interface{}, ttl time.Duration) error
	Load(ctx context.Context, fingerprint string) (map[string]interface{}, bool, error)
}

// MakeFingerprint derives the stable 24-hex-char request fingerprint.
// It is invariant under surrounding whitespace and letter case in all
// three inputs.
func MakeFingerprint(userID, taskType, userRequest string) string {
	canonical := strings.ToLower(strings.TrimSpace(userID)) + "|" +
		strings.ToLower(strings.TrimSpace(taskType)) + "|" +
		strings.ToLower(strings.TrimSpace(userRequest))
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:24]
}

// SaveCachedResult stores a tool-plan result under its fingerprint.
// The result is deep-copied on write.
func (m *MemoryStore) SaveCachedResult(fingerprint, userID, taskType, userRequest string, result map[string]interface{}) {
	content := map[string]interface{}{
		kindKey:        kindCache,
		"fingerprint":  fingerprint,
		"user_id":      userID,
		"task_type":    taskType,
		"user_request": userRequest,
		"result":       DeepCopyMap(result),
	}
	tags := []string{TagCache, fingerprint, userID}
	m.Store("cache", Episodic, content, 0.5, tags)

	if m.cache != nil {
		ctx, cancel := contextWithPersistTimeout()
		defer cancel()
		if err := m.cache.Save(ctx, fingerprint, content, DefaultCacheMaxAge); err != nil {
			m.logger.Warn("Shared cache write failed", map[string]interface{}{
				"operation":   "cache_save",
				"fingerprint": fingerprint,
				"error":       err.Error(),
			})
		}
	}
}

// LoadCachedResult returns a deep copy of the cached result for the
// fingerprint, or nil when absent or older than maxAge. The in-process
// view is consulted first, then the shared cache.
func (m *MemoryStore) LoadCachedResult(fingerprint string, maxAge time.Duration) map[string]interface{} {
	if maxAge <= 0 {
		maxAge = DefaultCacheMaxAge
	}
	cutoff := time.Now().Add(-maxAge)

	m.mu.RLock()
	var hit map[string]interface{}
	var hitTime time.Time
	for _, rec := range m.records[Episodic] {
		if rec.Content[kindKey] != kindCache {
			continue
		}
		if rec.Content["fingerprint"] != fingerprint {
			continue
		}
		if rec.Timestamp.Before(cutoff) {
			continue
		}
		if rec.Timestamp.After(hitTime) {
			hit = rec.Content
			hitTime = rec.Timestamp
		}
	}
	m.mu.RUnlock()

	if hit != nil {
		result, _ := hit["result"].(map[string]interface{})
		return DeepCopyMap(result)
	}

	if m.cache != nil {
		ctx, cancel := contextWithPersistTimeout()
		defer cancel()
		content, found, err := m.cache.Load(ctx, fingerprint)
		if err != nil {
			m.logger.Warn("Shared cache read failed", map[string]interface{}{
				"operation":   "cache_load",
				"fingerprint": fingerprint,
				"error":       err.Error(),
			})
			return nil
		}
		if found {
			result, _ := content["result"].(map[string]interface{})
			return DeepCopyMap(result)
		}
	}
	return nil
}
