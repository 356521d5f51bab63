// Package memory implements the shared memory subsystem: typed, tagged
// records across four partitions, a fingerprinted result cache,
// conversation history, per-agent learning metrics, and user
// preferences. Persistence to a document store and a Redis result
// cache are both optional and strictly best-effort; no operation fails
// because persistence is unreachable.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/tripmesh-ai/tripmesh/core"
)

// MemoryType partitions records by how they are consolidated.
type MemoryType string

const (
	Episodic   MemoryType = "episodic"
	Semantic   MemoryType = "semantic"
	Procedural MemoryType = "procedural"
	Working    MemoryType = "working"
)

var allTypes = []MemoryType{Episodic, Semantic, Procedural, Working}

// Record is one persisted memory entry.
type Record struct {
	ID           string                 `json:"id" bson:"_id"`
	Timestamp    time.Time              `json:"timestamp" bson:"timestamp"`
	AgentID      string                 `json:"agent_id" bson:"agent_id"`
	Type         MemoryType             `json:"memory_type" bson:"memory_type"`
	Content      map[string]interface{} `json:"content" bson:"content"`
	Importance   float64                `json:"importance" bson:"importance"`
	AccessCount  int                    `json:"access_count" bson:"access_count"`
	LastAccessed time.Time              `json:"last_accessed" bson:"last_accessed"`
	Tags         []string               `json:"tags" bson:"tags"`
	Associations []string               `json:"associations,omitempty" bson:"associations,omitempty"`
}

// RetrievalQuery filters Retrieve results. Zero fields match all.
type RetrievalQuery struct {
	AgentID string
	Type    MemoryType
	Tags    []string
	Limit   int
}

// MemoryStore is the process-wide memory subsystem. All maps are
// guarded by one RWMutex so the tag index stays consistent with
// storage under concurrent stages.
type MemoryStore struct {
	mu          sync.RWMutex
	records     map[MemoryType]map[string]*Record
	tagIndex    map[string][]string // tag -> record ids
	metrics     map[string]*LearningMetric
	preferences map[string]*UserPreference
	turnCounts  map[string]int // session id -> last stored turn number

	docs   DocumentStore // optional
	cache  ResultCache   // optional
	logger core.Logger
}

// StoreOption configures a MemoryStore.
type StoreOption func(*MemoryStore)

// WithDocumentStore attaches the optional persistent document store.
func WithDocumentStore(docs DocumentStore) StoreOption {
	return func(m *MemoryStore) { m.docs = docs }
}

// WithResultCache attaches the optional shared result cache.
func WithResultCache(cache ResultCache) StoreOption {
	return func(m *MemoryStore) { m.cache = cache }
}

// WithLogger sets the store logger.
func WithLogger(logger core.Logger) StoreOption {
	return func(m *MemoryStore) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMemoryStore creates the memory subsystem.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	m := &MemoryStore{
		records:     make(map[MemoryType]map[string]*Record),
		tagIndex:    make(map[string][]string),
		metrics:     make(map[string]*LearningMetric),
		preferences: make(map[string]*UserPreference),
		turnCounts:  make(map[string]int),
		logger:      &core.NoOpLogger{},
	}
	for _, t := range allTypes {
		m.records[t] = make(map[string]*Record)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store upserts a record and returns its id. The id is derived from
// the agent, canonical content JSON, and creation timestamp, so
// identical content stored at distinct instants yields distinct ids.
func (m *MemoryStore) Store(agentID string, memType MemoryType, content map[string]interface{}, importance float64, tags []string) string {
	if _, ok := m.records[memType]; !ok {
		memType = Episodic
	}
	now := time.Now()
	rec := &Record{
		ID:           recordID(agentID, content, now),
		Timestamp:    now,
		AgentID:      agentID,
		Type:         memType,
		Content:      DeepCopyMap(content),
		Importance:   clamp01(importance),
		LastAccessed: now,
		Tags:         append([]string(nil), tags...),
	}

	m.mu.Lock()
	m.records[memType][rec.ID] = rec
	for _, tag := range rec.Tags {
		m.tagIndex[tag] = append(m.tagIndex[tag], rec.ID)
	}
	m.mu.Unlock()

	m.persistRecord(rec)
	return rec.ID
}

// Retrieve returns records matching the query, sorted by
// (importance, timestamp) descending, bounded by Limit. Access
// counters on the underlying records are bumped for every returned
// record; the returned records are detached copies.
func (m *MemoryStore) Retrieve(q RetrievalQuery) []*Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*Record
	for _, t := range allTypes {
		if q.Type != "" && q.Type != t {
			continue
		}
		for _, rec := range m.records[t] {
			if q.AgentID != "" && rec.AgentID != q.AgentID {
				continue
			}
			if !hasAllTags(rec.Tags, q.Tags) {
				continue
			}
			matched = append(matched, rec)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Importance != matched[j].Importance {
			return matched[i].Importance > matched[j].Importance
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	limit := q.Limit
	if limit <= 0 || limit > len(matched) {
		limit = len(matched)
	}
	matched = matched[:limit]

	now := time.Now()
	out := make([]*Record, len(matched))
	for i, rec := range matched {
		rec.AccessCount++
		rec.LastAccessed = now
		out[i] = cloneRecord(rec)
	}
	return out
}

// ConsolidateMemories discards working-memory entries older than 24h
// and promotes heavily used important working entries to episodic.
func (m *MemoryStore) ConsolidateMemories() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-24 * time.Hour)
	working := m.records[Working]
	for id, rec := range working {
		switch {
		case rec.Importance > 0.8 && rec.AccessCount > 5:
			rec.Type = Episodic
			m.records[Episodic][id] = rec
			delete(working, id)
		case rec.Timestamp.Before(cutoff):
			delete(working, id)
			m.dropFromTagIndex(rec)
		}
	}
}

// persistRecord writes through to the document store, best effort.
func (m *MemoryStore) persistRecord(rec *Record) {
	if m.docs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.docs.UpsertMemory(ctx, rec); err != nil {
		m.logger.Warn("Memory persistence failed", map[string]interface{}{
			"operation": "memory_persist",
			"record_id": rec.ID,
			"error":     err.Error(),
		})
	}
}

func (m *MemoryStore) dropFromTagIndex(rec *Record) {
	for _, tag := range rec.Tags {
		ids := m.tagIndex[tag]
		for i, id := range ids {
			if id == rec.ID {
				m.tagIndex[tag] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(m.tagIndex[tag]) == 0 {
			delete(m.tagIndex, tag)
		}
	}
}

const persistTimeout = 5 * time.Second

func recordID(agentID string, content map[string]interface{}, ts time.Time) string {
	// encoding/json sorts map keys, giving a canonical form.
	payload, _ := json.Marshal(content)
	h := sha256.New()
	h.Write([]byte(agentID))
	h.Write(payload)
	h.Write([]byte(ts.Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func cloneRecord(rec *Record) *Record {
	out := *rec
	out.Content = DeepCopyMap(rec.Content)
	out.Tags = append([]string(nil), rec.Tags...)
	out.Associations = append([]string(nil), rec.Associations...)
	return &out
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
