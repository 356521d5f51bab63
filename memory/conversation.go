package memory

import (
	"fmt"
	"sort"
	"time"
)

// Tag constants used on conversation and cache records.
const (
	TagConversation = "conversation"
	TagCache        = "cache"

	kindConversationTurn = "conversation_turn"
	kindCache            = "cache"
	kindKey              = "kind"
)

// StoreConversationTurn records one user-request/agent-response
// exchange as an episodic memory and returns the turn number.
func (m *MemoryStore) StoreConversationTurn(sessionID, userID, userRequest string, agentResponse map[string]interface{}) int {
	turn := m.nextTurnNumber(sessionID)

	content := map[string]interface{}{
		kindKey:                    kindConversationTurn,
		"session_id":               sessionID,
		"user_id":                  userID,
		"user_request":             userRequest,
		"agent_response":           DeepCopyMap(agentResponse),
		"conversation_turn_number": turn,
		"timestamp":                time.Now().UTC().Format(time.RFC3339),
	}
	tags := []string{TagConversation, sessionID, userID, fmt.Sprintf("turn_%d", turn)}
	m.Store("conversation", Episodic, content, 0.8, tags)
	return turn
}

// nextTurnNumber continues the session's turn sequence. When the
// session is first seen in this process and a document store is
// configured, the persisted history seeds the counter.
func (m *MemoryStore) nextTurnNumber(sessionID string) int {
	m.mu.Lock()
	last, seen := m.turnCounts[sessionID]
	m.mu.Unlock()

	if !seen && m.docs != nil {
		ctx, cancel := contextWithPersistTimeout()
		turns, err := m.docs.FindConversationTurns(ctx, sessionID, 1)
		cancel()
		if err == nil && len(turns) > 0 {
			last = turnNumberOf(turns[0])
		} else if err != nil {
			m.logger.Warn("Turn lookup failed, starting sequence locally", map[string]interface{}{
				"operation":  "conversation_turn_seed",
				"session_id": sessionID,
				"error":      err.Error(),
			})
		}
	}

	m.mu.Lock()
	if cur := m.turnCounts[sessionID]; cur > last {
		last = cur
	}
	m.turnCounts[sessionID] = last + 1
	m.mu.Unlock()
	return last + 1
}

// GetConversationHistory returns prior turns for a session (preferred)
// or user, newest turn first. The persistent store is consulted first
// when configured and a session id is given; on store errors the
// in-memory view is returned instead of failing.
func (m *MemoryStore) GetConversationHistory(sessionID, userID string, limit int) []map[string]interface{} {
	if limit <= 0 {
		limit = 10
	}

	if m.docs != nil && sessionID != "" {
		ctx, cancel := contextWithPersistTimeout()
		turns, err := m.docs.FindConversationTurns(ctx, sessionID, limit)
		cancel()
		if err == nil {
			return turns
		}
		m.logger.Warn("Conversation history query failed, using in-memory view", map[string]interface{}{
			"operation":  "conversation_history",
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}

	tags := []string{TagConversation}
	if sessionID != "" {
		tags = append(tags, sessionID)
	} else if userID != "" {
		tags = append(tags, userID)
	}
	return m.scanTurns(tags, limit, time.Time{})
}

// GetRecentConversations returns a user's turns within the time
// window, newest first.
func (m *MemoryStore) GetRecentConversations(userID string, hoursBack int, limit int) []map[string]interface{} {
	if limit <= 0 {
		limit = 10
	}
	if hoursBack <= 0 {
		hoursBack = 24
	}
	since := time.Now().Add(-time.Duration(hoursBack) * time.Hour)

	if m.docs != nil {
		ctx, cancel := contextWithPersistTimeout()
		turns, err := m.docs.FindRecentConversationTurns(ctx, userID, since, limit)
		cancel()
		if err == nil {
			return turns
		}
		m.logger.Warn("Recent conversation query failed, using in-memory view", map[string]interface{}{
			"operation": "recent_conversations",
			"user_id":   userID,
			"error":     err.Error(),
		})
	}

	return m.scanTurns([]string{TagConversation, userID}, limit, since)
}

// scanTurns is the in-memory query path. Records are projected to
// their turn content and sorted by turn number descending.
func (m *MemoryStore) scanTurns(tags []string, limit int, since time.Time) []map[string]interface{} {
	m.mu.RLock()
	var turns []map[string]interface{}
	for _, rec := range m.records[Episodic] {
		if rec.Content[kindKey] != kindConversationTurn {
			continue
		}
		if !hasAllTags(rec.Tags, tags) {
			continue
		}
		if !since.IsZero() && rec.Timestamp.Before(since) {
			continue
		}
		turns = append(turns, DeepCopyMap(rec.Content))
	}
	m.mu.RUnlock()

	sort.Slice(turns, func(i, j int) bool {
		return turnNumberOf(turns[i]) > turnNumberOf(turns[j])
	})
	if limit < len(turns) {
		turns = turns[:limit]
	}
	return turns
}

func turnNumberOf(turn map[string]interface{}) int {
	switch v := turn["conversation_turn_number"].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
