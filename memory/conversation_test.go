package memory

import (
	"testing"
	"time"
)

func TestConversationTurnNumbering(t *testing.T) {
	m := NewMemoryStore()

	if turn := m.StoreConversationTurn("s1", "u1", "first", nil); turn != 1 {
		t.Errorf("first turn = %d, want 1", turn)
	}
	if turn := m.StoreConversationTurn("s1", "u1", "second", nil); turn != 2 {
		t.Errorf("second turn = %d, want 2", turn)
	}
	if turn := m.StoreConversationTurn("s2", "u1", "other session", nil); turn != 1 {
		t.Errorf("new session turn = %d, want 1", turn)
	}
}

func TestGetConversationHistoryNewestFirst(t *testing.T) {
	m := NewMemoryStore()
	m.StoreConversationTurn("s1", "u1", "plan lisbon", map[string]interface{}{"status": "success"})
	m.StoreConversationTurn("s1", "u1", "add porto", map[string]interface{}{"status": "success"})
	m.StoreConversationTurn("s1", "u1", "what about budget", map[string]interface{}{"status": "success"})

	turns := m.GetConversationHistory("s1", "u1", 2)
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turnNumberOf(turns[0]) != 3 || turnNumberOf(turns[1]) != 2 {
		t.Errorf("order = [%d %d], want [3 2]", turnNumberOf(turns[0]), turnNumberOf(turns[1]))
	}
	if turns[0]["user_request"] != "what about budget" {
		t.Errorf("newest turn = %v", turns[0]["user_request"])
	}
}

func TestGetConversationHistoryBySessionIsolated(t *testing.T) {
	m := NewMemoryStore()
	m.StoreConversationTurn("s1", "u1", "a", nil)
	m.StoreConversationTurn("s2", "u1", "b", nil)

	turns := m.GetConversationHistory("s1", "", 10)
	if len(turns) != 1 || turns[0]["user_request"] != "a" {
		t.Errorf("session filter leaked: %v", turns)
	}
}

func TestGetRecentConversationsWindow(t *testing.T) {
	m := NewMemoryStore()
	m.StoreConversationTurn("s1", "u1", "recent", nil)
	m.StoreConversationTurn("s2", "u1", "old", nil)

	m.mu.Lock()
	for _, rec := range m.records[Episodic] {
		if rec.Content["user_request"] == "old" {
			rec.Timestamp = time.Now().Add(-48 * time.Hour)
		}
	}
	m.mu.Unlock()

	turns := m.GetRecentConversations("u1", 24, 10)
	if len(turns) != 1 || turns[0]["user_request"] != "recent" {
		t.Errorf("window filter failed: %v", turns)
	}
}

func TestGetRecentConversationsByUserIsolated(t *testing.T) {
	m := NewMemoryStore()
	m.StoreConversationTurn("s1", "u1", "mine", nil)
	m.StoreConversationTurn("s2", "u2", "theirs", nil)

	turns := m.GetRecentConversations("u1", 24, 10)
	if len(turns) != 1 || turns[0]["user_request"] != "mine" {
		t.Errorf("user filter leaked: %v", turns)
	}
}
