package memory

import (
	"context"
	"time"
)

// DocumentStore is the persistence contract the memory subsystem
// writes through to. All methods are best-effort from the caller's
// perspective; errors are logged, never surfaced to stage code.
type DocumentStore interface {
	// UpsertMemory writes one record keyed by its id.
	UpsertMemory(ctx context.Context, rec *Record) error

	// FindConversationTurns returns a session's turns, newest turn
	// first, bounded by limit.
	FindConversationTurns(ctx context.Context, sessionID string, limit int) ([]map[string]interface{}, error)

	// FindRecentConversationTurns returns a user's turns since the
	// given instant, newest first, bounded by limit.
	FindRecentConversationTurns(ctx context.Context, userID string, since time.Time, limit int) ([]map[string]interface{}, error)

	// UpsertMetric writes one learning metric keyed by (agent, task type).
	UpsertMetric(ctx context.Context, metric *LearningMetric) error

	// UpsertPreference writes one preference keyed by (user, preference type).
	UpsertPreference(ctx context.Context, pref *UserPreference) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error
}
