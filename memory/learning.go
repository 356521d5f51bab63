package memory

import (
	"context"
	"reflect"
	"time"
)

// LearningMetric aggregates outcomes for one (agent, task type) pair.
type LearningMetric struct {
	AgentID             string    `json:"agent_id" bson:"agent_id"`
	TaskType            string    `json:"task_type" bson:"task_type"`
	SuccessRate         float64   `json:"success_rate" bson:"success_rate"`
	AverageResponseTime float64   `json:"average_response_time" bson:"average_response_time"` // seconds
	ErrorRate           float64   `json:"error_rate" bson:"error_rate"`
	TotalTasks          int       `json:"total_tasks" bson:"total_tasks"`
	SuccessfulTasks     int       `json:"successful_tasks" bson:"successful_tasks"`
	LastUpdated         time.Time `json:"last_updated" bson:"last_updated"`
}

// UserPreference is one learned (user, preference type) value.
type UserPreference struct {
	UserID              string      `json:"user_id" bson:"user_id"`
	PreferenceType      string      `json:"preference_type" bson:"preference_type"`
	Value               interface{} `json:"value" bson:"value"`
	Confidence          float64     `json:"confidence" bson:"confidence"`
	LearnedFromSessions []string    `json:"learned_from_sessions" bson:"learned_from_sessions"`
	LastReinforced      time.Time   `json:"last_reinforced" bson:"last_reinforced"`
}

// LearnFromInteraction upserts the (agent, task type) metric with
// running averages.
func (m *MemoryStore) LearnFromInteraction(agentID, taskType string, success bool, responseTime time.Duration, taskContext map[string]interface{}) {
	key := agentID + "|" + taskType
	seconds := responseTime.Seconds()

	m.mu.Lock()
	metric, ok := m.metrics[key]
	if !ok {
		metric = &LearningMetric{AgentID: agentID, TaskType: taskType}
		m.metrics[key] = metric
	}
	metric.TotalTasks++
	if success {
		metric.SuccessfulTasks++
	}
	n := float64(metric.TotalTasks)
	metric.SuccessRate = float64(metric.SuccessfulTasks) / n
	metric.AverageResponseTime = (metric.AverageResponseTime*(n-1) + seconds) / n
	metric.ErrorRate = 1 - metric.SuccessRate
	metric.LastUpdated = time.Now()
	snapshot := *metric
	m.mu.Unlock()

	m.persistMetric(&snapshot)
}

// GetMetric returns a copy of the metric for one (agent, task type),
// or nil when no interaction has been recorded.
func (m *MemoryStore) GetMetric(agentID, taskType string) *LearningMetric {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if metric, ok := m.metrics[agentID+"|"+taskType]; ok {
		out := *metric
		return &out
	}
	return nil
}

// MetricsForAgent returns copies of all metrics recorded for an agent.
func (m *MemoryStore) MetricsForAgent(agentID string) []*LearningMetric {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*LearningMetric
	for _, metric := range m.metrics {
		if metric.AgentID == agentID {
			cp := *metric
			out = append(out, &cp)
		}
	}
	return out
}

// LearnUserPreference applies the reinforce-or-replace rule: a
// matching value raises confidence by 0.1 (capped at 1.0); a new value
// replaces the preference at the given confidence.
func (m *MemoryStore) LearnUserPreference(userID, prefType string, value interface{}, confidence float64, sessionID string) {
	key := userID + "|" + prefType
	now := time.Now()

	m.mu.Lock()
	pref, ok := m.preferences[key]
	if ok && reflect.DeepEqual(pref.Value, value) {
		pref.Confidence = clamp01(pref.Confidence + 0.1)
		pref.LastReinforced = now
		if sessionID != "" && !containsString(pref.LearnedFromSessions, sessionID) {
			pref.LearnedFromSessions = append(pref.LearnedFromSessions, sessionID)
		}
	} else {
		pref = &UserPreference{
			UserID:         userID,
			PreferenceType: prefType,
			Value:          DeepCopyValue(value),
			Confidence:     clamp01(confidence),
			LastReinforced: now,
		}
		if sessionID != "" {
			pref.LearnedFromSessions = []string{sessionID}
		}
		m.preferences[key] = pref
	}
	snapshot := *pref
	snapshot.LearnedFromSessions = append([]string(nil), pref.LearnedFromSessions...)
	m.mu.Unlock()

	m.persistPreference(&snapshot)
}

// GetUserPreference returns a copy of one learned preference, or nil.
func (m *MemoryStore) GetUserPreference(userID, prefType string) *UserPreference {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if pref, ok := m.preferences[userID+"|"+prefType]; ok {
		out := *pref
		out.Value = DeepCopyValue(pref.Value)
		out.LearnedFromSessions = append([]string(nil), pref.LearnedFromSessions...)
		return &out
	}
	return nil
}

func (m *MemoryStore) persistMetric(metric *LearningMetric) {
	if m.docs == nil {
		return
	}
	ctx, cancel := contextWithPersistTimeout()
	defer cancel()
	if err := m.docs.UpsertMetric(ctx, metric); err != nil {
		m.logger.Warn("Metric persistence failed", map[string]interface{}{
			"operation": "metric_persist",
			"agent_id":  metric.AgentID,
			"task_type": metric.TaskType,
			"error":     err.Error(),
		})
	}
}

func (m *MemoryStore) persistPreference(pref *UserPreference) {
	if m.docs == nil {
		return
	}
	ctx, cancel := contextWithPersistTimeout()
	defer cancel()
	if err := m.docs.UpsertPreference(ctx, pref); err != nil {
		m.logger.Warn("Preference persistence failed", map[string]interface{}{
			"operation": "preference_persist",
			"user_id":   pref.UserID,
			"pref_type": pref.PreferenceType,
			"error":     err.Error(),
		})
	}
}

func contextWithPersistTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), persistTimeout)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
