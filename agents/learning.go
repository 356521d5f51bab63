package agents

import (
	"context"
	"time"

	"github.com/tripmesh-ai/tripmesh/core"
)

// LearningAgent closes the pipeline: it replays the performance
// messages the stages emitted, folds them into the learning metrics,
// and surfaces per-agent insights for the response envelope.
type LearningAgent struct {
	BaseAgent
}

func NewLearningAgent(deps Deps) *LearningAgent {
	return &LearningAgent{BaseAgent: newBaseAgent(LearningID, deps)}
}

func (a *LearningAgent) ExecuteTask(ctx context.Context, state *core.State) (map[string]interface{}, error) {
	processed := 0
	if a.deps.Memory != nil {
		for _, msg := range state.MessageHistory {
			if msg.Type != core.MessagePerformanceData {
				continue
			}
			agentID := firstString(msg.Content, "agent_id")
			taskType := firstString(msg.Content, "task_type")
			if agentID == "" || taskType == "" {
				continue
			}
			success, _ := msg.Content["success"].(bool)
			seconds, _ := msg.Content["response_time"].(float64)
			a.deps.Memory.LearnFromInteraction(agentID, taskType,
				success, time.Duration(seconds*float64(time.Second)), msg.Content)
			processed++
		}
	}

	insights := a.buildInsights(state)
	state.Context["learning_insights"] = insights

	if a.deps.Memory != nil {
		a.deps.Memory.ConsolidateMemories()
	}

	return successResult(map[string]interface{}{
		"messages_processed": processed,
		"insights":           len(insights),
	}), nil
}

// buildInsights snapshots the metrics of every agent that worked on
// this request.
func (a *LearningAgent) buildInsights(state *core.State) []map[string]interface{} {
	insights := []map[string]interface{}{}
	if a.deps.Memory == nil {
		return insights
	}
	for _, agentID := range state.AgentsUsed() {
		for _, metric := range a.deps.Memory.MetricsForAgent(agentID) {
			insights = append(insights, map[string]interface{}{
				"agent_id":              metric.AgentID,
				"task_type":             metric.TaskType,
				"success_rate":          metric.SuccessRate,
				"average_response_time": metric.AverageResponseTime,
				"total_tasks":           metric.TotalTasks,
			})
		}
	}
	return insights
}
