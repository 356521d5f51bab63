package agents

import (
	"context"
	"time"

	"github.com/tripmesh-ai/tripmesh/core"
	"github.com/tripmesh-ai/tripmesh/memory"
)

// CoordinatorAgent opens the pipeline: it classifies the request,
// records coordination metadata, and checks the result cache so a
// repeated request can skip the expensive stages downstream.
type CoordinatorAgent struct {
	BaseAgent
}

func NewCoordinatorAgent(deps Deps) *CoordinatorAgent {
	return &CoordinatorAgent{BaseAgent: newBaseAgent(CoordinatorID, deps)}
}

const defaultTaskType = "trip_planning"

func (a *CoordinatorAgent) ExecuteTask(ctx context.Context, state *core.State) (map[string]interface{}, error) {
	taskType := defaultTaskType
	if t, ok := state.Context["task_type"].(string); ok && t != "" {
		taskType = t
	}

	coordination := map[string]interface{}{
		"task_type":    taskType,
		"session_id":   state.SessionID,
		"is_follow_up": state.IsFollowUp,
		"received_at":  time.Now().UTC().Format(time.RFC3339),
	}
	state.Context["coordination"] = coordination

	if a.deps.Memory != nil {
		fp := memory.MakeFingerprint(state.UserID, taskType, state.UserRequest)
		coordination["fingerprint"] = fp
		if cached := a.deps.Memory.LoadCachedResult(fp, 0); cached != nil {
			state.Context["cached_result"] = cached
			coordination["cache_hit"] = true
			a.deps.logger().Info("Cache hit for request", map[string]interface{}{
				"operation":   "coordinate",
				"session_id":  state.SessionID,
				"fingerprint": fp,
			})
		}
	}

	return successResult(map[string]interface{}{"task_type": taskType}), nil
}
