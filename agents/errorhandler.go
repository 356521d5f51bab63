package agents

import (
	"context"
	"sort"

	"github.com/tripmesh-ai/tripmesh/core"
)

// ErrorHandlerAgent composes the structured error response when the
// pipeline cannot complete.
type ErrorHandlerAgent struct {
	BaseAgent
}

func NewErrorHandlerAgent(deps Deps) *ErrorHandlerAgent {
	return &ErrorHandlerAgent{BaseAgent: newBaseAgent(ErrorHandlerID, deps)}
}

func (a *ErrorHandlerAgent) ExecuteTask(ctx context.Context, state *core.State) (map[string]interface{}, error) {
	failed, messages := failedAgents(state)
	errMsg := "trip planning failed"
	if len(messages) > 0 {
		errMsg = messages[0]
	}

	state.FinalResponse["status"] = "error"
	state.FinalResponse["error"] = errMsg
	state.FinalResponse["session_id"] = state.SessionID
	state.FinalResponse["details"] = map[string]interface{}{
		"failed_agents": failed,
		"messages":      messages,
	}

	a.deps.logger().Error("Request routed to error handler", map[string]interface{}{
		"operation":     "error_handler",
		"session_id":    state.SessionID,
		"failed_agents": failed,
	})

	return successResult(map[string]interface{}{"failed_agents": failed}), nil
}

// failedAgents lists the agents in error status with their messages,
// in stable order.
func failedAgents(state *core.State) ([]string, []string) {
	var failed []string
	for agentID, st := range state.AgentStatuses {
		if st.Status == core.StatusError {
			failed = append(failed, agentID)
		}
	}
	sort.Strings(failed)
	var messages []string
	for _, agentID := range failed {
		if msg := state.AgentStatuses[agentID].ErrorMessage; msg != "" {
			messages = append(messages, msg)
		}
	}
	return failed, messages
}
