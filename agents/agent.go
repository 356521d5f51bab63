// Package agents implements the pipeline stages: coordinator,
// planning, research, gap filling, budget, response synthesis,
// learning, and the error handler. Each agent performs one
// stage-bounded unit of work against the shared state; routing between
// stages belongs to the workflow engine.
package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/tripmesh-ai/tripmesh/core"
	"github.com/tripmesh-ai/tripmesh/memory"
	"github.com/tripmesh-ai/tripmesh/tools"
)

// Canonical agent ids. Each maps 1:1 to a stage in the graph.
const (
	CoordinatorID  = "coordinator"
	PlanningID     = "planning_agent"
	ResearchID     = "research_agent"
	GapID          = "gap_agent"
	BudgetID       = "budget_agent"
	ResponseID     = "response_agent"
	LearningID     = "learning_agent"
	ErrorHandlerID = "error_handler"
)

// Deps carries the shared collaborators every agent needs.
type Deps struct {
	Bridge *tools.Bridge
	Memory *memory.MemoryStore
	Logger core.Logger
}

func (d *Deps) logger() core.Logger {
	if d.Logger == nil {
		return &core.NoOpLogger{}
	}
	return d.Logger
}

// BaseAgent supplies the id and the default message behavior shared by
// every concrete agent.
type BaseAgent struct {
	id   string
	deps Deps
}

func newBaseAgent(id string, deps Deps) BaseAgent {
	return BaseAgent{id: id, deps: deps}
}

func (b *BaseAgent) ID() string { return b.id }

// ReceiveMessage acknowledges task requests with a status update and
// absorbs everything else.
func (b *BaseAgent) ReceiveMessage(msg *core.Message) (*core.Message, error) {
	if msg.Type == core.MessageTaskRequest && msg.RequiresResponse {
		return core.NewMessage(b.id, msg.Sender, core.MessageStatusUpdate, map[string]interface{}{
			"agent_id": b.id,
			"status":   "acknowledged",
		}), nil
	}
	return nil, nil
}

func (b *BaseAgent) executeTool(ctx context.Context, name string, args map[string]interface{}) map[string]interface{} {
	return b.deps.Bridge.ExecuteTool(ctx, name, args)
}

// toolSucceeded reports whether a bridge result carries status success.
func toolSucceeded(result map[string]interface{}) bool {
	return result != nil && result["status"] == tools.StatusSuccess
}

func toolResult(result map[string]interface{}) map[string]interface{} {
	if inner, ok := result["result"].(map[string]interface{}); ok {
		return inner
	}
	return nil
}

// MemoryEnhanced decorates an agent with the memory hooks: it times
// the task, stores an episodic record of the outcome, updates the
// (agent, task type) learning metric, and extracts user preferences on
// success.
type MemoryEnhanced struct {
	inner    core.Agent
	taskType string
	memory   *memory.MemoryStore
	logger   core.Logger
}

// NewMemoryEnhanced wraps an agent. A nil store disables the hooks but
// keeps the agent usable.
func NewMemoryEnhanced(inner core.Agent, taskType string, store *memory.MemoryStore, logger core.Logger) *MemoryEnhanced {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &MemoryEnhanced{inner: inner, taskType: taskType, memory: store, logger: logger}
}

func (m *MemoryEnhanced) ID() string { return m.inner.ID() }

func (m *MemoryEnhanced) ReceiveMessage(msg *core.Message) (*core.Message, error) {
	return m.inner.ReceiveMessage(msg)
}

func (m *MemoryEnhanced) ExecuteTask(ctx context.Context, state *core.State) (map[string]interface{}, error) {
	start := time.Now()
	result, err := m.inner.ExecuteTask(ctx, state)
	elapsed := time.Since(start)

	success := err == nil && (result == nil || result["status"] != tools.StatusError)
	if m.memory != nil {
		importance := 0.7
		record := map[string]interface{}{
			"task_type":     m.taskType,
			"session_id":    state.SessionID,
			"user_id":       state.UserID,
			"success":       success,
			"response_time": elapsed.Seconds(),
		}
		if err != nil {
			importance = 0.9
			record["error"] = err.Error()
		}
		m.memory.Store(m.inner.ID(), memory.Episodic, record, importance, []string{"task_execution", m.taskType, state.SessionID})
		m.memory.LearnFromInteraction(m.inner.ID(), m.taskType, success, elapsed, state.Context)

		if success {
			m.learnPreferences(state, result)
		}
	}
	return result, err
}

// learnPreferences picks up preference hints a stage surfaced in its
// result under "preferences".
func (m *MemoryEnhanced) learnPreferences(state *core.State, result map[string]interface{}) {
	prefs, ok := result["preferences"].(map[string]interface{})
	if !ok {
		return
	}
	for prefType, value := range prefs {
		m.memory.LearnUserPreference(state.UserID, prefType, value, 0.6, state.SessionID)
	}
}

func successResult(extra map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{"status": tools.StatusSuccess}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func asStringList(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprintf("%v", e))
		}
		return out
	default:
		return nil
	}
}
