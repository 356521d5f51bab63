package orchestration

import (
	"context"
	"time"

	"github.com/tripmesh-ai/tripmesh/agents"
	"github.com/tripmesh-ai/tripmesh/core"
	"github.com/tripmesh-ai/tripmesh/memory"
)

// maxDrainSteps bounds the message pump per stage.
const maxDrainSteps = 6

// engineSender identifies the workflow engine in pump messages.
const engineSender = "workflow_engine"

// Pipeline wires the agents into the stage graph.
type Pipeline struct {
	engine   *Engine
	handlers map[string]core.MessageHandler
	gap      *agents.GapAgent
	deps     agents.Deps
	learning *agents.LearningAgent
}

// NewPipeline builds the full trip-planning graph over the given
// collaborators.
func NewPipeline(deps agents.Deps, recursionLimit int) *Pipeline {
	p := &Pipeline{
		handlers: make(map[string]core.MessageHandler),
		deps:     deps,
	}

	coordinator := agents.NewCoordinatorAgent(deps)
	planning := agents.NewPlanningAgent(deps)
	research := agents.NewResearchAgent(deps)
	p.gap = agents.NewGapAgent(deps)
	budget := agents.NewBudgetAgent(deps)
	response := agents.NewResponseAgent(deps)
	p.learning = agents.NewLearningAgent(deps)
	errorHandler := agents.NewErrorHandlerAgent(deps)

	all := []core.Agent{coordinator, planning, research, p.gap, budget, response, p.learning, errorHandler}
	for _, a := range all {
		p.handlers[a.ID()] = a
	}

	logger := deps.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	e := NewEngine(agents.CoordinatorID, recursionLimit, logger)
	e.AddStage(agents.CoordinatorID, p.stage(coordinator), func(*core.State) string { return agents.PlanningID })
	e.AddStage(agents.PlanningID, p.stage(planning), p.routeAfterPlanning)
	e.AddStage(agents.ResearchID, p.stage(research), p.routeAfterResearch)
	e.AddStage(agents.GapID, p.stage(p.gap), func(*core.State) string { return agents.BudgetID })
	e.AddStage(agents.BudgetID, p.stage(budget), p.routeAfterBudget)
	e.AddStage(agents.ResponseID, p.stage(response), func(*core.State) string { return agents.LearningID })
	e.AddStage(agents.LearningID, p.stage(p.learning), nil)
	e.AddStage(agents.ErrorHandlerID, p.stage(errorHandler), nil)
	p.engine = e
	return p
}

// Invoke drives one request through the graph.
func (p *Pipeline) Invoke(ctx context.Context, state *core.State) error {
	return p.engine.Invoke(ctx, state)
}

// Handlers exposes the agent registry for the message pump.
func (p *Pipeline) Handlers() map[string]core.MessageHandler {
	return p.handlers
}

// PersistLearning runs the learning stage out of band, used when the
// graph ended through the error handler.
func (p *Pipeline) PersistLearning(ctx context.Context, state *core.State) {
	if _, err := p.learning.ExecuteTask(ctx, state); err != nil {
		logger := p.deps.Logger
		if logger == nil {
			return
		}
		logger.Warn("Out-of-band learning pass failed", map[string]interface{}{
			"operation":  "persist_learning",
			"session_id": state.SessionID,
			"error":      err.Error(),
		})
	}
}

// stage adapts an agent into the stage contract: status transitions,
// audit log, memory hooks, the performance message, and a bounded
// queue drain. Panics inside an agent become an error status, never a
// crash.
func (p *Pipeline) stage(agent core.Agent) StageFunc {
	id := agent.ID()
	return func(ctx context.Context, state *core.State) error {
		state.CurrentAgent = id
		state.NextAgent = ""
		state.SetAgentStatus(id, core.StatusWorking, state.UserRequest, "")
		state.AddStep(id, "execute", nil)

		start := time.Now()
		var result map[string]interface{}
		var err error
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = core.PanicToError(r)
				}
			}()
			result, err = agent.ExecuteTask(ctx, state)
		}()
		elapsed := time.Since(start)

		success := err == nil && (result == nil || result["status"] != "error")
		if success {
			state.SetAgentStatus(id, core.StatusCompleted, "", "")
		} else {
			msg := "stage failed"
			if err != nil {
				msg = err.Error()
			} else if s, ok := result["error"].(string); ok {
				msg = s
			}
			state.SetAgentStatus(id, core.StatusError, "", msg)
		}

		p.recordEpisode(state, id, success, elapsed, err, result)

		// Performance telemetry rides below task traffic in the pump.
		core.Enqueue(state, core.NewMessage(engineSender, agents.LearningID, core.MessagePerformanceData, map[string]interface{}{
			"agent_id":      id,
			"task_type":     taskTypeOf(state),
			"success":       success,
			"response_time": elapsed.Seconds(),
			"context":       map[string]interface{}{"session_id": state.SessionID},
		}).WithPriority(core.PriorityLow))
		core.DrainQueue(state, p.handlers, maxDrainSteps)
		return nil
	}
}

// recordEpisode stores the stage outcome as episodic memory and picks
// up preference hints on success. Metrics are folded later by the
// learning stage from the performance messages.
func (p *Pipeline) recordEpisode(state *core.State, agentID string, success bool, elapsed time.Duration, err error, result map[string]interface{}) {
	if p.deps.Memory == nil {
		return
	}
	importance := 0.7
	record := map[string]interface{}{
		"task_type":     taskTypeOf(state),
		"session_id":    state.SessionID,
		"user_id":       state.UserID,
		"success":       success,
		"response_time": elapsed.Seconds(),
	}
	if !success {
		importance = 0.9
		if err != nil {
			record["error"] = err.Error()
		}
	}
	p.deps.Memory.Store(agentID, memory.Episodic, record, importance,
		[]string{"task_execution", taskTypeOf(state), state.SessionID})

	if success && result != nil {
		if prefs, ok := result["preferences"].(map[string]interface{}); ok {
			for prefType, value := range prefs {
				p.deps.Memory.LearnUserPreference(state.UserID, prefType, value, 0.6, state.SessionID)
			}
		}
	}
}

func taskTypeOf(state *core.State) string {
	if coordination, ok := state.Context["coordination"].(map[string]interface{}); ok {
		if t, ok := coordination["task_type"].(string); ok && t != "" {
			return t
		}
	}
	return "trip_planning"
}

// needsGap gates the single gap pass: completed requests and empty
// research data short-circuit before the detection scan runs.
func (p *Pipeline) needsGap(state *core.State) bool {
	if state.GapFillingCompleted {
		return false
	}
	if len(state.ResearchData) == 0 {
		return false
	}
	if state.GapFillingAttempts >= core.MaxGapFillingAttempts {
		return false
	}
	return len(p.gap.IdentifyMissingData(state)) > 0
}

func exhausted(state *core.State, agentID, reason string) string {
	state.SetAgentStatus(agentID, core.StatusError, "", reason)
	return agents.ErrorHandlerID
}
