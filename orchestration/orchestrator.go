package orchestration

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tripmesh-ai/tripmesh/agents"
	"github.com/tripmesh-ai/tripmesh/core"
	"github.com/tripmesh-ai/tripmesh/memory"
	"github.com/tripmesh-ai/tripmesh/telemetry"
)

// Orchestrator is the single entry point: it builds the initial state,
// drives the graph, and shapes the response envelope.
type Orchestrator struct {
	pipeline *Pipeline
	memory   *memory.MemoryStore
	logger   core.Logger
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithRecursionLimit overrides the engine's node budget.
func WithRecursionLimit(limit int) Option {
	return func(o *Orchestrator) {
		o.pipeline.engine.recursionLimit = limit
	}
}

// NewOrchestrator wires the pipeline over the shared collaborators.
func NewOrchestrator(deps agents.Deps, opts ...Option) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	o := &Orchestrator{
		pipeline: NewPipeline(deps, DefaultRecursionLimit),
		memory:   deps.Memory,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RequestOptions carries the optional parts of a request.
type RequestOptions struct {
	SessionID  string
	SLASeconds float64
	Context    map[string]interface{}
}

// ProcessRequest runs one trip-planning request end to end and returns
// the response envelope.
func (o *Orchestrator) ProcessRequest(ctx context.Context, userRequest, userID string, opts *RequestOptions) map[string]interface{} {
	if opts == nil {
		opts = &RequestOptions{}
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	ctx, span := telemetry.StartSpan(ctx, "orchestrator.ProcessRequest",
		attribute.String("session_id", sessionID),
		attribute.String("user_id", userID))
	defer span.End()

	state := core.NewState(sessionID, userID, userRequest)
	state.SLASeconds = opts.SLASeconds
	for k, v := range opts.Context {
		state.Context[k] = v
	}
	if o.memory != nil {
		history := o.memory.GetConversationHistory(sessionID, userID, 10)
		if len(history) == 0 {
			history = o.memory.GetRecentConversations(userID, 24, 10)
		}
		state.ConversationHistory = history
		state.IsFollowUp = len(history) > 0
	}

	o.logger.Info("Processing request", map[string]interface{}{
		"operation":    "process_request",
		"session_id":   sessionID,
		"user_id":      userID,
		"is_follow_up": state.IsFollowUp,
	})

	if err := o.pipeline.Invoke(ctx, state); err != nil {
		telemetry.RecordSpanError(ctx, err)
		return o.invokeErrorEnvelope(state, err, opts)
	}

	envelope := o.buildEnvelope(state, opts)
	status, _ := envelope["status"].(string)
	telemetry.SetSpanAttributes(ctx,
		attribute.String("status", status),
		attribute.Int("processing_steps", len(state.ProcessingSteps)),
		attribute.StringSlice("agents_used", state.AgentsUsed()))
	o.persistOutcome(ctx, state, envelope)
	return envelope
}

// buildEnvelope shapes the success or stage-error envelope from the
// final state.
func (o *Orchestrator) buildEnvelope(state *core.State, opts *RequestOptions) map[string]interface{} {
	status, _ := state.FinalResponse["status"].(string)
	if status == "" {
		status = "error"
		state.FinalResponse["status"] = status
		state.FinalResponse["error"] = "no response produced"
	}

	envelope := map[string]interface{}{
		"status":      status,
		"response":    state.FinalResponse,
		"session_id":  state.SessionID,
		"agents_used": state.AgentsUsed(),
		"logging": map[string]interface{}{
			"context": o.loggingContext(state, opts, ""),
			"agents":  state.AgentStatuses,
		},
	}
	if insights, ok := state.Context["learning_insights"]; ok {
		envelope["learning_insights"] = insights
	} else {
		envelope["learning_insights"] = []map[string]interface{}{}
	}
	if status == "error" {
		if details, ok := state.FinalResponse["details"]; ok {
			envelope["details"] = details
		}
		if msg, ok := state.FinalResponse["error"].(string); ok {
			envelope["error"] = msg
		}
	}
	return envelope
}

// invokeErrorEnvelope covers engine-level failures such as the
// recursion limit, where the graph never reached the error handler.
func (o *Orchestrator) invokeErrorEnvelope(state *core.State, err error, opts *RequestOptions) map[string]interface{} {
	msg := "orchestration failed"
	if errors.Is(err, core.ErrRecursionLimit) {
		msg = "recursion limit exceeded"
	}
	o.logger.Error("Graph invocation failed", map[string]interface{}{
		"operation":  "process_request",
		"session_id": state.SessionID,
		"error":      err.Error(),
	})

	failed, _ := failedAgentIDs(state)
	return map[string]interface{}{
		"status":      "error",
		"error":       msg,
		"session_id":  state.SessionID,
		"agents_used": state.AgentsUsed(),
		"details": map[string]interface{}{
			"failed_agents": failed,
			"cause":         err.Error(),
		},
		"learning_insights": []map[string]interface{}{},
		"logging": map[string]interface{}{
			"context": o.loggingContext(state, opts, msg),
			"agents":  state.AgentStatuses,
		},
	}
}

// persistOutcome records the turn, the session memory, the response
// cache, and any preferences the pipeline surfaced. All of it is
// best-effort.
func (o *Orchestrator) persistOutcome(ctx context.Context, state *core.State, envelope map[string]interface{}) {
	if o.memory == nil {
		return
	}

	// The learning stage is skipped on the error-handler path; fold
	// the collected performance data here so failures still teach.
	if !containsAgent(state.AgentsUsed(), agents.LearningID) {
		o.pipeline.PersistLearning(ctx, state)
		envelope["learning_insights"] = state.Context["learning_insights"]
	}

	o.memory.StoreConversationTurn(state.SessionID, state.UserID, state.UserRequest, state.FinalResponse)

	o.memory.Store(state.SessionID, memory.Episodic, map[string]interface{}{
		"kind":         "session_summary",
		"session_id":   state.SessionID,
		"user_id":      state.UserID,
		"user_request": state.UserRequest,
		"status":       envelope["status"],
		"agents_used":  state.AgentsUsed(),
	}, 0.8, []string{"session", state.SessionID, state.UserID})

	if prefs, ok := state.FinalResponse["preferences"].(map[string]interface{}); ok {
		for prefType, value := range prefs {
			o.memory.LearnUserPreference(state.UserID, prefType, value, 0.6, state.SessionID)
		}
	}

	if envelope["status"] == "success" {
		o.saveCache(state)
	}
}

func (o *Orchestrator) saveCache(state *core.State) {
	coordination, ok := state.Context["coordination"].(map[string]interface{})
	if !ok {
		return
	}
	fp, _ := coordination["fingerprint"].(string)
	if fp == "" || coordination["cache_hit"] == true {
		return
	}
	taskType, _ := coordination["task_type"].(string)
	o.memory.SaveCachedResult(fp, state.UserID, taskType, state.UserRequest, map[string]interface{}{
		"research_data":  state.ResearchData,
		"final_response": state.FinalResponse,
	})
}

// loggingContextKeys are filled by scanning candidate maps in priority
// order; missing values default to an empty list or map.
var loggingListKeys = []string{"countries", "cities", "dates"}
var loggingMapKeys = []string{"travelers", "preferences", "budget_caps"}

func (o *Orchestrator) loggingContext(state *core.State, opts *RequestOptions, errMsg string) map[string]interface{} {
	lc := map[string]interface{}{
		"session_id":      state.SessionID,
		"user_id":         state.UserID,
		"is_follow_up":    state.IsFollowUp,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"target_currency": "EUR",
	}
	if errMsg != "" {
		lc["error"] = errMsg
	}

	candidates := []map[string]interface{}{
		state.FinalResponse,
		stateView(state),
	}
	if shared, ok := opts.Context["shared_data"].(map[string]interface{}); ok {
		candidates = append(candidates, shared)
	}

	for _, key := range loggingListKeys {
		lc[key] = firstValue(candidates, key, []interface{}{})
	}
	for _, key := range loggingMapKeys {
		lc[key] = firstValue(candidates, key, map[string]interface{}{})
	}
	if cur := firstValue(candidates, "target_currency", nil); cur != nil {
		lc["target_currency"] = cur
	}
	return lc
}

// stateView flattens the state buckets into one scannable candidate.
func stateView(state *core.State) map[string]interface{} {
	view := map[string]interface{}{
		"planning_data":  state.PlanningData,
		"research_data":  state.ResearchData,
		"budget_data":    state.BudgetData,
		"trip_data":      state.TripData,
		"final_response": state.FinalResponse,
	}
	// Common keys surface from the buckets they usually live in.
	if cities := state.ResearchData["cities"]; cities != nil {
		view["cities"] = cities
	}
	if interp, ok := state.PlanningData["interpretation"].(map[string]interface{}); ok {
		for _, key := range []string{"countries", "dates", "travelers", "preferences", "budget_caps", "target_currency"} {
			if v, has := interp[key]; has {
				view[key] = v
			}
		}
	}
	return view
}

func firstValue(candidates []map[string]interface{}, key string, fallback interface{}) interface{} {
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if v, ok := c[key]; ok && v != nil {
			return v
		}
	}
	return fallback
}

func failedAgentIDs(state *core.State) ([]string, bool) {
	var failed []string
	for agentID, st := range state.AgentStatuses {
		if st.Status == core.StatusError {
			failed = append(failed, agentID)
		}
	}
	return failed, len(failed) > 0
}

func containsAgent(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
