package agents

import (
	"context"

	"github.com/tripmesh-ai/tripmesh/core"
)

// budgetPhaseTools lists the budget-phase pipeline in execution order.
// Each tool feeds the next; trip_maker produces the deliverable.
var budgetPhaseTools = []string{"discoveries_costs", "city_graph", "optimizer", "trip_maker"}

// BudgetAgent turns research data into a costed, optimized itinerary.
// It runs the cost aggregation, city-graph, optimizer, and trip-maker
// tools in order; producing either trip data or optimized data counts
// as success. When neither materializes it asks the router for a
// bounded retry.
type BudgetAgent struct {
	BaseAgent
}

func NewBudgetAgent(deps Deps) *BudgetAgent {
	return &BudgetAgent{BaseAgent: newBaseAgent(BudgetID, deps)}
}

func (a *BudgetAgent) ExecuteTask(ctx context.Context, state *core.State) (map[string]interface{}, error) {
	args := map[string]interface{}{
		"user_request":  state.UserRequest,
		"research_data": state.ResearchData,
		"planning_data": state.PlanningData,
		"gap_data":      state.GapData,
	}
	if caps, ok := state.Context["budget_caps"]; ok {
		args["budget_caps"] = caps
	}

	var failed []string
	for _, name := range a.plannedBudgetTools(state) {
		raw := a.executeTool(ctx, name, args)
		if !toolSucceeded(raw) {
			failed = append(failed, name)
			a.deps.logger().Warn("Budget tool failed", map[string]interface{}{
				"operation":  "budget",
				"session_id": state.SessionID,
				"tool":       name,
				"error":      raw["error"],
			})
			continue
		}
		a.merge(state, name, raw)
		// Later tools consume earlier outputs.
		args["geocost_data"] = state.GeoCostData
		args["budget_data"] = state.BudgetData
		args["optimized_data"] = state.OptimizedData
	}

	if len(failed) > 0 {
		state.BudgetData["failed_tools"] = failed
	}

	if len(state.TripData) > 0 || len(state.OptimizedData) > 0 {
		return successResult(map[string]interface{}{
			"trip_ready": len(state.TripData) > 0,
		}), nil
	}

	// Nothing usable came out; the router decides whether a retry
	// budget remains.
	state.NextAgent = BudgetID
	return successResult(map[string]interface{}{
		"retry_requested": true,
		"failed_tools":    failed,
	}), nil
}

// plannedBudgetTools honors an explicit tool plan when it names budget
// tools, falling back to the full phase otherwise.
func (a *BudgetAgent) plannedBudgetTools(state *core.State) []string {
	var planned []string
	for _, name := range state.ToolPlan {
		if containsString(budgetPhaseTools, name) {
			planned = append(planned, name)
		}
	}
	if len(planned) == 0 {
		planned = append([]string(nil), budgetPhaseTools...)
	}
	if a.deps.Bridge != nil {
		kept := planned[:0]
		for _, name := range planned {
			if a.deps.Bridge.HasTool(name) {
				kept = append(kept, name)
			}
		}
		planned = kept
	}
	return planned
}

func (a *BudgetAgent) merge(state *core.State, tool string, raw map[string]interface{}) {
	payload := toolResult(raw)
	if payload == nil {
		return
	}
	switch tool {
	case "discoveries_costs":
		for k, v := range payload {
			state.GeoCostData[k] = v
		}
	case "city_graph":
		state.BudgetData["city_graph"] = payload
	case "optimizer":
		for k, v := range payload {
			state.OptimizedData[k] = v
		}
	case "trip_maker":
		for k, v := range payload {
			state.TripData[k] = v
		}
	}
}
