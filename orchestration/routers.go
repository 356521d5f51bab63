package orchestration

import (
	"time"

	"github.com/tripmesh-ai/tripmesh/agents"
	"github.com/tripmesh-ai/tripmesh/core"
)

// The router predicates own the routing counters: a retry is counted
// when it is granted, and exhausting a budget marks the agent failed
// before handing off to the error handler.

func (p *Pipeline) routeAfterPlanning(state *core.State) string {
	if state.AgentStatusOf(agents.PlanningID) == core.StatusError {
		return agents.ErrorHandlerID
	}
	return agents.ResearchID
}

func (p *Pipeline) routeAfterResearch(state *core.State) string {
	if state.AgentStatusOf(agents.ResearchID) == core.StatusError {
		return agents.ErrorHandlerID
	}
	if p.needsGap(state) {
		state.GapFillingAttempts++
		return agents.GapID
	}
	if p.slaShortcut(state) {
		return agents.ResponseID
	}
	switch state.NextAgent {
	case agents.ResearchID:
		if state.ResearchRetries < core.MaxResearchRetries {
			state.ResearchRetries++
			return agents.ResearchID
		}
		return exhausted(state, agents.ResearchID, "research retries exhausted")
	case agents.BudgetID:
		return agents.BudgetID
	case agents.ResponseID:
		return agents.ResponseID
	}
	return agents.BudgetID
}

func (p *Pipeline) routeAfterBudget(state *core.State) string {
	if state.AgentStatusOf(agents.BudgetID) == core.StatusError {
		return agents.ErrorHandlerID
	}
	if len(state.TripData) > 0 || len(state.OptimizedData) > 0 {
		return agents.ResponseID
	}
	if p.needsGap(state) {
		state.GapFillingAttempts++
		return agents.GapID
	}
	if state.NextAgent == agents.BudgetID {
		if state.BudgetRetries < core.MaxBudgetRetries {
			state.BudgetRetries++
			return agents.BudgetID
		}
		return exhausted(state, agents.BudgetID, "budget retries exhausted")
	}
	return agents.ResponseID
}

// slaShortcut skips the budget stage when the request is running close
// to its deadline and the research data is minimally usable: cities
// plus any of poi, city fares, or restaurants.
func (p *Pipeline) slaShortcut(state *core.State) bool {
	if state.SLASeconds <= 0 {
		return false
	}
	threshold := time.Duration(0.9 * state.SLASeconds * float64(time.Second))
	if state.Elapsed() <= threshold {
		return false
	}
	if state.ResearchData["cities"] == nil {
		return false
	}
	return state.ResearchData["poi"] != nil ||
		state.ResearchData["city_fares"] != nil ||
		state.ResearchData["restaurants"] != nil
}
