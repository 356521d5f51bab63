package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/tripmesh-ai/tripmesh/core"
)

// ResponseAgent synthesizes the user-facing answer. The writer tool
// produces the narrative; when it is unavailable a deterministic
// summary is assembled from the buckets so the final response is never
// empty.
type ResponseAgent struct {
	BaseAgent
}

func NewResponseAgent(deps Deps) *ResponseAgent {
	return &ResponseAgent{BaseAgent: newBaseAgent(ResponseID, deps)}
}

func (a *ResponseAgent) ExecuteTask(ctx context.Context, state *core.State) (map[string]interface{}, error) {
	raw := a.executeTool(ctx, "writer_report", map[string]interface{}{
		"user_request":   state.UserRequest,
		"research_data":  state.ResearchData,
		"budget_data":    state.BudgetData,
		"trip_data":      state.TripData,
		"optimized_data": state.OptimizedData,
		"geocost_data":   state.GeoCostData,
		"gap_data":       state.GapData,
	})

	if toolSucceeded(raw) {
		if payload := toolResult(raw); payload != nil {
			for k, v := range payload {
				state.FinalResponse[k] = v
			}
		}
	}
	if _, ok := state.FinalResponse["response"]; !ok {
		state.FinalResponse["response"] = a.fallbackNarrative(state)
		state.FinalResponse["generated_by"] = "fallback_summary"
	}
	state.FinalResponse["status"] = "success"
	state.FinalResponse["session_id"] = state.SessionID
	if len(state.TripData) > 0 {
		state.FinalResponse["trip_data"] = state.TripData
	}
	if len(state.OptimizedData) > 0 {
		state.FinalResponse["optimized_data"] = state.OptimizedData
	}
	if cities := state.ResearchData["cities"]; cities != nil {
		state.FinalResponse["cities"] = cities
	}

	return successResult(nil), nil
}

// fallbackNarrative builds a plain-text itinerary summary from
// whatever the pipeline produced.
func (a *ResponseAgent) fallbackNarrative(state *core.State) string {
	var b strings.Builder
	cities := asStringList(state.ResearchData["cities"])
	switch {
	case len(cities) == 1:
		fmt.Fprintf(&b, "Trip plan for %s.", cities[0])
	case len(cities) > 1:
		fmt.Fprintf(&b, "Trip plan covering %s.", strings.Join(cities, ", "))
	default:
		b.WriteString("Trip plan for your request.")
	}
	if days := countTripDays(state.TripData); days > 0 {
		fmt.Fprintf(&b, " Itinerary spans %d day(s).", days)
	}
	if len(state.OptimizedData) > 0 {
		b.WriteString(" An optimized itinerary is included.")
	}
	if fallback, _ := state.GapData["fallback"].(bool); fallback {
		b.WriteString(" Some price details were unavailable.")
	}
	return b.String()
}

func countTripDays(trip map[string]interface{}) int {
	request, ok := trip["request"].(map[string]interface{})
	if !ok {
		return 0
	}
	inner, ok := request["trip"].(map[string]interface{})
	if !ok {
		return 0
	}
	days, ok := inner["days"].([]interface{})
	if !ok {
		return 0
	}
	return len(days)
}
