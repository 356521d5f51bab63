package agents

import (
	"context"

	"github.com/tripmesh-ai/tripmesh/core"
)

// interpreterToolMap translates the interpreter's high-level tokens to
// canonical tool identifiers.
var interpreterToolMap = map[string]string{
	"cities.recommender":    "city_recommender",
	"poi.discovery":         "poi_discovery",
	"restaurants.discovery": "restaurants_discovery",
	"fares.city":            "city_fare",
	"fares.intercity":       "intercity_fare",
	"fx.oracle":             "currency",
}

// defaultToolPlan keeps the pipeline moving when the interpreter is
// unavailable or returns nothing usable.
var defaultToolPlan = []string{
	"city_recommender",
	"poi_discovery",
	"restaurants_discovery",
	"city_fare",
	"currency",
}

// PlanningAgent runs the interpreter over the raw request and turns
// its token list into the ordered tool plan the research and budget
// stages execute.
type PlanningAgent struct {
	BaseAgent
}

func NewPlanningAgent(deps Deps) *PlanningAgent {
	return &PlanningAgent{BaseAgent: newBaseAgent(PlanningID, deps)}
}

func (a *PlanningAgent) ExecuteTask(ctx context.Context, state *core.State) (map[string]interface{}, error) {
	args := map[string]interface{}{
		"user_request":         state.UserRequest,
		"user_id":              state.UserID,
		"context":              state.Context,
		"conversation_history": state.ConversationHistory,
	}
	raw := a.executeTool(ctx, "interpreter", args)

	if !toolSucceeded(raw) {
		a.deps.logger().Warn("Interpreter unavailable, using default plan", map[string]interface{}{
			"operation":  "plan",
			"session_id": state.SessionID,
			"error":      raw["error"],
		})
		state.ToolPlan = append([]string(nil), defaultToolPlan...)
		state.PlanningData["tool_plan"] = state.ToolPlan
		state.PlanningData["interpreter_fallback"] = true
		return successResult(map[string]interface{}{"interpreter_fallback": true}), nil
	}

	interpretation := toolResult(raw)
	plan := a.buildToolPlan(interpretation)
	if len(plan) == 0 {
		plan = append([]string(nil), defaultToolPlan...)
		state.PlanningData["interpreter_fallback"] = true
	}

	state.ToolPlan = plan
	state.PlanningData["interpretation"] = interpretation
	state.PlanningData["tool_plan"] = plan

	if prefs, ok := interpretation["preferences"].(map[string]interface{}); ok {
		state.PlanningData["preferences"] = prefs
		return successResult(map[string]interface{}{
			"tool_plan":   plan,
			"preferences": prefs,
		}), nil
	}
	return successResult(map[string]interface{}{"tool_plan": plan}), nil
}

// buildToolPlan maps interpreter tokens to canonical identifiers,
// preserving order and accepting already-canonical names as-is.
func (a *PlanningAgent) buildToolPlan(interpretation map[string]interface{}) []string {
	if interpretation == nil {
		return nil
	}
	tokens := asStringList(interpretation["tools"])
	var plan []string
	seen := make(map[string]bool)
	for _, token := range tokens {
		name, ok := interpreterToolMap[token]
		if !ok {
			name = token
		}
		if name == "" || seen[name] {
			continue
		}
		if a.deps.Bridge != nil && !a.deps.Bridge.HasTool(name) {
			a.deps.logger().Debug("Planned tool not registered, skipping", map[string]interface{}{
				"operation": "plan",
				"tool":      name,
			})
			continue
		}
		seen[name] = true
		plan = append(plan, name)
	}
	return plan
}
