package agents

import (
	"context"
	"sync"

	"github.com/tripmesh-ai/tripmesh/core"
	"github.com/tripmesh-ai/tripmesh/memory"
)

// researchBuckets maps research-phase tools to their slot inside the
// research data bucket.
var researchBuckets = map[string]string{
	"city_recommender":      "cities",
	"poi_discovery":         "poi",
	"restaurants_discovery": "restaurants",
	"city_fare":             "city_fares",
	"intercity_fare":        "intercity_fares",
	"currency":              "fx",
}

// ResearchAgent fans the planned discovery tools out through the
// bridge and merges their results into the research bucket. The city
// recommendation runs first so the remaining tools can be scoped to
// the recommended cities; those run concurrently.
type ResearchAgent struct {
	BaseAgent
}

func NewResearchAgent(deps Deps) *ResearchAgent {
	return &ResearchAgent{BaseAgent: newBaseAgent(ResearchID, deps)}
}

func (a *ResearchAgent) ExecuteTask(ctx context.Context, state *core.State) (map[string]interface{}, error) {
	if a.seedFromCache(state) {
		return successResult(map[string]interface{}{"cache": true}), nil
	}

	planned := a.plannedResearchTools(state)
	if len(planned) == 0 {
		planned = []string{"city_recommender", "poi_discovery"}
	}

	succeeded := 0
	if containsString(planned, "city_recommender") {
		if a.runTool(ctx, state, "city_recommender", nil) {
			succeeded++
		}
		planned = removeString(planned, "city_recommender")
	}

	cities := asStringList(state.ResearchData["cities"])
	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		wins  int
		fails []string
	)
	for _, name := range planned {
		wg.Add(1)
		go func(tool string) {
			defer wg.Done()
			args := map[string]interface{}{
				"user_request":  state.UserRequest,
				"planning_data": state.PlanningData,
				"cities":        cities,
			}
			raw := a.executeTool(ctx, tool, args)
			mu.Lock()
			defer mu.Unlock()
			if toolSucceeded(raw) {
				a.merge(state, tool, raw)
				wins++
			} else {
				fails = append(fails, tool)
			}
		}(name)
	}
	wg.Wait()
	succeeded += wins

	if len(fails) > 0 {
		state.ResearchData["failed_tools"] = fails
		a.deps.logger().Warn("Research tools failed", map[string]interface{}{
			"operation":  "research",
			"session_id": state.SessionID,
			"failed":     fails,
		})
	}

	if len(asStringList(state.ResearchData["cities"])) == 0 {
		// No city set means nothing downstream can work with the
		// results; ask the router for another research pass.
		state.NextAgent = ResearchID
		return successResult(map[string]interface{}{
			"retry_requested": true,
			"tools_succeeded": succeeded,
		}), nil
	}

	return successResult(map[string]interface{}{"tools_succeeded": succeeded}), nil
}

// seedFromCache replays a cached result into the research bucket.
func (a *ResearchAgent) seedFromCache(state *core.State) bool {
	cached, ok := state.Context["cached_result"].(map[string]interface{})
	if !ok {
		return false
	}
	research, ok := cached["research_data"].(map[string]interface{})
	if !ok || len(research) == 0 {
		return false
	}
	for k, v := range memory.DeepCopyMap(research) {
		state.ResearchData[k] = v
	}
	return true
}

func (a *ResearchAgent) plannedResearchTools(state *core.State) []string {
	var planned []string
	for _, name := range state.ToolPlan {
		if _, ok := researchBuckets[name]; ok {
			planned = append(planned, name)
		}
	}
	return planned
}

// runTool executes one research tool synchronously and merges on
// success.
func (a *ResearchAgent) runTool(ctx context.Context, state *core.State, name string, cities []string) bool {
	args := map[string]interface{}{
		"user_request":  state.UserRequest,
		"planning_data": state.PlanningData,
	}
	if cities != nil {
		args["cities"] = cities
	}
	raw := a.executeTool(ctx, name, args)
	if !toolSucceeded(raw) {
		return false
	}
	a.merge(state, name, raw)
	return true
}

// merge places a tool's payload into its research slot. The city
// recommender is special-cased to a plain list of city names.
func (a *ResearchAgent) merge(state *core.State, tool string, raw map[string]interface{}) {
	slot := researchBuckets[tool]
	payload := toolResult(raw)
	if tool == "city_recommender" {
		if payload != nil {
			if cities := payload["cities"]; cities != nil {
				state.ResearchData[slot] = cities
				return
			}
		}
		if cities := raw["result"]; cities != nil {
			state.ResearchData[slot] = cities
		}
		return
	}
	if payload != nil {
		state.ResearchData[slot] = payload
	} else if raw["result"] != nil {
		state.ResearchData[slot] = raw["result"]
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
