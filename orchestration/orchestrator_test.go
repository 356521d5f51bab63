package orchestration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripmesh-ai/tripmesh/agents"
	"github.com/tripmesh-ai/tripmesh/core"
	"github.com/tripmesh-ai/tripmesh/memory"
	"github.com/tripmesh-ai/tripmesh/tools"
)

func testDeps(t *testing.T) agents.Deps {
	t.Helper()
	bridge := tools.NewBridge(4, nil)
	t.Cleanup(bridge.Close)
	return agents.Deps{
		Bridge: bridge,
		Memory: memory.NewMemoryStore(),
	}
}

func fastFailPolicy() tools.Policy {
	return tools.Policy{
		Timeout:              time.Second,
		Retries:              0,
		BaseBackoff:          time.Millisecond,
		BackoffJitter:        0,
		CircuitFailThreshold: 100,
		CircuitOpen:          time.Second,
	}
}

func ok(payload map[string]interface{}) tools.ToolFunc {
	return func(args map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{"status": "success", "result": payload}
	}
}

func fail(msg string) tools.ToolFunc {
	return func(args map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{"status": "error", "error": msg}
	}
}

func registerHappyPathTools(deps agents.Deps) {
	deps.Bridge.RegisterTool("interpreter", ok(map[string]interface{}{
		"tools": []interface{}{"cities.recommender", "poi.discovery"},
	}))
	deps.Bridge.RegisterTool("city_recommender", ok(map[string]interface{}{
		"cities": []interface{}{"Paris"},
	}))
	deps.Bridge.RegisterTool("poi_discovery", ok(map[string]interface{}{
		"poi_by_city": map[string]interface{}{
			"Paris": map[string]interface{}{
				"pois": []interface{}{map[string]interface{}{"name": "Eiffel", "price": 28}},
			},
		},
	}))
	deps.Bridge.RegisterTool("trip_maker", ok(map[string]interface{}{
		"request": map[string]interface{}{
			"trip": map[string]interface{}{
				"days": []interface{}{map[string]interface{}{"date": "2025-06-01"}},
			},
		},
	}))
}

func TestHappyPathNoGapsNoSLA(t *testing.T) {
	deps := testDeps(t)
	registerHappyPathTools(deps)

	pipeline := NewPipeline(deps, 0)
	state := core.NewState("s1", "u1", "Plan 5 days in Paris for two adults")
	require.NoError(t, pipeline.Invoke(context.Background(), state))

	assert.Equal(t, "success", state.FinalResponse["status"])
	resp, _ := state.FinalResponse["response"].(string)
	assert.NotEmpty(t, resp, "final response text")

	used := state.AgentsUsed()
	for _, id := range []string{
		agents.CoordinatorID, agents.PlanningID, agents.ResearchID,
		agents.BudgetID, agents.ResponseID, agents.LearningID,
	} {
		assert.True(t, containsAgent(used, id), "agents_used missing %s: %v", id, used)
	}
	assert.Zero(t, state.ResearchRetries)
	assert.Zero(t, state.BudgetRetries)
	assert.False(t, state.GapFillingCompleted, "gap pass ran with no gaps")
}

func TestGapPathSinglePass(t *testing.T) {
	deps := testDeps(t)
	deps.Bridge.RegisterTool("interpreter", ok(map[string]interface{}{
		"tools": []interface{}{"cities.recommender", "poi.discovery"},
	}))
	deps.Bridge.RegisterTool("city_recommender", ok(map[string]interface{}{
		"cities": []interface{}{"Paris"},
	}))
	deps.Bridge.RegisterTool("poi_discovery", ok(map[string]interface{}{
		"poi_by_city": []interface{}{map[string]interface{}{"name": "Louvre"}},
	}))
	deps.Bridge.RegisterTool("gap_data", ok(map[string]interface{}{
		"patches": map[string]interface{}{
			"poi.poi_by_city[name=Louvre].price": map[string]interface{}{
				"adult": 17, "currency": "EUR",
			},
		},
	}))

	pipeline := NewPipeline(deps, 0)
	state := core.NewState("s2", "u1", "Paris museums")
	require.NoError(t, pipeline.Invoke(context.Background(), state))

	assert.Equal(t, 1, state.GapFillingAttempts)
	assert.True(t, state.GapFillingCompleted, "gap pass not marked completed")

	louvre := state.ResearchData["poi"].(map[string]interface{})["poi_by_city"].([]interface{})[0].(map[string]interface{})
	price, okCast := louvre["price"].(map[string]interface{})
	require.True(t, okCast, "patched price = %v", louvre["price"])
	assert.Equal(t, 17, price["adult"])
	assert.Equal(t, "EUR", price["currency"])

	// No trip data was ever produced, yet the gap stage must not be
	// re-entered.
	gapRuns := 0
	for _, step := range state.ProcessingSteps {
		if step.Agent == agents.GapID {
			gapRuns++
		}
	}
	assert.Equal(t, 1, gapRuns, "gap stage runs")
}

func TestSLAShortcutSkipsBudget(t *testing.T) {
	deps := testDeps(t)
	deps.Bridge.RegisterTool("interpreter", ok(map[string]interface{}{
		"tools": []interface{}{"cities.recommender", "poi.discovery"},
	}))
	deps.Bridge.RegisterTool("city_recommender", func(args map[string]interface{}) map[string]interface{} {
		time.Sleep(250 * time.Millisecond)
		return map[string]interface{}{
			"status": "success",
			"result": map[string]interface{}{"cities": []interface{}{"Tokyo"}},
		}
	})
	deps.Bridge.RegisterTool("poi_discovery", ok(map[string]interface{}{
		"poi_by_city": []interface{}{map[string]interface{}{"name": "Skytree", "price": 21}},
	}))
	deps.Bridge.RegisterTool("trip_maker", ok(map[string]interface{}{
		"request": map[string]interface{}{},
	}))

	pipeline := NewPipeline(deps, 0)
	state := core.NewState("s3", "u1", "Tokyo now")
	state.SLASeconds = 0.2

	require.NoError(t, pipeline.Invoke(context.Background(), state))

	assert.Equal(t, "success", state.FinalResponse["status"])
	assert.Empty(t, state.TripData, "budget ran despite shortcut")
	assert.False(t, containsAgent(state.AgentsUsed(), agents.BudgetID),
		"budget stage entered: %v", state.AgentsUsed())
}

func TestNoSLAMeansNoShortcut(t *testing.T) {
	deps := testDeps(t)
	registerHappyPathTools(deps)

	pipeline := NewPipeline(deps, 0)
	state := core.NewState("s4", "u1", "Paris, no deadline")

	require.NoError(t, pipeline.Invoke(context.Background(), state))
	assert.True(t, containsAgent(state.AgentsUsed(), agents.BudgetID),
		"budget stage skipped without an SLA")
}

func TestConversationContinuity(t *testing.T) {
	deps := testDeps(t)
	registerHappyPathTools(deps)

	o := NewOrchestrator(deps)
	opts := &RequestOptions{SessionID: "s5"}

	first := o.ProcessRequest(context.Background(), "Paris trip", "u1", opts)
	require.Equal(t, "success", first["status"], "first envelope = %v", first)
	second := o.ProcessRequest(context.Background(), "make it cheaper", "u1", opts)
	require.Equal(t, "success", second["status"], "second envelope = %v", second)

	lc := second["logging"].(map[string]interface{})["context"].(map[string]interface{})
	assert.Equal(t, true, lc["is_follow_up"], "second request not flagged as follow-up")

	turns := deps.Memory.GetConversationHistory("s5", "u1", 10)
	require.Len(t, turns, 2)
	assert.EqualValues(t, 2, turns[0]["conversation_turn_number"], "newest turn")
	assert.EqualValues(t, 1, turns[1]["conversation_turn_number"], "oldest turn")
}

func TestErrorEnvelopeOnExhaustedBudgetRetries(t *testing.T) {
	deps := testDeps(t)
	deps.Bridge.RegisterTool("interpreter", ok(map[string]interface{}{
		"tools": []interface{}{"cities.recommender"},
	}))
	deps.Bridge.RegisterTool("city_recommender", ok(map[string]interface{}{
		"cities": []interface{}{"Paris"},
	}))
	deps.Bridge.RegisterTool("trip_maker", fail("cost service down"))
	deps.Bridge.SetPolicy("trip_maker", fastFailPolicy())

	pipeline := NewPipeline(deps, 0)
	state := core.NewState("s6", "u1", "Paris on a budget")
	require.NoError(t, pipeline.Invoke(context.Background(), state))

	assert.Equal(t, core.MaxBudgetRetries, state.BudgetRetries)
	assert.Equal(t, "error", state.FinalResponse["status"])
	details := state.FinalResponse["details"].(map[string]interface{})
	failed := details["failed_agents"].([]string)
	assert.Equal(t, []string{agents.BudgetID}, failed)
}

func TestProcessRequestErrorEnvelope(t *testing.T) {
	deps := testDeps(t)
	deps.Bridge.RegisterTool("interpreter", ok(map[string]interface{}{
		"tools": []interface{}{"cities.recommender"},
	}))
	deps.Bridge.RegisterTool("city_recommender", ok(map[string]interface{}{
		"cities": []interface{}{"Paris"},
	}))
	deps.Bridge.RegisterTool("trip_maker", fail("down"))
	deps.Bridge.SetPolicy("trip_maker", fastFailPolicy())

	o := NewOrchestrator(deps)
	envelope := o.ProcessRequest(context.Background(), "Paris", "u1", nil)

	require.Equal(t, "error", envelope["status"], "envelope = %v", envelope)
	details := envelope["details"].(map[string]interface{})
	failed := details["failed_agents"].([]string)
	assert.Equal(t, []string{agents.BudgetID}, failed)
	assert.NotEmpty(t, envelope["session_id"], "session id missing from error envelope")
}

func TestRecursionLimitEnvelope(t *testing.T) {
	deps := testDeps(t)
	registerHappyPathTools(deps)

	o := NewOrchestrator(deps, WithRecursionLimit(2))
	envelope := o.ProcessRequest(context.Background(), "Paris", "u1", nil)

	require.Equal(t, "error", envelope["status"], "envelope = %v", envelope)
	assert.Equal(t, "recursion limit exceeded", envelope["error"])
}

func TestEnvelopeShapeOnSuccess(t *testing.T) {
	deps := testDeps(t)
	registerHappyPathTools(deps)

	o := NewOrchestrator(deps)
	envelope := o.ProcessRequest(context.Background(), "Plan Paris", "u1", &RequestOptions{SessionID: "s7"})

	require.Equal(t, "success", envelope["status"], "envelope = %v", envelope)
	assert.Equal(t, "s7", envelope["session_id"])
	_, okCast := envelope["learning_insights"].([]map[string]interface{})
	assert.True(t, okCast, "learning insights = %T", envelope["learning_insights"])

	lc := envelope["logging"].(map[string]interface{})["context"].(map[string]interface{})
	for _, key := range []string{"countries", "cities", "dates", "travelers", "preferences", "budget_caps", "target_currency"} {
		assert.Contains(t, lc, key, "logging context")
	}
	cities, _ := lc["cities"].([]interface{})
	require.Len(t, cities, 1, "logging cities = %v", lc["cities"])
	assert.Equal(t, "Paris", cities[0])
}

func TestPerformanceMessagesCarryLowPriority(t *testing.T) {
	deps := testDeps(t)
	registerHappyPathTools(deps)

	pipeline := NewPipeline(deps, 0)
	state := core.NewState("s8", "u1", "Paris weekend")
	require.NoError(t, pipeline.Invoke(context.Background(), state))

	seen := 0
	for _, msg := range state.MessageHistory {
		if msg.Type != core.MessagePerformanceData {
			continue
		}
		seen++
		assert.Equal(t, core.PriorityLow, msg.Priority, "performance message from %v", msg.Content["agent_id"])
	}
	assert.NotZero(t, seen, "no performance messages recorded")
}

func TestEngineUnknownStage(t *testing.T) {
	e := NewEngine("missing", 10, nil)
	err := e.Invoke(context.Background(), core.NewState("s", "u", "r"))
	assert.True(t, errors.Is(err, core.ErrUnknownStage), "err = %v", err)
}

func TestEngineRecursionLimit(t *testing.T) {
	e := NewEngine("loop", 5, nil)
	e.AddStage("loop", func(ctx context.Context, s *core.State) error { return nil },
		func(*core.State) string { return "loop" })

	err := e.Invoke(context.Background(), core.NewState("s", "u", "r"))
	assert.True(t, errors.Is(err, core.ErrRecursionLimit), "err = %v", err)
}
