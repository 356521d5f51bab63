package agents

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tripmesh-ai/tripmesh/core"
	"github.com/tripmesh-ai/tripmesh/memory"
	"github.com/tripmesh-ai/tripmesh/tools"
)

func testDeps(t *testing.T) Deps {
	t.Helper()
	bridge := tools.NewBridge(2, nil)
	t.Cleanup(bridge.Close)
	return Deps{
		Bridge: bridge,
		Memory: memory.NewMemoryStore(),
	}
}

// fastFailPolicy keeps failing-tool tests quick.
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

func TestIdentifyMissingDataEmptyResearch(t *testing.T) {
	agent := NewGapAgent(testDeps(t))
	state := core.NewState("s1", "u1", "req")
	if items := agent.IdentifyMissingData(state); items != nil {
		t.Errorf("empty research data produced items: %v", items)
	}
}

func TestIdentifyMissingDataOnlyChecksPresentCategories(t *testing.T) {
	agent := NewGapAgent(testDeps(t))
	state := core.NewState("s1", "u1", "req")
	state.ResearchData["cities"] = []interface{}{"Paris"}
	state.ResearchData["poi"] = map[string]interface{}{
		"poi_by_city": []interface{}{
			map[string]interface{}{"name": "Louvre"},
			map[string]interface{}{"name": "Eiffel", "price": 28},
		},
	}

	items := agent.IdentifyMissingData(state)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1: %v", len(items), items)
	}
	if items[0].Path != "poi.poi_by_city[name=Louvre].price" {
		t.Errorf("path = %s", items[0].Path)
	}
}

func TestIdentifyMissingDataCapped(t *testing.T) {
	agent := NewGapAgent(testDeps(t))
	state := core.NewState("s1", "u1", "req")
	var pois []interface{}
	for i := 0; i < 12; i++ {
		pois = append(pois, map[string]interface{}{"name": fmt.Sprintf("poi-%d", i)})
	}
	state.ResearchData["poi"] = map[string]interface{}{"poi_by_city": pois}

	if items := agent.IdentifyMissingData(state); len(items) != MaxGapItems {
		t.Errorf("got %d items, want %d", len(items), MaxGapItems)
	}
}

func TestGapAppliesToolPatches(t *testing.T) {
	deps := testDeps(t)
	deps.Bridge.RegisterTool("gap_data", func(args map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"status": "success",
			"result": map[string]interface{}{
				"patches": map[string]interface{}{
					"poi.poi_by_city[name=Louvre].price": map[string]interface{}{
						"adult": 17, "currency": "EUR",
					},
				},
			},
		}
	})
	agent := NewGapAgent(deps)
	state := core.NewState("s1", "u1", "req")
	state.ResearchData["poi"] = map[string]interface{}{
		"poi_by_city": []interface{}{map[string]interface{}{"name": "Louvre"}},
	}

	result, err := agent.ExecuteTask(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	if result["status"] != "success" {
		t.Errorf("status = %v", result["status"])
	}
	if !state.GapFillingCompleted {
		t.Error("gap stage did not mark itself completed")
	}

	louvre := state.ResearchData["poi"].(map[string]interface{})["poi_by_city"].([]interface{})[0].(map[string]interface{})
	price, ok := louvre["price"].(map[string]interface{})
	if !ok || price["adult"] != 17 {
		t.Errorf("patched price = %v", louvre["price"])
	}
}

func TestGapSoftFailureSynthesizesNeutralContainers(t *testing.T) {
	deps := testDeps(t)
	deps.Bridge.RegisterTool("gap_data", func(args map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{"status": "error", "error": "upstream down"}
	})
	deps.Bridge.SetPolicy("gap_data", fastFailPolicy())

	agent := NewGapAgent(deps)
	state := core.NewState("s1", "u1", "req")
	state.ResearchData["poi"] = map[string]interface{}{
		"poi_by_city": []interface{}{map[string]interface{}{"name": "Louvre"}},
	}

	result, err := agent.ExecuteTask(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	if result["status"] != "success" {
		t.Errorf("soft failure must report success, got %v", result["status"])
	}
	if fb, _ := state.GapData["fallback"].(bool); !fb {
		t.Error("fallback flag not set")
	}
	if !state.GapFillingCompleted {
		t.Error("gap stage did not mark itself completed")
	}

	// A poi path gets an empty list, not a map.
	louvre := state.ResearchData["poi"].(map[string]interface{})["poi_by_city"].([]interface{})[0].(map[string]interface{})
	if price, ok := louvre["price"].([]interface{}); !ok || len(price) != 0 {
		t.Errorf("neutral container = %T %v", louvre["price"], louvre["price"])
	}
}

func TestNeutralValueShape(t *testing.T) {
	if _, ok := neutralValue("poi.x.price").([]interface{}); !ok {
		t.Error("poi path should get a list")
	}
	if _, ok := neutralValue("weather.summary").(map[string]interface{}); !ok {
		t.Error("non-plural path should get a map")
	}
}

func TestGapNoItemsIsNoOp(t *testing.T) {
	deps := testDeps(t)
	called := false
	deps.Bridge.RegisterTool("gap_data", func(args map[string]interface{}) map[string]interface{} {
		called = true
		return map[string]interface{}{"status": "success"}
	})
	agent := NewGapAgent(deps)
	state := core.NewState("s1", "u1", "req")
	state.ResearchData["cities"] = []interface{}{"Paris"}

	if _, err := agent.ExecuteTask(context.Background(), state); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("gap tool called with nothing missing")
	}
	if !state.GapFillingCompleted {
		t.Error("completed flag not set on no-op pass")
	}
}
