package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/tripmesh-ai/tripmesh/core"
)

// MaxGapItems bounds how many missing fields one gap pass may chase.
const MaxGapItems = 8

// MissingItem describes one field the gap tool should fill.
type MissingItem struct {
	Path        string `json:"path"`
	Description string `json:"description"`
}

// GapAgent detects holes in the research data, asks the gap-filling
// tool for values, and patches them in place. It runs at most once per
// request; a tool failure degrades to neutral empty containers so the
// budget stage can still proceed.
type GapAgent struct {
	BaseAgent
}

func NewGapAgent(deps Deps) *GapAgent {
	return &GapAgent{BaseAgent: newBaseAgent(GapID, deps)}
}

func (a *GapAgent) ExecuteTask(ctx context.Context, state *core.State) (map[string]interface{}, error) {
	defer func() { state.GapFillingCompleted = true }()

	items := a.IdentifyMissingData(state)
	if len(items) == 0 {
		state.GapData["missing_items"] = 0
		return successResult(nil), nil
	}

	itemMaps := make([]interface{}, len(items))
	for i, item := range items {
		itemMaps[i] = map[string]interface{}{
			"path":        item.Path,
			"description": item.Description,
		}
	}

	raw := a.executeTool(ctx, "gap_data", map[string]interface{}{
		"missing":       itemMaps,
		"research_data": state.ResearchData,
		"user_request":  state.UserRequest,
	})

	patches := extractPatches(raw)
	fallback := false
	if !toolSucceeded(raw) || patches == nil {
		patches = neutralPatches(items)
		fallback = true
		a.deps.logger().Warn("Gap tool failed, applying neutral containers", map[string]interface{}{
			"operation":  "gap_fill",
			"session_id": state.SessionID,
			"error":      raw["error"],
			"items":      len(items),
		})
	}

	applied := 0
	for path, value := range patches {
		if err := ApplyPatch(state.ResearchData, path, value); err != nil {
			a.deps.logger().Warn("Patch application failed", map[string]interface{}{
				"operation": "gap_fill",
				"path":      path,
				"error":     err.Error(),
			})
			continue
		}
		applied++
	}

	state.GapData["missing_items"] = len(items)
	state.GapData["patches_applied"] = applied
	if fallback {
		state.GapData["fallback"] = true
	}

	return successResult(map[string]interface{}{
		"patches_applied": applied,
		"fallback":        fallback,
	}), nil
}

// IdentifyMissingData scans research categories whose upstream tool
// already ran and returns at most MaxGapItems items lacking price
// information. Empty research data short-circuits to nil.
func (a *GapAgent) IdentifyMissingData(state *core.State) []MissingItem {
	if len(state.ResearchData) == 0 {
		return nil
	}
	var items []MissingItem
	items = appendPOIGaps(items, state.ResearchData)
	items = appendRestaurantGaps(items, state.ResearchData)
	items = appendFareGaps(items, state.ResearchData)
	if len(items) > MaxGapItems {
		items = items[:MaxGapItems]
	}
	return items
}

func appendPOIGaps(items []MissingItem, research map[string]interface{}) []MissingItem {
	poi, ok := research["poi"].(map[string]interface{})
	if !ok {
		return items
	}
	switch byCity := poi["poi_by_city"].(type) {
	case []interface{}:
		for _, e := range byCity {
			em, ok := e.(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := em["name"].(string)
			if name == "" {
				continue
			}
			if _, has := em["price"]; !has {
				items = append(items, MissingItem{
					Path:        fmt.Sprintf("poi.poi_by_city[name=%s].price", name),
					Description: "missing price for point of interest " + name,
				})
			}
		}
	case map[string]interface{}:
		for city, entry := range byCity {
			cityMap, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			pois, ok := cityMap["pois"].([]interface{})
			if !ok {
				continue
			}
			for _, e := range pois {
				em, ok := e.(map[string]interface{})
				if !ok {
					continue
				}
				name, _ := em["name"].(string)
				if name == "" {
					continue
				}
				if _, has := em["price"]; !has {
					items = append(items, MissingItem{
						Path:        fmt.Sprintf("poi.poi_by_city.%s.pois[name=%s].price", city, name),
						Description: "missing price for point of interest " + name + " in " + city,
					})
				}
			}
		}
	}
	return items
}

func appendRestaurantGaps(items []MissingItem, research map[string]interface{}) []MissingItem {
	restaurants, ok := research["restaurants"].(map[string]interface{})
	if !ok {
		return items
	}
	byCity, ok := restaurants["restaurants_by_city"].([]interface{})
	if !ok {
		return items
	}
	for _, e := range byCity {
		em, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := em["name"].(string)
		if name == "" {
			continue
		}
		if _, has := em["price_range"]; !has {
			items = append(items, MissingItem{
				Path:        fmt.Sprintf("restaurants.restaurants_by_city[name=%s].price_range", name),
				Description: "missing price range for restaurant " + name,
			})
		}
	}
	return items
}

func appendFareGaps(items []MissingItem, research map[string]interface{}) []MissingItem {
	fares, ok := research["city_fares"].(map[string]interface{})
	if !ok {
		return items
	}
	list, ok := fares["fares"].([]interface{})
	if !ok {
		return items
	}
	for _, e := range list {
		em, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		city, _ := em["city"].(string)
		if city == "" {
			continue
		}
		if _, has := em["price"]; !has {
			items = append(items, MissingItem{
				Path:        fmt.Sprintf("city_fares.fares[city=%s].price", city),
				Description: "missing transit fare for " + city,
			})
		}
	}
	return items
}

// extractPatches digs the path→value patch map out of a gap tool
// result.
func extractPatches(raw map[string]interface{}) map[string]interface{} {
	payload := toolResult(raw)
	if payload == nil {
		return nil
	}
	if patches, ok := payload["patches"].(map[string]interface{}); ok {
		return patches
	}
	return nil
}

// pluralHints mark paths whose terminal value is collection-shaped.
var pluralHints = []string{"poi", "restaurants", "fares", "items", "list", "prices"}

// neutralPatches builds empty containers so downstream stages see the
// expected shape even though no data was obtained.
func neutralPatches(items []MissingItem) map[string]interface{} {
	patches := make(map[string]interface{}, len(items))
	for _, item := range items {
		patches[item.Path] = neutralValue(item.Path)
	}
	return patches
}

func neutralValue(path string) interface{} {
	lower := strings.ToLower(path)
	for _, hint := range pluralHints {
		if strings.Contains(lower, hint) {
			return []interface{}{}
		}
	}
	return map[string]interface{}{}
}
