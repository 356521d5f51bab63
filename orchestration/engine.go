// Package orchestration drives the trip-planning pipeline: a fixed
// directed graph of agent stages with conditional routing, bounded
// retries, an SLA-aware shortcut, and a single-pass gap subroutine.
// The orchestrator facade is the module's entry point.
package orchestration

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tripmesh-ai/tripmesh/core"
	"github.com/tripmesh-ai/tripmesh/telemetry"
)

// StageEnd terminates the graph.
const StageEnd = "END"

// DefaultRecursionLimit bounds node entries per request.
const DefaultRecursionLimit = 200

// StageFunc performs one stage-bounded unit of work. It must not
// decide the transition; the router does.
type StageFunc func(ctx context.Context, state *core.State) error

// RouterFunc inspects the state after a stage and names the next
// stage, or StageEnd.
type RouterFunc func(state *core.State) string

// Engine drives a state through the stage graph.
type Engine struct {
	stages         map[string]StageFunc
	routers        map[string]RouterFunc
	entry          string
	recursionLimit int
	logger         core.Logger
}

// NewEngine creates an empty engine. limit <= 0 selects the default.
func NewEngine(entry string, limit int, logger core.Logger) *Engine {
	if limit <= 0 {
		limit = DefaultRecursionLimit
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Engine{
		stages:         make(map[string]StageFunc),
		routers:        make(map[string]RouterFunc),
		entry:          entry,
		recursionLimit: limit,
		logger:         logger,
	}
}

// AddStage registers a stage and its router. A nil router ends the
// graph after the stage.
func (e *Engine) AddStage(id string, fn StageFunc, router RouterFunc) {
	e.stages[id] = fn
	if router != nil {
		e.routers[id] = router
	}
}

// Invoke runs the graph to completion. The recursion limit counts
// stage entries; exceeding it returns a structured error.
func (e *Engine) Invoke(ctx context.Context, state *core.State) error {
	ctx, span := telemetry.StartSpan(ctx, "engine.Invoke",
		attribute.String("session_id", state.SessionID))
	defer span.End()

	current := e.entry
	for steps := 0; current != StageEnd; {
		steps++
		if steps > e.recursionLimit {
			err := &core.OrchestrationError{
				Op:   "engine.Invoke",
				Kind: "engine",
				ID:   current,
				Err:  core.ErrRecursionLimit,
			}
			telemetry.RecordSpanError(ctx, err)
			return err
		}

		fn, ok := e.stages[current]
		if !ok {
			err := &core.OrchestrationError{
				Op:   "engine.Invoke",
				Kind: "engine",
				ID:   current,
				Err:  core.ErrUnknownStage,
			}
			telemetry.RecordSpanError(ctx, err)
			return err
		}

		e.logger.Debug("Entering stage", map[string]interface{}{
			"operation":  "invoke",
			"session_id": state.SessionID,
			"stage":      current,
			"step":       steps,
		})
		telemetry.AddSpanEvent(ctx, "stage", attribute.String("stage", current))

		if err := fn(ctx, state); err != nil {
			telemetry.RecordSpanError(ctx, err)
			return err
		}

		router, ok := e.routers[current]
		if !ok {
			break
		}
		current = router(state)
	}
	return nil
}
