// Package tools implements the tool-execution bridge: a registry of
// named tool callables executed with per-tool timeouts, bounded retries
// with jittered exponential backoff, and a per-tool circuit breaker.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tripmesh-ai/tripmesh/core"
	"github.com/tripmesh-ai/tripmesh/resilience"
	"github.com/tripmesh-ai/tripmesh/telemetry"
)

// Tool result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// ToolFunc is a registered tool callable. The returned map must carry a
// "status" key with value "success" or "error". Tools are expected to
// be idempotent modulo external side effects; the bridge retries them
// freely.
type ToolFunc func(args map[string]interface{}) map[string]interface{}

// Policy is the per-tool execution policy.
type Policy struct {
	Timeout              time.Duration
	Retries              int // total attempts = Retries + 1
	BaseBackoff          time.Duration
	BackoffJitter        time.Duration
	CircuitFailThreshold int
	CircuitOpen          time.Duration
}

// DefaultPolicy returns the bridge-wide defaults.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:              45 * time.Second,
		Retries:              2,
		BaseBackoff:          time.Second,
		BackoffJitter:        300 * time.Millisecond,
		CircuitFailThreshold: 3,
		CircuitOpen:          60 * time.Second,
	}
}

// PolicyFromConfig converts the config representation. Duration and
// threshold fields left zero fall back to the bridge defaults; Retries
// is taken as written, so zero means a single attempt.
func PolicyFromConfig(c core.ToolPolicyConfig) Policy {
	p := DefaultPolicy()
	if c.TimeoutSec > 0 {
		p.Timeout = time.Duration(c.TimeoutSec * float64(time.Second))
	}
	if c.Retries >= 0 {
		p.Retries = c.Retries
	}
	if c.BaseBackoffSec > 0 {
		p.BaseBackoff = time.Duration(c.BaseBackoffSec * float64(time.Second))
	}
	if c.BackoffJitterSec > 0 {
		p.BackoffJitter = time.Duration(c.BackoffJitterSec * float64(time.Second))
	}
	if c.CircuitFailThreshold > 0 {
		p.CircuitFailThreshold = c.CircuitFailThreshold
	}
	if c.CircuitOpenSec > 0 {
		p.CircuitOpen = time.Duration(c.CircuitOpenSec * float64(time.Second))
	}
	return p
}

// Bridge executes registered tools. It is process-wide: the registry,
// policies, and breakers are shared across concurrent requests.
type Bridge struct {
	mu       sync.RWMutex
	tools    map[string]ToolFunc
	policies map[string]Policy
	breakers map[string]*resilience.CircuitBreaker

	defaultPolicy Policy
	pool          *WorkerPool
	logger        core.Logger
}

// NewBridge creates a bridge with its own worker pool.
func NewBridge(poolSize int, logger core.Logger) *Bridge {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Bridge{
		tools:         make(map[string]ToolFunc),
		policies:      make(map[string]Policy),
		breakers:      make(map[string]*resilience.CircuitBreaker),
		defaultPolicy: DefaultPolicy(),
		pool:          NewWorkerPool(poolSize, logger),
		logger:        logger,
	}
}

// NewBridgeFromConfig builds a bridge honoring config defaults and the
// per-tool policy overrides.
func NewBridgeFromConfig(cfg *core.Config, logger core.Logger) *Bridge {
	b := NewBridge(cfg.PoolSize, logger)
	b.defaultPolicy = PolicyFromConfig(cfg.ToolPolicy)
	for name, pc := range cfg.ToolPolicies {
		b.SetPolicy(name, PolicyFromConfig(pc))
	}
	return b
}

// RegisterTool adds or replaces a tool callable.
func (b *Bridge) RegisterTool(name string, fn ToolFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tools[name] = fn
}

// SetPolicy overrides the per-tool defaults for one tool.
func (b *Bridge) SetPolicy(name string, policy Policy) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.policies[name] = policy
}

// HasTool reports whether a tool is registered.
func (b *Bridge) HasTool(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.tools[name]
	return ok
}

// BreakerState reports the breaker state for a tool ("closed" for
// tools that never failed).
func (b *Bridge) BreakerState(name string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if cb, ok := b.breakers[name]; ok {
		return cb.GetState().String()
	}
	return resilience.StateClosed.String()
}

// Close shuts down the worker pool.
func (b *Bridge) Close() {
	b.pool.Close()
}

func (b *Bridge) policyFor(name string, override *Policy) Policy {
	if override != nil {
		return *override
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if p, ok := b.policies[name]; ok {
		return p
	}
	return b.defaultPolicy
}

func (b *Bridge) breakerFor(name string) *resilience.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[name]
	if !ok {
		cb = resilience.NewCircuitBreaker(name)
		b.breakers[name] = cb
	}
	return cb
}

// ExecuteTool runs a tool under its policy and returns the tool-shaped
// result map. Errors never escape as Go errors; every outcome is a
// result map with a status.
func (b *Bridge) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) map[string]interface{} {
	return b.ExecuteToolWithPolicy(ctx, name, args, nil)
}

// ExecuteToolWithPolicy runs a tool with an optional policy override.
func (b *Bridge) ExecuteToolWithPolicy(ctx context.Context, name string, args map[string]interface{}, override *Policy) map[string]interface{} {
	b.mu.RLock()
	fn, known := b.tools[name]
	b.mu.RUnlock()

	if !known {
		return map[string]interface{}{
			"status": StatusError,
			"error":  fmt.Sprintf("unknown_tool:%s", name),
		}
	}

	policy := b.policyFor(name, override)
	breaker := b.breakerFor(name)

	if !breaker.CanExecute() {
		b.logger.Warn("Tool call rejected by open circuit", map[string]interface{}{
			"operation": "tool_execute",
			"tool":      name,
		})
		telemetry.AddSpanEvent(ctx, "tool_circuit_open", attribute.String("tool", name))
		return map[string]interface{}{
			"status": StatusSkipped,
			"error":  "circuit_open",
		}
	}

	tries := policy.Retries + 1
	var lastErr string
	var lastResult map[string]interface{}

	for attempt := 1; attempt <= tries; attempt++ {
		start := time.Now()
		result, err := b.runAttempt(fn, args, policy.Timeout)
		if err == nil && !hasValidStatus(result) {
			err = core.ErrToolShapeInvalid
		}

		switch {
		case err != nil:
			lastErr = toolErrText(err)
			lastResult = nil
		case result["status"] == StatusSuccess:
			breaker.RecordSuccess()
			b.logger.Debug("Tool call succeeded", map[string]interface{}{
				"operation":   "tool_execute",
				"tool":        name,
				"attempt":     attempt,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			return result
		default:
			if msg, ok := result["error"].(string); ok && msg != "" {
				lastErr = msg
			} else {
				lastErr = "tool_error"
			}
			lastResult = result
		}

		b.logger.Warn("Tool attempt failed", map[string]interface{}{
			"operation": "tool_execute",
			"tool":      name,
			"attempt":   attempt,
			"of":        tries,
			"error":     lastErr,
		})

		if attempt == tries {
			break
		}
		if err != nil && !core.IsRetryable(err) {
			break
		}

		delay := resilience.Backoff(policy.BaseBackoff, policy.BackoffJitter, attempt)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			lastErr = "runtime:" + ctx.Err().Error()
			attempt = tries // no more attempts after cancellation
		}
	}

	breaker.RecordFailure(policy.CircuitFailThreshold, policy.CircuitOpen)
	telemetry.AddSpanEvent(ctx, "tool_failed",
		attribute.String("tool", name),
		attribute.String("error", lastErr),
	)

	if lastResult != nil {
		// Tool-level error: pass the tool's own result through.
		lastResult["status"] = StatusError
		if _, ok := lastResult["error"]; !ok {
			lastResult["error"] = lastErr
		}
		return lastResult
	}
	return map[string]interface{}{
		"status": StatusError,
		"error":  lastErr,
	}
}

type attemptOutcome struct {
	result map[string]interface{}
	err    error
}

// runAttempt submits one call to the pool and waits at most timeout for
// queue space plus execution combined.
func (b *Bridge) runAttempt(fn ToolFunc, args map[string]interface{}, timeout time.Duration) (map[string]interface{}, error) {
	outcome := make(chan attemptOutcome, 1)
	deadline := time.Now().Add(timeout)

	wrapped := func() {
		defer func() {
			if r := recover(); r != nil {
				outcome <- attemptOutcome{err: fmt.Errorf("runtime:%v", r)}
			}
		}()
		outcome <- attemptOutcome{result: fn(args)}
	}

	if !b.pool.Submit(wrapped, time.Until(deadline)) {
		return nil, core.ErrToolTimeout
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case out := <-outcome:
		return out.result, out.err
	case <-timer.C:
		// The worker keeps running; its late write lands in the
		// buffered channel and is dropped with it.
		return nil, core.ErrToolTimeout
	}
}

// toolErrText maps attempt errors onto the stable strings tool result
// maps carry.
func toolErrText(err error) string {
	switch {
	case errors.Is(err, core.ErrToolTimeout):
		return "timeout"
	case errors.Is(err, core.ErrToolShapeInvalid):
		return "tool_return_shape_invalid"
	}
	return err.Error()
}

func hasValidStatus(result map[string]interface{}) bool {
	if result == nil {
		return false
	}
	status, ok := result["status"].(string)
	if !ok {
		return false
	}
	return status == StatusSuccess || status == StatusError || status == StatusSkipped
}
