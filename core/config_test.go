package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}

	if cfg.PoolSize != 12 {
		t.Errorf("Expected default pool size 12, got %d", cfg.PoolSize)
	}
	if cfg.RecursionLimit != 200 {
		t.Errorf("Expected default recursion limit 200, got %d", cfg.RecursionLimit)
	}
	if cfg.ToolPolicy.TimeoutSec != 45 {
		t.Errorf("Expected default tool timeout 45s, got %v", cfg.ToolPolicy.TimeoutSec)
	}
	if cfg.ToolPolicy.Retries != 2 {
		t.Errorf("Expected default retries 2, got %d", cfg.ToolPolicy.Retries)
	}
	if cfg.ToolPolicy.CircuitFailThreshold != 3 {
		t.Errorf("Expected default circuit threshold 3, got %d", cfg.ToolPolicy.CircuitFailThreshold)
	}
}

func TestNewConfigEnvironmentOverride(t *testing.T) {
	os.Setenv("TRIPMESH_POOL_SIZE", "4")
	os.Setenv("TRIPMESH_RECURSION_LIMIT", "50")
	defer os.Unsetenv("TRIPMESH_POOL_SIZE")
	defer os.Unsetenv("TRIPMESH_RECURSION_LIMIT")

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}
	if cfg.PoolSize != 4 {
		t.Errorf("Expected pool size 4 from env, got %d", cfg.PoolSize)
	}
	if cfg.RecursionLimit != 50 {
		t.Errorf("Expected recursion limit 50 from env, got %d", cfg.RecursionLimit)
	}
}

func TestNewConfigOptionsBeatEnvironment(t *testing.T) {
	os.Setenv("TRIPMESH_POOL_SIZE", "4")
	defer os.Unsetenv("TRIPMESH_POOL_SIZE")

	cfg, err := NewConfig(WithPoolSize(20))
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}
	if cfg.PoolSize != 20 {
		t.Errorf("Option should win over env, got %d", cfg.PoolSize)
	}
}

func TestNewConfigValidation(t *testing.T) {
	if _, err := NewConfig(WithPoolSize(0)); err == nil {
		t.Error("Expected validation error for zero pool size")
	}
	if _, err := NewConfig(WithRecursionLimit(-1)); err == nil {
		t.Error("Expected validation error for negative recursion limit")
	}
}

func TestLoadPolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	content := `
default:
  timeout_sec: 30
tools:
  optimizer:
    timeout_sec: 120
    retries: 1
  currency:
    circuit_fail_threshold: 5
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	os.Setenv("TRIPMESH_TOOL_POLICY_FILE", path)
	defer os.Unsetenv("TRIPMESH_TOOL_POLICY_FILE")

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}

	if cfg.ToolPolicy.TimeoutSec != 30 {
		t.Errorf("Expected default timeout 30 from file, got %v", cfg.ToolPolicy.TimeoutSec)
	}

	opt, ok := cfg.ToolPolicies["optimizer"]
	if !ok {
		t.Fatal("Expected optimizer override")
	}
	if opt.TimeoutSec != 120 || opt.Retries != 1 {
		t.Errorf("Optimizer override not applied: %+v", opt)
	}
	// Unset fields inherit the (file-adjusted) default.
	if opt.CircuitFailThreshold != 3 {
		t.Errorf("Expected inherited circuit threshold 3, got %d", opt.CircuitFailThreshold)
	}

	cur := cfg.ToolPolicies["currency"]
	if cur.CircuitFailThreshold != 5 {
		t.Errorf("Currency override not applied: %+v", cur)
	}
	if cur.TimeoutSec != 30 {
		t.Errorf("Currency should inherit timeout 30, got %v", cur.TimeoutSec)
	}
}

func TestLoadPolicyFileExplicitZeroRetries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	content := `
tools:
  interpreter:
    retries: 0
    timeout_sec: 5
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	os.Setenv("TRIPMESH_TOOL_POLICY_FILE", path)
	defer os.Unsetenv("TRIPMESH_TOOL_POLICY_FILE")

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}

	interp, ok := cfg.ToolPolicies["interpreter"]
	if !ok {
		t.Fatal("Expected interpreter override")
	}
	// An explicit zero disables retries; it must not inherit the
	// base's 2.
	if interp.Retries != 0 {
		t.Errorf("Expected retries 0 honored, got %d", interp.Retries)
	}
	if interp.TimeoutSec != 5 {
		t.Errorf("Expected timeout 5, got %v", interp.TimeoutSec)
	}
	if cfg.ToolPolicy.Retries != 2 {
		t.Errorf("Base policy changed: %d", cfg.ToolPolicy.Retries)
	}
}

func TestLoadPolicyFileMissing(t *testing.T) {
	os.Setenv("TRIPMESH_TOOL_POLICY_FILE", "/does/not/exist.yaml")
	defer os.Unsetenv("TRIPMESH_TOOL_POLICY_FILE")

	if _, err := NewConfig(); err == nil {
		t.Error("Expected error for missing policy file")
	}
}
