// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if !cfg.Agents.Claude.Enabled {
		t.Error("Claude should be enabled by default")
	}
	if cfg.Agents.Claude.CLIPath != "claude" {
		t.Errorf("Claude CLI path should be 'claude', got %s", cfg.Agents.Claude.CLIPath)
	}
	if cfg.Agents.Codex.Enabled {
		t.Error("Codex should be disabled by default")
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("MaxRetries should be 3, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BaseDelay != 1000 {
		t.Errorf("BaseDelay should be 1000, got %d", cfg.Retry.BaseDelay)
	}
	if cfg.Debate.WaitTimeout != 300 {
		t.Errorf("WaitTimeout should be 300, got %d", cfg.Debate.WaitTimeout)
	}
	if cfg.Debate.DefaultRounds != 3 {
		t.Errorf("DefaultRounds should be 3, got %d", cfg.Debate.DefaultRounds)
	}
	if cfg.Bus.History != 200 {
		t.Errorf("Bus history should be 200, got %d", cfg.Bus.History)
	}
	if cfg.Storage.Database == "" {
		t.Error("Database path should have a default")
	}
	if cfg.Telemetry.Endpoint != "" {
		t.Errorf("Telemetry should be off by default, got %s", cfg.Telemetry.Endpoint)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := loadPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("loadPath failed: %v", err)
	}
	if !cfg.Agents.Gemini.Enabled {
		t.Error("Expected default config for missing file")
	}
}

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_CLAUDE_BIN", "/opt/claude")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `agents:
  claude:
    enabled: true
    cli_path: ${TEST_CLAUDE_BIN}
    model: sonnet
  codex:
    enabled: true
    auto_accept: true
defaults:
  workdir: /src/project
retry:
  max_retries: 5
telemetry:
  endpoint: http://localhost:5965/event
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadPath(path)
	if err != nil {
		t.Fatalf("loadPath failed: %v", err)
	}

	if cfg.Agents.Claude.CLIPath != "/opt/claude" {
		t.Errorf("Expected env expansion, got %s", cfg.Agents.Claude.CLIPath)
	}
	if cfg.Agents.Codex.CLIPath != "codex" {
		t.Errorf("Expected codex cli_path default, got %s", cfg.Agents.Codex.CLIPath)
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Errorf("Expected max_retries 5, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BreakerThreshold != 3 {
		t.Errorf("Expected breaker default 3, got %d", cfg.Retry.BreakerThreshold)
	}
	if cfg.Telemetry.Endpoint != "http://localhost:5965/event" {
		t.Errorf("Expected telemetry endpoint from yaml, got %s", cfg.Telemetry.Endpoint)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(oldWD) })

	const key = "SWITCHBOARD_TEST_BIN"
	os.Unsetenv(key)
	t.Cleanup(func() { os.Unsetenv(key) })

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(key+"=/opt/claude-env\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	if _, err := Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := os.Getenv(key); got != "/opt/claude-env" {
		t.Errorf("Expected .env variable loaded, got %q", got)
	}

	// The loaded value feeds the usual ${VAR} expansion.
	path := filepath.Join(dir, "config.yaml")
	data := "agents:\n  claude:\n    enabled: true\n    cli_path: ${" + key + "}\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadPath(path)
	if err != nil {
		t.Fatalf("loadPath failed: %v", err)
	}
	if cfg.Agents.Claude.CLIPath != "/opt/claude-env" {
		t.Errorf("Expected expansion from .env value, got %s", cfg.Agents.Claude.CLIPath)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("agents: [not a map"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadPath(path); err == nil {
		t.Error("Expected error for malformed yaml")
	}
}

func TestAdapterOptions(t *testing.T) {
	cfg := defaultConfig()
	cfg.Agents.Claude.Model = "opus"
	cfg.Agents.Claude.AutoAccept = true
	cfg.Agents.Opencode.Enabled = true
	cfg.Defaults.Workdir = "/src"

	opts := cfg.AdapterOptions()
	if len(opts) != 3 {
		t.Fatalf("Expected 3 enabled agents, got %d", len(opts))
	}

	if opts[0].AgentID != "claude" || opts[1].AgentID != "gemini" || opts[2].AgentID != "opencode" {
		t.Errorf("Unexpected vendor order: %+v", opts)
	}
	if !opts[0].AutoAccept || opts[0].Model != "opus" || opts[0].WorkDir != "/src" {
		t.Errorf("Unexpected claude options: %+v", opts[0])
	}
	if opts[1].AutoAccept {
		t.Error("Expected gemini auto-accept off")
	}
}

func TestAdapterOptionsGlobalAutoAccept(t *testing.T) {
	cfg := defaultConfig()
	cfg.Defaults.AutoAccept = true

	opts := cfg.AdapterOptions()
	for _, o := range opts {
		if !o.AutoAccept {
			t.Errorf("Expected auto-accept from defaults for %s", o.AgentID)
		}
	}
}
