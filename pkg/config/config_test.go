package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	setHomeEnv(t, t.TempDir())
	clearAPIKeys(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Limits.MaxDesignIterations != 3 || cfg.Limits.MaxCodeIterations != 2 || cfg.Limits.MaxToolRounds != 5 {
		t.Fatalf("unexpected limits: %+v", cfg.Limits)
	}
	if !cfg.RuntimeCheck.Static {
		t.Fatalf("expected static checks enabled by default")
	}
	if cfg.RoutingConfig == nil || cfg.RoutingConfig.Route("coder").Adapter != "anthropic" {
		t.Fatalf("expected default routing, got %+v", cfg.RoutingConfig)
	}
	if cfg.ConfigDir == "" {
		t.Fatalf("expected config dir")
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	home := t.TempDir()
	setHomeEnv(t, home)
	clearAPIKeys(t)

	configDir := filepath.Join(home, ".gameforge")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	data := []byte(`
api_keys:
  anthropic: file-ant
  openai: file-openai
limits:
  max_code_iterations: 4
  oracle_timeout: 45s
runtime_check:
  command: ["node", "check.js", "{file}"]
  static: false
server:
  port: 9000
`)
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("OPENAI_API_KEY", "env-openai")
	t.Setenv("GAMEFORGE_RUNTIME_CHECK_TIMEOUT", "5s")
	t.Setenv("GAMEFORGE_LIMITS_MAX_TOOL_ROUNDS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKeys.Anthropic != "file-ant" {
		t.Fatalf("expected file anthropic key, got %q", cfg.APIKeys.Anthropic)
	}
	if cfg.APIKeys.OpenAI != "env-openai" {
		t.Fatalf("expected env openai key to win, got %q", cfg.APIKeys.OpenAI)
	}
	if cfg.Limits.MaxCodeIterations != 4 || cfg.Limits.MaxDesignIterations != 3 {
		t.Fatalf("unexpected limits: %+v", cfg.Limits)
	}
	if cfg.Limits.OracleTimeout != 45*time.Second {
		t.Fatalf("unexpected oracle timeout: %v", cfg.Limits.OracleTimeout)
	}
	if cfg.Limits.MaxToolRounds != 3 {
		t.Fatalf("expected env max_tool_rounds, got %d", cfg.Limits.MaxToolRounds)
	}
	if cfg.RuntimeCheck.Timeout != 5*time.Second {
		t.Fatalf("expected env runtime timeout, got %v", cfg.RuntimeCheck.Timeout)
	}
	if cfg.RuntimeCheck.Static {
		t.Fatalf("expected static checks disabled")
	}
	if len(cfg.RuntimeCheck.Command) != 3 || cfg.RuntimeCheck.Command[2] != "{file}" {
		t.Fatalf("unexpected command: %v", cfg.RuntimeCheck.Command)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("unexpected port: %d", cfg.Server.Port)
	}
	if !cfg.HasAdapter("anthropic") || cfg.HasAdapter("google") {
		t.Fatalf("unexpected adapter availability")
	}
}

func TestLoadWithFileRequiresExplicitFile(t *testing.T) {
	setHomeEnv(t, t.TempDir())
	if _, err := LoadWithFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestLoadRejectsInvalidLimits(t *testing.T) {
	setHomeEnv(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("limits:\n  max_design_iterations: 0\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadWithFile(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadUsesRoutingFile(t *testing.T) {
	setHomeEnv(t, t.TempDir())
	dir := t.TempDir()
	routing := filepath.Join(dir, "routing.yaml")
	if err := os.WriteFile(routing, []byte(`
default:
  adapter: openai
  model: gpt-4o
stages:
  coder:
    adapter: anthropic
    model: claude-sonnet-4-20250514
`), 0600); err != nil {
		t.Fatalf("write routing: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("routing_file: "+routing+"\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadWithFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.RoutingConfig.Route("coder"); got.Adapter != "anthropic" {
		t.Fatalf("unexpected coder route: %+v", got)
	}
	if got := cfg.RoutingConfig.Route("player"); got.Adapter != "openai" || got.Model != "gpt-4o" {
		t.Fatalf("unexpected player route: %+v", got)
	}
}

func TestEnvKey(t *testing.T) {
	cases := map[string]string{
		"GAMEFORGE_RUNTIME_CHECK_TIMEOUT":      "runtime_check.timeout",
		"GAMEFORGE_LIMITS_MAX_CODE_ITERATIONS": "limits.max_code_iterations",
		"GAMEFORGE_API_KEYS_GOOGLE":            "api_keys.google",
		"GAMEFORGE_ROUTING_FILE":               "routing_file",
	}
	for in, want := range cases {
		if got := envKey(in); got != want {
			t.Fatalf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func setHomeEnv(t *testing.T, home string) {
	t.Helper()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
}

func clearAPIKeys(t *testing.T) {
	t.Helper()
	for _, key := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY", "DEEPSEEK_API_KEY"} {
		t.Setenv(key, "")
	}
}
