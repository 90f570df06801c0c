package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRouteFallsBackToDefault(t *testing.T) {
	cfg := &RoutingConfig{
		Default: RouteTarget{Adapter: "openai", Model: "gpt-4o"},
		Stages: map[string]RouteTarget{
			"coder":  {Adapter: "anthropic", Model: "claude-sonnet-4-20250514"},
			"player": {Adapter: "openai"},
		},
	}
	if got := cfg.Route("coder"); got.String() != "anthropic/claude-sonnet-4-20250514" {
		t.Fatalf("unexpected coder route: %s", got)
	}
	if got := cfg.Route("planner"); got.String() != "openai/gpt-4o" {
		t.Fatalf("unexpected planner route: %s", got)
	}
	if got := cfg.Route("player"); got.String() != "openai/gpt-4o" {
		t.Fatalf("expected player to inherit default model, got %s", got)
	}
}

func TestRoutingValidate(t *testing.T) {
	cfg := &RoutingConfig{
		Default: RouteTarget{Adapter: "openai", Model: "gpt-4o"},
		Stages:  map[string]RouteTarget{"coder": {Adapter: "anthropic"}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing model error")
	}
	if err := (&RoutingConfig{}).Validate(); err == nil {
		t.Fatalf("expected missing default error")
	}
	if err := DefaultRoutingConfig().Validate(); err != nil {
		t.Fatalf("default routing invalid: %v", err)
	}
}

func TestLoadRoutingConfigAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	data := []byte(`
default:
  adapter: google
  model: gemini-2.5-pro
fallback:
  allow_fallback: true
  fallback_chain:
    google:
      - adapter: openai
        model: gpt-4o
pricing:
  google:
    default:
      prompt_per_1k: 0.001
`)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadRoutingConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Retry.MaxRetries != 2 || cfg.Retry.BaseBackoffMs != 200 || cfg.Retry.MaxBackoffMs != 2000 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if !cfg.Fallback.AllowFallback || len(cfg.Fallback.FallbackChain["google"]) != 1 {
		t.Fatalf("unexpected fallback: %+v", cfg.Fallback)
	}
	adapters := cfg.Adapters()
	if len(adapters) != 2 || adapters[0] != "google" {
		t.Fatalf("unexpected adapters: %v", adapters)
	}
}

func TestRouteResolvesAliases(t *testing.T) {
	cfg := &RoutingConfig{
		Default: RouteTarget{Adapter: "anthropic", Model: "quality"},
		Stages: map[string]RouteTarget{
			"player": {Adapter: "openai", Model: "fast"},
			"coder":  {Adapter: "openai", Model: "gpt-4o"},
		},
		Aliases: map[string]string{
			"quality": "claude-sonnet-4-20250514",
			"fast":    "gpt-4o-mini",
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := cfg.Route("planner"); got.String() != "anthropic/claude-sonnet-4-20250514" {
		t.Fatalf("unexpected planner route: %s", got)
	}
	if got := cfg.Route("player"); got.String() != "openai/gpt-4o-mini" {
		t.Fatalf("unexpected player route: %s", got)
	}
	if got := cfg.Route("coder"); got.String() != "openai/gpt-4o" {
		t.Fatalf("non-alias model changed: %s", got)
	}
	if got := cfg.Resolve("unknown"); got != "unknown" {
		t.Fatalf("Resolve(unknown) = %q", got)
	}
}

func TestRoutingValidateRejectsChainedAlias(t *testing.T) {
	cfg := &RoutingConfig{
		Default: RouteTarget{Adapter: "openai", Model: "gpt-4o"},
		Aliases: map[string]string{"fast": "quick", "quick": "gpt-4o-mini"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected chained alias error")
	}
	cfg.Aliases = map[string]string{"empty": ""}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected empty alias error")
	}
}
