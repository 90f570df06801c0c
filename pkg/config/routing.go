package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoutingConfig maps pipeline stages to adapters and models.
type RoutingConfig struct {
	Stages   map[string]RouteTarget `yaml:"stages"`
	Default  RouteTarget            `yaml:"default"`
	Retry    RetryConfig            `yaml:"retry,omitempty"`
	Fallback FallbackConfig         `yaml:"fallback,omitempty"`
	Pricing  PricingConfig          `yaml:"pricing,omitempty"`
	Aliases  map[string]string      `yaml:"aliases,omitempty"`
}

// RouteTarget specifies an adapter and model combination.
type RouteTarget struct {
	Adapter string `yaml:"adapter"`
	Model   string `yaml:"model"`
}

func (t RouteTarget) String() string {
	return t.Adapter + "/" + t.Model
}

// RetryConfig defines retry and backoff behavior.
type RetryConfig struct {
	MaxRetries    int `yaml:"max_retries,omitempty"`
	BaseBackoffMs int `yaml:"base_backoff_ms,omitempty"`
	MaxBackoffMs  int `yaml:"max_backoff_ms,omitempty"`
}

// FallbackConfig defines adapter/model fallbacks. Chains are keyed by
// "adapter/model" or by adapter name.
type FallbackConfig struct {
	AllowFallback bool                     `yaml:"allow_fallback,omitempty"`
	FallbackChain map[string][]RouteTarget `yaml:"fallback_chain,omitempty"`
}

// PricingConfig maps adapter -> model -> pricing.
type PricingConfig map[string]map[string]ModelPricing

// ModelPricing defines per-1k token pricing.
type ModelPricing struct {
	PromptPer1K     float64 `yaml:"prompt_per_1k,omitempty"`
	CompletionPer1K float64 `yaml:"completion_per_1k,omitempty"`
}

// Route returns the target for a stage, falling back to Default.
func (c *RoutingConfig) Route(stage string) RouteTarget {
	if c == nil {
		return RouteTarget{}
	}
	target, ok := c.Stages[stage]
	if !ok || target.Adapter == "" {
		target = c.Default
	} else if target.Model == "" && target.Adapter == c.Default.Adapter {
		target.Model = c.Default.Model
	}
	target.Model = c.Resolve(target.Model)
	return target
}

// Resolve returns the model an alias stands for. Names that are not aliases
// are returned unchanged; aliases do not chain.
func (c *RoutingConfig) Resolve(model string) string {
	if c == nil || c.Aliases == nil {
		return model
	}
	if canonical, ok := c.Aliases[model]; ok {
		return canonical
	}
	return model
}

// Adapters lists every adapter named by a route or fallback.
func (c *RoutingConfig) Adapters() []string {
	seen := map[string]bool{}
	var names []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	add(c.Default.Adapter)
	for _, target := range c.Stages {
		add(target.Adapter)
	}
	for _, chain := range c.Fallback.FallbackChain {
		for _, target := range chain {
			add(target.Adapter)
		}
	}
	return names
}

// Validate checks that every route names an adapter and a model.
func (c *RoutingConfig) Validate() error {
	if c.Default.Adapter == "" || c.Default.Model == "" {
		return fmt.Errorf("routing: default adapter and model are required")
	}
	for stage, target := range c.Stages {
		if target.Adapter == "" {
			return fmt.Errorf("routing: stage %q has no adapter", stage)
		}
		if target.Model == "" && target.Adapter != c.Default.Adapter {
			return fmt.Errorf("routing: stage %q has no model", stage)
		}
	}
	for alias, model := range c.Aliases {
		if model == "" {
			return fmt.Errorf("routing: alias %q has no model", alias)
		}
		if _, chained := c.Aliases[model]; chained {
			return fmt.Errorf("routing: alias %q points at another alias %q", alias, model)
		}
	}
	return nil
}

// LoadRoutingConfig reads routing configuration from a YAML file.
func LoadRoutingConfig(path string) (*RoutingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg RoutingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyRoutingDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultRoutingConfig returns the default routing configuration.
func DefaultRoutingConfig() *RoutingConfig {
	cfg := &RoutingConfig{
		Stages: map[string]RouteTarget{
			"planner":                {Adapter: "anthropic", Model: "claude-sonnet-4-20250514"},
			"evaluator":              {Adapter: "anthropic", Model: "claude-sonnet-4-20250514"},
			"implementation_planner": {Adapter: "anthropic", Model: "claude-sonnet-4-20250514"},
			"coder":                  {Adapter: "anthropic", Model: "claude-sonnet-4-20250514"},
			"asset_embedder":         {Adapter: "anthropic", Model: "claude-sonnet-4-20250514"},
			"player":                 {Adapter: "anthropic", Model: "claude-sonnet-4-20250514"},
		},
		Default: RouteTarget{
			Adapter: "anthropic",
			Model:   "claude-sonnet-4-20250514",
		},
		Aliases: map[string]string{
			"quality":  "claude-sonnet-4-20250514",
			"deep":     "claude-opus-4-20250514",
			"fast":     "gpt-4o-mini",
			"research": "gemini-2.0-flash",
			"cheap":    "deepseek-chat",
		},
	}

	applyRoutingDefaults(cfg)
	return cfg
}

// MockRoutingConfig routes every stage to the mock adapter.
func MockRoutingConfig() *RoutingConfig {
	cfg := &RoutingConfig{Default: RouteTarget{Adapter: "mock", Model: "mock-1"}}
	applyRoutingDefaults(cfg)
	return cfg
}

func applyRoutingDefaults(cfg *RoutingConfig) {
	if cfg == nil {
		return
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 2
	}
	if cfg.Retry.BaseBackoffMs == 0 {
		cfg.Retry.BaseBackoffMs = 200
	}
	if cfg.Retry.MaxBackoffMs == 0 {
		cfg.Retry.MaxBackoffMs = 2000
	}
	if cfg.Retry.MaxBackoffMs < cfg.Retry.BaseBackoffMs {
		cfg.Retry.MaxBackoffMs = cfg.Retry.BaseBackoffMs
	}
}
