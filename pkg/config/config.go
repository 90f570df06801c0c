// Package config loads gameforge configuration.
//
// Precedence (highest first):
//  1. Provider API key variables (ANTHROPIC_API_KEY, OPENAI_API_KEY, ...)
//  2. GAMEFORGE_* environment variables (GAMEFORGE_LIMITS_MAX_TOOL_ROUNDS -> limits.max_tool_rounds)
//  3. The YAML config file (~/.gameforge/config.yaml by default)
//  4. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "GAMEFORGE_"
	maxConfigFileSize = 1024 * 1024
)

// Config holds the application configuration.
type Config struct {
	APIKeys      APIKeysConfig      `koanf:"api_keys"`
	Pipeline     PipelineConfig     `koanf:"pipeline"`
	Limits       LimitsConfig       `koanf:"limits"`
	RuntimeCheck RuntimeCheckConfig `koanf:"runtime_check"`
	Docs         DocsConfig         `koanf:"docs"`
	Status       StatusConfig       `koanf:"status"`
	Server       ServerConfig       `koanf:"server"`
	Output       OutputConfig       `koanf:"output"`
	Log          LogConfig          `koanf:"log"`
	RoutingFile  string             `koanf:"routing_file"`

	// Resolved after loading.
	RoutingConfig *RoutingConfig `koanf:"-"`
	ConfigDir     string         `koanf:"-"`
}

// APIKeysConfig holds provider credentials.
type APIKeysConfig struct {
	Anthropic string `koanf:"anthropic"`
	OpenAI    string `koanf:"openai"`
	Google    string `koanf:"google"`
	DeepSeek  string `koanf:"deepseek"`
}

// PipelineConfig selects the game engine and on-disk resources.
type PipelineConfig struct {
	Engine                 string `koanf:"engine"`
	TemplatesDir           string `koanf:"templates_dir"`
	AssetsDir              string `koanf:"assets_dir"`
	PromptsDir             string `koanf:"prompts_dir"`
	SkipImplementationPlan bool   `koanf:"skip_implementation_plan"`
}

// LimitsConfig bounds iteration and oracle usage.
type LimitsConfig struct {
	MaxDesignIterations int           `koanf:"max_design_iterations"`
	MaxCodeIterations   int           `koanf:"max_code_iterations"`
	MaxToolRounds       int           `koanf:"max_tool_rounds"`
	MaxTokens           int           `koanf:"max_tokens"`
	OracleTimeout       time.Duration `koanf:"oracle_timeout"`
	// MaxBudgetUSD stops a run once estimated spend reaches it. Zero disables.
	MaxBudgetUSD float64 `koanf:"max_budget_usd"`
}

// RuntimeCheckConfig configures the Player's runtime checker.
type RuntimeCheckConfig struct {
	// Command runs a headless check; "{file}" is replaced by the game path.
	Command []string      `koanf:"command"`
	Workdir string        `koanf:"workdir"`
	Timeout time.Duration `koanf:"timeout"`
	Static  bool          `koanf:"static"`
}

// DocsConfig configures the documentation index behind search_docs.
type DocsConfig struct {
	Path       string         `koanf:"path"`
	Collection string         `koanf:"collection"`
	Compress   bool           `koanf:"compress"`
	Embedder   EmbedderConfig `koanf:"embedder"`
}

// EmbedderConfig selects the embedding function.
type EmbedderConfig struct {
	Provider   string `koanf:"provider"`
	Model      string `koanf:"model"`
	Dimensions int    `koanf:"dimensions"`
}

// StatusConfig configures where run snapshots are pushed.
type StatusConfig struct {
	NATSURL       string `koanf:"nats_url"`
	NATSSubject   string `koanf:"nats_subject"`
	PostgresDSN   string `koanf:"postgres_dsn"`
	PostgresTable string `koanf:"postgres_table"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	APIKey          string        `koanf:"api_key"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// OutputConfig configures where results are written.
type OutputConfig struct {
	Dir         string `koanf:"dir"`
	EvidenceDir string `koanf:"evidence_dir"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Pipeline: PipelineConfig{
			Engine:       "kaplay",
			TemplatesDir: "templates",
			AssetsDir:    "assets",
		},
		Limits: LimitsConfig{
			MaxDesignIterations: 3,
			MaxCodeIterations:   2,
			MaxToolRounds:       5,
			MaxTokens:           8192,
			OracleTimeout:       3 * time.Minute,
		},
		RuntimeCheck: RuntimeCheckConfig{
			Timeout: 30 * time.Second,
			Static:  true,
		},
		Docs: DocsConfig{
			Collection: "engine_docs",
			Embedder:   EmbedderConfig{Provider: "hash", Dimensions: 512},
		},
		Status: StatusConfig{
			NATSSubject:   "gameforge.runs",
			PostgresTable: "game_runs",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Output: OutputConfig{Dir: "output"},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads ~/.gameforge/config.yaml (when present) and the environment.
func Load() (*Config, error) {
	return LoadWithFile("")
}

// LoadWithFile reads the given config file. An empty path uses
// ~/.gameforge/config.yaml, which may be absent; an explicit path must exist.
func LoadWithFile(path string) (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = filepath.Join(configDir, "config.yaml")
	}

	k := koanf.New(".")
	content, err := readConfigFile(path)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, err
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ConfigDir = configDir

	cfg.APIKeys.Anthropic = getEnvOrDefault("ANTHROPIC_API_KEY", cfg.APIKeys.Anthropic)
	cfg.APIKeys.OpenAI = getEnvOrDefault("OPENAI_API_KEY", cfg.APIKeys.OpenAI)
	cfg.APIKeys.Google = getEnvOrDefault("GOOGLE_API_KEY", cfg.APIKeys.Google)
	cfg.APIKeys.DeepSeek = getEnvOrDefault("DEEPSEEK_API_KEY", cfg.APIKeys.DeepSeek)

	if err := cfg.loadRouting(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) loadRouting() error {
	path := c.RoutingFile
	if path == "" {
		candidate := filepath.Join(c.ConfigDir, "routing.yaml")
		if _, err := os.Stat(candidate); err != nil {
			c.RoutingConfig = DefaultRoutingConfig()
			return nil
		}
		path = candidate
	}
	routing, err := LoadRoutingConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load routing config from %s: %w", path, err)
	}
	c.RoutingConfig = routing
	return nil
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Limits.MaxDesignIterations < 1 {
		return fmt.Errorf("limits.max_design_iterations must be at least 1")
	}
	if c.Limits.MaxCodeIterations < 1 {
		return fmt.Errorf("limits.max_code_iterations must be at least 1")
	}
	if c.Limits.MaxToolRounds < 1 {
		return fmt.Errorf("limits.max_tool_rounds must be at least 1")
	}
	if c.Limits.MaxBudgetUSD < 0 {
		return fmt.Errorf("limits.max_budget_usd must not be negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Docs.Embedder.Provider {
	case "", "hash", "openai":
	default:
		return fmt.Errorf("docs.embedder.provider must be hash or openai, got %q", c.Docs.Embedder.Provider)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

// HasAdapter returns true if the API key for the given adapter is configured.
func (c *Config) HasAdapter(name string) bool {
	switch name {
	case "anthropic":
		return c.APIKeys.Anthropic != ""
	case "openai":
		return c.APIKeys.OpenAI != ""
	case "google":
		return c.APIKeys.Google != ""
	case "deepseek":
		return c.APIKeys.DeepSeek != ""
	case "mock":
		return true
	default:
		return false
	}
}

var sections = []string{
	"api_keys", "pipeline", "limits", "runtime_check", "docs", "status", "server", "output", "log",
}

// envKey maps GAMEFORGE_RUNTIME_CHECK_TIMEOUT to runtime_check.timeout.
// Section names may contain underscores, so the longest known section
// prefix wins; anything else is a top-level key.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	best := ""
	for _, section := range sections {
		if strings.HasPrefix(key, section+"_") && len(section) > len(best) {
			best = section
		}
	}
	if best == "" {
		return key
	}
	return best + "." + strings.TrimPrefix(key, best+"_")
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	return data, nil
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".gameforge")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", err
	}
	return configDir, nil
}
