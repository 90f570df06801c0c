package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/zen-systems/gameforge/pkg/adapter"
	"github.com/zen-systems/gameforge/pkg/config"
	"github.com/zen-systems/gameforge/pkg/docs"
	"github.com/zen-systems/gameforge/pkg/gate"
	"github.com/zen-systems/gameforge/pkg/logging"
	"github.com/zen-systems/gameforge/pkg/metrics"
	"github.com/zen-systems/gameforge/pkg/pipeline"
	"github.com/zen-systems/gameforge/pkg/runtimecheck"
	"github.com/zen-systems/gameforge/pkg/stage"
	"github.com/zen-systems/gameforge/pkg/status"
	"github.com/zen-systems/gameforge/pkg/tools"
)

const statusTimeout = 5 * time.Second

// app is the wired process: one pipeline plus what must be closed on exit.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	pipeline *pipeline.Pipeline
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
}

func createAdapters(cfg *config.Config) (map[string]adapter.Adapter, error) {
	adapters := make(map[string]adapter.Adapter)

	if cfg.APIKeys.Anthropic != "" {
		a, err := adapter.NewAnthropicAdapter(cfg.APIKeys.Anthropic)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic adapter: %w", err)
		}
		adapters["anthropic"] = a
	}

	if cfg.APIKeys.OpenAI != "" {
		a, err := adapter.NewOpenAIAdapter(cfg.APIKeys.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai adapter: %w", err)
		}
		adapters["openai"] = a
	}

	if cfg.APIKeys.Google != "" {
		a, err := adapter.NewGoogleAdapter(cfg.APIKeys.Google)
		if err != nil {
			return nil, fmt.Errorf("failed to create google adapter: %w", err)
		}
		adapters["google"] = a
	}

	if cfg.APIKeys.DeepSeek != "" {
		a, err := adapter.NewDeepSeekAdapter(cfg.APIKeys.DeepSeek)
		if err != nil {
			return nil, fmt.Errorf("failed to create deepseek adapter: %w", err)
		}
		adapters["deepseek"] = a
	}

	adapters["mock"] = newCannedAdapter()

	return adapters, nil
}

// engineID turns a display name such as "Kaplay.js" into the identifier
// the static checker looks for.
func engineID(engine string) string {
	id := strings.ToLower(strings.TrimSpace(engine))
	id = strings.TrimSuffix(id, ".js")
	if id == "" {
		return "kaplay"
	}
	return id
}

func openDocsIndex(cfg *config.Config, logger *zap.Logger) (*docs.Index, error) {
	embed, err := docs.NewEmbeddingFunc(docs.EmbedderConfig{
		Provider:   cfg.Docs.Embedder.Provider,
		Model:      cfg.Docs.Embedder.Model,
		APIKey:     cfg.APIKeys.OpenAI,
		Dimensions: cfg.Docs.Embedder.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	return docs.Open(docs.Config{
		Path:       cfg.Docs.Path,
		Compress:   cfg.Docs.Compress,
		Collection: cfg.Docs.Collection,
	}, embed, logger)
}

func buildTools(cfg *config.Config, static *runtimecheck.StaticChecker, logger *zap.Logger) (*tools.Registry, error) {
	var searcher tools.DocsSearcher
	if cfg.Docs.Path != "" {
		index, err := openDocsIndex(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("open docs index: %w", err)
		}
		if index.Count() == 0 {
			logger.Warn("docs index is empty, run 'gameforge docs ingest' to populate it", zap.String("path", cfg.Docs.Path))
		} else {
			searcher = index
		}
	}
	return tools.NewRegistry(
		tools.SearchDocs(searcher, cfg.Pipeline.Engine),
		tools.ValidateHTML(static),
	)
}

func buildChecker(cfg *config.Config, static *runtimecheck.StaticChecker) (runtimecheck.Checker, error) {
	var checkers runtimecheck.Multi
	if cfg.RuntimeCheck.Static {
		checkers = append(checkers, static)
	}
	if len(cfg.RuntimeCheck.Command) > 0 {
		cmd, err := runtimecheck.NewCommandChecker(cfg.RuntimeCheck.Command, cfg.RuntimeCheck.Workdir, cfg.RuntimeCheck.Timeout)
		if err != nil {
			return nil, fmt.Errorf("runtime check command: %w", err)
		}
		checkers = append(checkers, cmd)
	}
	if len(checkers) == 0 {
		return nil, nil
	}
	return checkers, nil
}

func (a *app) buildSink(ctx context.Context) (status.Sink, error) {
	sinks := status.Multi{status.LogSink{Logger: a.logger}}

	if url := a.cfg.Status.NATSURL; url != "" {
		nc, err := status.ConnectNATS(url)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = nc.Drain() })
		sinks = append(sinks, status.NewNATSSink(nc, a.cfg.Status.NATSSubject))
		a.logger.Info("publishing run status to nats", zap.String("url", url), zap.String("subject", a.cfg.Status.NATSSubject))
	}

	if dsn := a.cfg.Status.PostgresDSN; dsn != "" {
		pool, err := status.OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		sink := status.NewPostgresSink(pool, a.cfg.Status.PostgresTable)
		if err := sink.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
		a.logger.Info("recording run status in postgres", zap.String("table", a.cfg.Status.PostgresTable))
	}

	return sinks, nil
}

// newApp wires the pipeline described by cfg. With mock set every stage is
// routed to the offline canned adapter.
func newApp(ctx context.Context, cfg *config.Config, mock bool) (*app, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}

	adapters, err := createAdapters(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	routing := cfg.RoutingConfig
	if mock {
		routing = config.MockRoutingConfig()
	}

	prompts, err := stage.LoadPrompts(cfg.Pipeline.PromptsDir)
	if err != nil {
		a.Close()
		return nil, err
	}

	static := runtimecheck.NewStaticChecker(engineID(cfg.Pipeline.Engine))
	registry, err := buildTools(cfg, static, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	checker, err := buildChecker(cfg, static)
	if err != nil {
		a.Close()
		return nil, err
	}
	sink, err := a.buildSink(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	stages := stage.Build(stage.Config{
		Prompts: prompts,
		Options: stage.Options{
			Engine:        cfg.Pipeline.Engine,
			MaxToolRounds: cfg.Limits.MaxToolRounds,
			MaxTokens:     cfg.Limits.MaxTokens,
		},
		Tools:       registry,
		TemplateDir: cfg.Pipeline.TemplatesDir,
		AssetsDir:   cfg.Pipeline.AssetsDir,
		Checker:     checker,
	})

	a.pipeline = &pipeline.Pipeline{
		Stages:   stages,
		Adapters: adapters,
		Routing:  routing,
		Limits: gate.Limits{
			MaxDesignIterations: cfg.Limits.MaxDesignIterations,
			MaxCodeIterations:   cfg.Limits.MaxCodeIterations,
		},
		Engine:                 cfg.Pipeline.Engine,
		MaxToolRounds:          cfg.Limits.MaxToolRounds,
		SkipImplementationPlan: cfg.Pipeline.SkipImplementationPlan,
		OracleTimeout:          cfg.Limits.OracleTimeout,
		MaxBudgetUSD:           cfg.Limits.MaxBudgetUSD,
		Sink:                   sink,
		StatusTimeout:          statusTimeout,
		Metrics:                a.metrics,
		Tracer:                 otel.Tracer("gameforge"),
	}
	if err := a.pipeline.Validate(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}
