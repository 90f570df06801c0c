package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zen-systems/gameforge/pkg/artifact"
	"github.com/zen-systems/gameforge/pkg/config"
	"github.com/zen-systems/gameforge/pkg/pipeline"
	"github.com/zen-systems/gameforge/pkg/server"
	"github.com/zen-systems/gameforge/pkg/stage"
	"github.com/zen-systems/gameforge/pkg/state"
)

var (
	configFile string
	logLevel   string
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gameforge",
		Short: "Turn lesson plans into playable HTML games",
		Long: `Gameforge drives a lesson plan through design, review, implementation,
asset and playtest stages, each backed by an LLM, and writes a single-file
HTML game plus its design document.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (default ~/.gameforge/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(docsCmd())
	rootCmd.AddCommand(routesCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(attestCmd())
	rootCmd.AddCommand(verifyCmd())
	return rootCmd
}

func generateCmd() *cobra.Command {
	var inputFlag string
	var outputFlag string
	var evidenceFlag string
	var runIDFlag string
	var mockFlag bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a game from a JSON lesson plan",
		Long: `Runs the full pipeline on a lesson plan and writes <slug>_game.html and
<slug>_design.md to the output directory. Exits non-zero when the run fails
or no game code was produced.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := loadLessonPlan(inputFlag)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if outputFlag == "" {
				outputFlag = cfg.Output.Dir
			}
			if evidenceFlag == "" {
				evidenceFlag = cfg.Output.EvidenceDir
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, mockFlag)
			if err != nil {
				return err
			}
			defer a.Close()

			runID := runIDFlag
			if runID == "" {
				runID = uuid.NewString()
			}
			fmt.Fprintf(os.Stderr, "Generating %s game for: %s\n", cfg.Pipeline.Engine, input.Title())

			res, runErr := pipeline.Run(ctx, a.pipeline, pipeline.RunOptions{
				RunID:       runID,
				Input:       input,
				EvidenceDir: evidenceFlag,
				Logger:      a.logger,
			})
			if res == nil {
				return runErr
			}

			game := artifact.FromState(res.State)
			if game.HasCode() {
				paths, err := game.Save(outputFlag)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Game saved to: %s\n", paths.Game)
				fmt.Fprintf(os.Stderr, "Design doc saved to: %s\n", paths.Design)
			} else {
				fmt.Fprintln(os.Stderr, "No game code was generated.")
			}

			if len(game.Errors) > 0 {
				fmt.Fprintln(os.Stderr, "\nWarnings/Errors encountered:")
				for _, e := range game.Errors {
					fmt.Fprintf(os.Stderr, "  - %s\n", e)
				}
			}
			if res.Cost != nil && res.Cost.TotalAmount > 0 {
				fmt.Fprintf(os.Stderr, "Estimated cost: %.4f %s\n", res.Cost.TotalAmount, res.Cost.Currency)
				stages := make([]string, 0, len(res.Cost.ByStage))
				for name := range res.Cost.ByStage {
					stages = append(stages, name)
				}
				sort.Strings(stages)
				for _, name := range stages {
					sc := res.Cost.ByStage[name]
					fmt.Fprintf(os.Stderr, "  %-24s %.4f (%d calls, %d tokens)\n", name, sc.Amount, sc.Calls, sc.Usage.TotalTokens)
				}
			}
			if res.EvidenceDir != "" {
				fmt.Fprintf(os.Stderr, "Evidence: %s\n", res.EvidenceDir)
			}
			fmt.Fprintf(os.Stderr, "\nFinal status: %s (shipped: %t)\n", game.Status, game.ShipApproved)

			if runErr != nil {
				return runErr
			}
			if !game.HasCode() {
				return errors.New("no game code was generated")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputFlag, "input", "i", "", "path to JSON lesson plan file (required)")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "output directory (default from config)")
	cmd.Flags().StringVar(&evidenceFlag, "evidence", "", "evidence base directory (default from config, empty disables)")
	cmd.Flags().StringVar(&runIDFlag, "run-id", "", "run identifier (default: random UUID)")
	cmd.Flags().BoolVar(&mockFlag, "mock", false, "route every stage to the offline mock adapter")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func loadLessonPlan(path string) (state.Document, error) {
	if filepath.Ext(path) != ".json" {
		return nil, fmt.Errorf("expected a .json file, got %q", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lesson plan: %w", err)
	}
	return state.ParseDocument(data)
}

func serveCmd() *cobra.Command {
	var mockFlag bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the generation API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, mockFlag)
			if err != nil {
				return err
			}
			defer a.Close()

			gen := server.GeneratorFunc(func(ctx context.Context, runID string, input state.Document) (*pipeline.RunResult, error) {
				return pipeline.Run(ctx, a.pipeline, pipeline.RunOptions{
					RunID:       runID,
					Input:       input,
					EvidenceDir: cfg.Output.EvidenceDir,
					Logger:      a.logger,
				})
			})
			srv, err := server.NewServer(gen, a.logger, &server.Config{
				Host:     cfg.Server.Host,
				Port:     cfg.Server.Port,
				APIKey:   cfg.Server.APIKey,
				Registry: a.metrics.Registry(),
			})
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("shutdown failed", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&mockFlag, "mock", false, "route every stage to the offline mock adapter")
	return cmd
}

func docsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage the engine documentation index used by search_docs",
	}

	ingest := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Index every .md/.mdx page under dir, replacing the collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.Docs.Path == "" {
				return fmt.Errorf("docs.path must be set to persist the index")
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			index, err := openDocsIndex(cfg, logger)
			if err != nil {
				return err
			}
			stats, err := index.IngestDir(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Indexed %d chunks from %d files into %s\n", stats.Chunks, stats.Files, cfg.Docs.Path)
			return nil
		},
	}

	var limit int
	search := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the documentation index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.Docs.Path == "" {
				return fmt.Errorf("docs.path is not configured")
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			index, err := openDocsIndex(cfg, logger)
			if err != nil {
				return err
			}
			hits, err := index.Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Println("No results.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCORE\tTITLE\tSOURCE")
			for _, h := range hits {
				fmt.Fprintf(w, "%.3f\t%s\t%s\n", h.Similarity, h.Title, h.Source)
			}
			return w.Flush()
		},
	}
	search.Flags().IntVarP(&limit, "limit", "n", 5, "maximum number of results")

	cmd.AddCommand(ingest, search)
	return cmd
}

func routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Show which adapter and model serve each stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			routing := cfg.RoutingConfig

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STAGE\tADAPTER\tMODEL\tFALLBACKS")
			for _, name := range stage.Names() {
				target := routing.Route(string(name))
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, target.Adapter, target.Model, fallbacks(routing, target))
			}
			fmt.Fprintln(w)
			fmt.Fprintf(w, "DEFAULT\t%s\t%s\t-\n", routing.Default.Adapter, routing.Default.Model)
			fmt.Fprintf(w, "RETRY\tmax %d\t%d-%dms\t-\n", routing.Retry.MaxRetries, routing.Retry.BaseBackoffMs, routing.Retry.MaxBackoffMs)
			aliases := make([]string, 0, len(routing.Aliases))
			for alias := range routing.Aliases {
				aliases = append(aliases, alias)
			}
			sort.Strings(aliases)
			for _, alias := range aliases {
				fmt.Fprintf(w, "ALIAS\t%s\t%s\t-\n", alias, routing.Aliases[alias])
			}

			return w.Flush()
		},
	}
}

func fallbacks(routing *config.RoutingConfig, target config.RouteTarget) string {
	if !routing.Fallback.AllowFallback {
		return "-"
	}
	chain, ok := routing.Fallback.FallbackChain[target.String()]
	if !ok {
		chain = routing.Fallback.FallbackChain[target.Adapter]
	}
	if len(chain) == 0 {
		return "-"
	}
	items := make([]string, 0, len(chain))
	for _, t := range chain {
		items = append(items, t.String())
	}
	return strings.Join(items, ", ")
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List adapters, their models, and whether they are usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			adapters, err := createAdapters(cfg)
			if err != nil {
				return fmt.Errorf("failed to create adapters: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODELS\tSTATUS")
			for _, provider := range []string{"anthropic", "deepseek", "google", "openai", "mock"} {
				status := "no key"
				models := "-"
				if a, ok := adapters[provider]; ok {
					status = "ready"
					list := a.Models()
					sort.Strings(list)
					models = strings.Join(list, ", ")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", provider, models, status)
			}
			return w.Flush()
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration, routing and prompt templates",
		Long:  "Loads the configuration without running anything and reports every problem found.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			var problems []string
			if err := cfg.RoutingConfig.Validate(); err != nil {
				problems = append(problems, err.Error())
			}
			for _, name := range cfg.RoutingConfig.Adapters() {
				if !cfg.HasAdapter(name) {
					problems = append(problems, fmt.Sprintf("routing uses adapter %q but no API key is configured", name))
				}
			}
			if _, err := stage.LoadPrompts(cfg.Pipeline.PromptsDir); err != nil {
				problems = append(problems, err.Error())
			}
			if len(cfg.RuntimeCheck.Command) > 0 && cfg.RuntimeCheck.Timeout <= 0 {
				problems = append(problems, "runtime_check.timeout must be positive when a command is set")
			}

			if len(problems) == 0 {
				fmt.Println("Configuration is valid.")
				return nil
			}
			fmt.Fprintf(os.Stderr, "Found %d problems:\n", len(problems))
			for _, p := range problems {
				fmt.Fprintf(os.Stderr, "  - %s\n", p)
			}
			return fmt.Errorf("validation failed")
		},
	}
}
