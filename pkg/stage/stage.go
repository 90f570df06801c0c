// Package stage implements the six generation stages. Each stage reads a
// state snapshot and returns the typed delta for the fields it owns.
package stage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/gameforge/pkg/adapter"
	"github.com/zen-systems/gameforge/pkg/agentic"
	"github.com/zen-systems/gameforge/pkg/gate"
	"github.com/zen-systems/gameforge/pkg/runtimecheck"
	"github.com/zen-systems/gameforge/pkg/state"
	"github.com/zen-systems/gameforge/pkg/tools"
)

// Name identifies a stage.
type Name string

const (
	Planner               Name = "planner"
	Evaluator             Name = "evaluator"
	ImplementationPlanner Name = "implementation_planner"
	Coder                 Name = "coder"
	AssetEmbedder         Name = "asset_embedder"
	Player                Name = "player"
)

// Names lists every stage in pipeline order.
func Names() []Name {
	return []Name{Planner, Evaluator, ImplementationPlanner, Coder, AssetEmbedder, Player}
}

// Env carries per-run collaborators handed to a stage invocation.
type Env struct {
	// Oracle is routed to the model configured for the stage.
	Oracle adapter.Adapter
	Model  string
	Logger *zap.Logger
	// OnToolCall observes tool executions inside the sub-loop.
	OnToolCall func(name, outcome string)
}

// Result is what a stage invocation produced.
type Result struct {
	Delta   state.Delta
	Loop    *agentic.Result
	Verdict *gate.Verdict
	Runtime *runtimecheck.Report
}

// Stage is one unit of pipeline work.
type Stage interface {
	Name() Name
	Run(ctx context.Context, env Env, s state.State) (Result, error)
}

// Options are shared by every stage.
type Options struct {
	Engine        string
	MaxToolRounds int
	MaxTokens     int
	CallTimeout   time.Duration
}

func (o Options) engine() string {
	if o.Engine == "" {
		return "Kaplay.js"
	}
	return o.Engine
}

func logger(env Env) *zap.Logger {
	if env.Logger == nil {
		return zap.NewNop()
	}
	return env.Logger
}

// converse runs one sub-loop. A nil invoker offers no tools.
func converse(ctx context.Context, env Env, opts Options, invoker tools.Invoker, system, user string) (agentic.Result, error) {
	loop, err := agentic.New(env.Oracle, invoker, agentic.Options{
		Model:       env.Model,
		MaxRounds:   opts.MaxToolRounds,
		MaxTokens:   opts.MaxTokens,
		CallTimeout: opts.CallTimeout,
		Logger:      logger(env),
		OnToolCall:  env.OnToolCall,
	})
	if err != nil {
		return agentic.Result{}, err
	}
	return loop.Run(ctx, system, user)
}

// invokerOrNil avoids handing the loop a typed-nil registry.
func invokerOrNil(reg *tools.Registry) tools.Invoker {
	if reg == nil || reg.Len() == 0 {
		return nil
	}
	return reg
}

// Config holds the collaborators the stages are built from.
type Config struct {
	Prompts *Prompts
	Options Options
	// Tools is the full registry; each stage sees only the tools it may use.
	Tools       *tools.Registry
	TemplateDir string
	AssetsDir   string
	// Checker is the Player's runtime check. Nil leaves approval to the
	// oracle verdict alone.
	Checker runtimecheck.Checker
}

// Build constructs every stage keyed by name.
func Build(cfg Config) map[Name]Stage {
	if cfg.Prompts == nil {
		cfg.Prompts = MustDefaultPrompts()
	}
	return map[Name]Stage{
		Planner:               NewPlanner(cfg),
		Evaluator:             NewEvaluator(cfg),
		ImplementationPlanner: NewImplementationPlanner(cfg),
		Coder:                 NewCoder(cfg),
		AssetEmbedder:         NewAssetEmbedder(cfg),
		Player:                NewPlayer(cfg),
	}
}

func (c Config) prompts() *Prompts {
	if c.Prompts == nil {
		return MustDefaultPrompts()
	}
	return c.Prompts
}

// toolset returns the named tools from the registry, or nil when none are
// available.
func (c Config) toolset(names ...string) tools.Invoker {
	if c.Tools == nil {
		return nil
	}
	return invokerOrNil(c.Tools.Subset(names...))
}

// promptData is the union of fields the prompt templates read.
type promptData struct {
	Engine        string
	GameTypes     []string
	LessonPlan    string
	PriorFeedback string
	DesignDoc     string
	HasTools      bool
	GameType      string
	Plan          string
	Template      string
	Revision      string
	GameCode      string
	Runtime       string
}

func newPromptData(opts Options, s state.State) promptData {
	return promptData{
		Engine:     opts.engine(),
		GameTypes:  GameTypes,
		LessonPlan: s.Input.JSON(),
		DesignDoc:  s.DesignDoc,
		GameType:   s.GameType,
	}
}
