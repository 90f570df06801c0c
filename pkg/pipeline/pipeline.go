// Package pipeline drives a run through the stage graph:
//
//	planner -> evaluator -(design gate)-> implementation_planner -> coder
//	  -> asset_embedder -> player -(ship gate)-> done | coder
//
// The evaluator loops back to the planner until the design is approved or
// the design cap is reached; the player loops back to the coder until the
// game ships or the code cap is reached.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zen-systems/gameforge/pkg/adapter"
	"github.com/zen-systems/gameforge/pkg/config"
	"github.com/zen-systems/gameforge/pkg/gate"
	"github.com/zen-systems/gameforge/pkg/metrics"
	"github.com/zen-systems/gameforge/pkg/stage"
	"github.com/zen-systems/gameforge/pkg/state"
	"github.com/zen-systems/gameforge/pkg/status"
)

var (
	// ErrCancelled marks a run stopped by its context.
	ErrCancelled = errors.New("run cancelled")
	// ErrStepBudgetExceeded means the stage graph did not terminate within
	// its static bound. Gates make this unreachable; hitting it is a bug.
	ErrStepBudgetExceeded = errors.New("step budget exceeded")
)

// Pipeline holds the immutable collaborators shared by every run.
type Pipeline struct {
	Stages   map[stage.Name]stage.Stage
	Adapters map[string]adapter.Adapter
	Routing  *config.RoutingConfig
	Limits   gate.Limits

	// Engine and MaxToolRounds are recorded with each run.
	Engine        string
	MaxToolRounds int

	// SkipImplementationPlan routes an approved design straight to the coder.
	SkipImplementationPlan bool
	// OracleTimeout bounds each oracle attempt. Zero means no bound.
	OracleTimeout time.Duration
	// MaxBudgetUSD stops a run once estimated spend reaches it. Zero disables.
	MaxBudgetUSD float64

	Sink          status.Sink
	StatusTimeout time.Duration
	Metrics       *metrics.Metrics
	Tracer        trace.Tracer
}

// Validate checks that every stage on the graph is present and routable.
func (p *Pipeline) Validate() error {
	if err := p.Limits.Validate(); err != nil {
		return err
	}
	if len(p.Adapters) == 0 {
		return fmt.Errorf("no adapters configured")
	}
	if p.Routing == nil {
		return fmt.Errorf("routing config is required")
	}
	for _, name := range p.graph() {
		if p.Stages[name] == nil {
			return fmt.Errorf("stage %s is not configured", name)
		}
		target := p.Routing.Route(string(name))
		if _, ok := p.Adapters[target.Adapter]; !ok {
			return fmt.Errorf("stage %s routes to adapter %q which is not configured", name, target.Adapter)
		}
	}
	return nil
}

// StepBound is the most stage executions a run can take:
// 2 per design iteration, 1 implementation plan, 3 per code iteration, plus one.
func (p *Pipeline) StepBound() int {
	return 2*p.Limits.MaxDesignIterations + 1 + 3*p.Limits.MaxCodeIterations + 1
}

func (p *Pipeline) graph() []stage.Name {
	if p.SkipImplementationPlan {
		return []stage.Name{stage.Planner, stage.Evaluator, stage.Coder, stage.AssetEmbedder, stage.Player}
	}
	return stage.Names()
}

// transition is where the graph goes after a stage.
type transition struct {
	next     stage.Name
	terminal bool
	decision *gate.Decision
}

func (p *Pipeline) next(current stage.Name, s state.State) transition {
	switch current {
	case stage.Planner:
		return transition{next: stage.Evaluator}
	case stage.Evaluator:
		after := gate.TargetImplementationPlanner
		if p.SkipImplementationPlan {
			after = gate.TargetCoder
		}
		d := gate.Design(s, p.Limits, after)
		return transition{next: stage.Name(d.Next), decision: &d}
	case stage.ImplementationPlanner:
		return transition{next: stage.Coder}
	case stage.Coder:
		return transition{next: stage.AssetEmbedder}
	case stage.AssetEmbedder:
		return transition{next: stage.Player}
	case stage.Player:
		d := gate.Ship(s, p.Limits)
		if d.Terminal {
			return transition{terminal: true, decision: &d}
		}
		return transition{next: stage.Name(d.Next), decision: &d}
	default:
		return transition{terminal: true}
	}
}

// entryStatus is the status a run holds while name is executing.
func entryStatus(name stage.Name) state.Status {
	switch name {
	case stage.Planner:
		return state.StatusPlanning
	case stage.Evaluator:
		return state.StatusEvaluating
	case stage.ImplementationPlanner:
		return state.StatusImplementationPlanning
	case stage.Coder:
		return state.StatusCoding
	case stage.AssetEmbedder:
		return state.StatusGeneratingAssets
	case stage.Player:
		return state.StatusPlaytesting
	default:
		return ""
	}
}

func gateBranch(d gate.Decision) string {
	switch {
	case d.Forced:
		return "forced"
	case d.Next == gate.TargetPlanner || (d.Gate == "ship" && d.Next == gate.TargetCoder):
		return "retry"
	default:
		return "approved"
	}
}
