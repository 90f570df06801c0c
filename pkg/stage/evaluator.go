package stage

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/zen-systems/gameforge/pkg/gate"
	"github.com/zen-systems/gameforge/pkg/state"
)

// EvaluatorStage reviews the design and decides whether it may proceed.
type EvaluatorStage struct {
	cfg     Config
	prompts *Prompts
}

func NewEvaluator(cfg Config) *EvaluatorStage {
	return &EvaluatorStage{cfg: cfg, prompts: cfg.prompts()}
}

func (e *EvaluatorStage) Name() Name { return Evaluator }

func (e *EvaluatorStage) Run(ctx context.Context, env Env, s state.State) (Result, error) {
	system, user, err := e.prompts.pair("evaluator", newPromptData(e.cfg.Options, s))
	if err != nil {
		return Result{}, err
	}
	res, err := converse(ctx, env, e.cfg.Options, nil, system, user)
	if err != nil {
		return Result{}, err
	}

	feedback := strings.TrimSpace(res.Text)
	verdict := gate.ParseVerdict(feedback, gate.DesignMarker)
	if verdict.Malformed() {
		logger(env).Warn("evaluator gave no decision, treating design as not approved",
			zap.Int("design_iteration", s.DesignIteration+1))
	}

	return Result{
		Delta:   state.EvaluatorDelta{Feedback: feedback, Approved: verdict.Approved},
		Loop:    &res,
		Verdict: &verdict,
	}, nil
}
