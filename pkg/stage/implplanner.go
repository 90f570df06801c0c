package stage

import (
	"context"
	"strings"

	"github.com/zen-systems/gameforge/pkg/state"
	"github.com/zen-systems/gameforge/pkg/tools"
)

// ImplementationPlannerStage turns an approved design into a build plan.
type ImplementationPlannerStage struct {
	cfg     Config
	prompts *Prompts
	tools   tools.Invoker
}

func NewImplementationPlanner(cfg Config) *ImplementationPlannerStage {
	return &ImplementationPlannerStage{cfg: cfg, prompts: cfg.prompts(), tools: cfg.toolset(tools.SearchDocsTool)}
}

func (p *ImplementationPlannerStage) Name() Name { return ImplementationPlanner }

func (p *ImplementationPlannerStage) Run(ctx context.Context, env Env, s state.State) (Result, error) {
	data := newPromptData(p.cfg.Options, s)
	data.HasTools = p.tools != nil

	system, user, err := p.prompts.pair("implementation", data)
	if err != nil {
		return Result{}, err
	}
	res, err := converse(ctx, env, p.cfg.Options, p.tools, system, user)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Delta: state.ImplementationPlanDelta{Plan: strings.TrimSpace(res.Text)},
		Loop:  &res,
	}, nil
}
