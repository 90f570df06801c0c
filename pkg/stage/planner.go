package stage

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/zen-systems/gameforge/pkg/state"
	"github.com/zen-systems/gameforge/pkg/tools"
)

// PlannerStage drafts the game design document.
type PlannerStage struct {
	cfg     Config
	prompts *Prompts
	tools   tools.Invoker
}

func NewPlanner(cfg Config) *PlannerStage {
	return &PlannerStage{cfg: cfg, prompts: cfg.prompts(), tools: cfg.toolset(tools.SearchDocsTool)}
}

func (p *PlannerStage) Name() Name { return Planner }

func (p *PlannerStage) Run(ctx context.Context, env Env, s state.State) (Result, error) {
	data := newPromptData(p.cfg.Options, s)
	data.HasTools = p.tools != nil
	if s.DesignIteration > 0 {
		data.PriorFeedback = s.DesignFeedback
	}

	system, user, err := p.prompts.pair("planner", data)
	if err != nil {
		return Result{}, err
	}
	res, err := converse(ctx, env, p.cfg.Options, p.tools, system, user)
	if err != nil {
		return Result{}, err
	}

	design := strings.TrimSpace(res.Text)
	gameType := ParseGameType(design)
	template, err := LoadTemplate(p.cfg.TemplateDir, gameType)
	if err != nil {
		logger(env).Warn("loading game template", zap.String("game_type", gameType), zap.Error(err))
	} else if template == "" && p.cfg.TemplateDir != "" {
		logger(env).Warn("no template for game type", zap.String("game_type", gameType))
	}

	return Result{
		Delta: state.PlannerDelta{DesignDoc: design, GameType: gameType, TemplateCode: template},
		Loop:  &res,
	}, nil
}
