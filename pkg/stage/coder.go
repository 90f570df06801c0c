package stage

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/zen-systems/gameforge/pkg/agentic"
	"github.com/zen-systems/gameforge/pkg/repair"
	"github.com/zen-systems/gameforge/pkg/state"
	"github.com/zen-systems/gameforge/pkg/tools"
)

// CoderStage writes (or rewrites) the game.
type CoderStage struct {
	cfg     Config
	prompts *Prompts
	tools   tools.Invoker
}

func NewCoder(cfg Config) *CoderStage {
	return &CoderStage{
		cfg:     cfg,
		prompts: cfg.prompts(),
		tools:   cfg.toolset(tools.SearchDocsTool, tools.ValidateHTMLTool),
	}
}

func (c *CoderStage) Name() Name { return Coder }

func (c *CoderStage) Run(ctx context.Context, env Env, s state.State) (Result, error) {
	log := logger(env).With(zap.Int("code_iteration", s.CodeIteration))

	data := newPromptData(c.cfg.Options, s)
	data.HasTools = c.tools != nil
	data.Plan = s.ImplementationPlan
	data.Template = s.TemplateCode

	prior := strings.TrimSpace(s.GameCode)
	feedback := repair.Feedback{Report: s.PlaytestReport, Errors: s.PlaytestErrors}
	if s.CodeIteration > 0 && prior != "" {
		data.Revision = repair.GenerateRepairPrompt(prior, feedback)
	}

	res, code, notes, err := c.generate(ctx, env, data)
	if err != nil {
		return Result{}, err
	}

	if prior != "" && code == prior {
		log.Warn("coder returned the previous game unchanged, escalating")
		data.Revision = repair.GenerateEscalationPrompt(prior, feedback)
		retry, retryCode, retryNotes, err := c.generate(ctx, env, data)
		if err != nil {
			return Result{}, err
		}
		res = mergeLoops(res, retry)
		if retryCode != "" {
			code, notes = retryCode, retryNotes
		}
	}

	if code == "" {
		log.Warn("coder produced no HTML, keeping previous game")
		code = prior
	}

	return Result{
		Delta: state.CoderDelta{GameCode: code, Documentation: notes},
		Loop:  &res,
	}, nil
}

func (c *CoderStage) generate(ctx context.Context, env Env, data promptData) (agentic.Result, string, string, error) {
	system, user, err := c.prompts.pair("coder", data)
	if err != nil {
		return agentic.Result{}, "", "", err
	}
	res, err := converse(ctx, env, c.cfg.Options, c.tools, system, user)
	if err != nil {
		return res, "", "", err
	}
	code, notes := SplitCode(res.Text)
	return res, code, notes, nil
}

func mergeLoops(a, b agentic.Result) agentic.Result {
	return agentic.Result{
		Text:      b.Text,
		Rounds:    a.Rounds + b.Rounds,
		Exhausted: b.Exhausted,
		ToolCalls: append(append([]agentic.ToolCallRecord(nil), a.ToolCalls...), b.ToolCalls...),
	}
}
