package stage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zen-systems/gameforge/pkg/gate"
	"github.com/zen-systems/gameforge/pkg/runtimecheck"
	"github.com/zen-systems/gameforge/pkg/state"
)

// PlayerStage playtests the game. Approval needs the oracle's SHIP verdict
// and, when a checker is configured, a runtime check without errors.
type PlayerStage struct {
	cfg     Config
	prompts *Prompts
}

func NewPlayer(cfg Config) *PlayerStage {
	return &PlayerStage{cfg: cfg, prompts: cfg.prompts()}
}

func (p *PlayerStage) Name() Name { return Player }

func (p *PlayerStage) Run(ctx context.Context, env Env, s state.State) (Result, error) {
	log := logger(env).With(zap.Int("code_iteration", s.CodeIteration+1))

	var runtimeErrors []string
	var report *runtimecheck.Report
	if p.cfg.Checker != nil {
		rep, err := p.cfg.Checker.Check(ctx, s.GameCode)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			log.Warn("runtime check failed", zap.String("checker", p.cfg.Checker.Name()), zap.Error(err))
			rep = runtimecheck.Report{Errors: []string{fmt.Sprintf("runtime check failed: %v", err)}}
		}
		runtimeErrors = rep.Errors
		report = &rep
	}

	data := newPromptData(p.cfg.Options, s)
	data.GameCode = s.GameCode
	if report != nil {
		data.Runtime = report.Summary()
	}

	system, user, err := p.prompts.pair("player", data)
	if err != nil {
		return Result{}, err
	}
	res, err := converse(ctx, env, p.cfg.Options, nil, system, user)
	if err != nil {
		return Result{}, err
	}

	text := strings.TrimSpace(res.Text)
	verdict := gate.ParseVerdict(text, gate.ShipMarker)
	if verdict.Malformed() {
		log.Warn("player gave no verdict, treating game as not approved")
	}

	errs := append(append([]string(nil), runtimeErrors...), gate.ExtractErrors(text)...)
	approved := verdict.Approved && len(runtimeErrors) == 0
	if verdict.Approved && !approved {
		log.Info("runtime errors veto ship verdict", zap.Int("runtime_errors", len(runtimeErrors)))
	}

	return Result{
		Delta:   state.PlayerDelta{Report: text, Approved: approved, Errors: errs},
		Loop:    &res,
		Verdict: &verdict,
		Runtime: report,
	}, nil
}
