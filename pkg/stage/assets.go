package stage

import (
	"context"

	"go.uber.org/zap"

	"github.com/zen-systems/gameforge/pkg/state"
)

// AssetEmbedderStage adds placeholder assets to the game and inlines local
// asset files as data URIs.
type AssetEmbedderStage struct {
	cfg     Config
	prompts *Prompts
}

func NewAssetEmbedder(cfg Config) *AssetEmbedderStage {
	return &AssetEmbedderStage{cfg: cfg, prompts: cfg.prompts()}
}

func (a *AssetEmbedderStage) Name() Name { return AssetEmbedder }

func (a *AssetEmbedderStage) Run(ctx context.Context, env Env, s state.State) (Result, error) {
	data := newPromptData(a.cfg.Options, s)
	data.GameCode = s.GameCode

	system, user, err := a.prompts.pair("asset", data)
	if err != nil {
		return Result{}, err
	}
	res, err := converse(ctx, env, a.cfg.Options, nil, system, user)
	if err != nil {
		return Result{}, err
	}

	code, _ := SplitCode(res.Text)
	if code == "" {
		logger(env).Warn("asset pass returned no HTML, keeping coder output")
		code = s.GameCode
	}

	code, inlined, err := InlineAssets(code, a.cfg.AssetsDir)
	if err != nil {
		return Result{}, err
	}
	if len(inlined) > 0 {
		logger(env).Info("inlined assets", zap.Strings("assets", inlined))
	}

	return Result{
		Delta: state.AssetDelta{GameCode: code, Assets: inlined},
		Loop:  &res,
	}, nil
}
