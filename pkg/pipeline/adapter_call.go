package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/gameforge/pkg/adapter"
	"github.com/zen-systems/gameforge/pkg/config"
	"github.com/zen-systems/gameforge/pkg/metrics"
)

type callTarget struct {
	Adapter string
	Model   string
}

// routedOracle is the oracle handed to one stage execution. It sends each
// request to the stage's configured adapter and model, retries transient
// failures with capped backoff, then walks the fallback chain. When every
// target is exhausted the last error is returned as ErrOracleUnavailable.
type routedOracle struct {
	stage       string
	adapters    map[string]adapter.Adapter
	target      config.RouteTarget
	routing     *config.RoutingConfig
	tracker     *costTracker
	metrics     *metrics.Metrics
	logger      *zap.Logger
	callTimeout time.Duration
}

func (o *routedOracle) Name() string {
	return o.target.Adapter
}

func (o *routedOracle) Models() []string {
	return []string{o.target.Model}
}

func (o *routedOracle) Invoke(ctx context.Context, req *adapter.Request) (*adapter.Response, error) {
	resp, reports, err := callAdapterWithPolicy(ctx, o.adapters, o.target.Adapter, o.target.Model, req, o.routing, o.tracker, o.callTimeout)
	for i := range reports {
		reports[i].Stage = o.stage
	}
	o.tracker.recordReports(reports)
	for _, report := range reports {
		outcome := "ok"
		if report.Error != "" {
			outcome = "error"
		}
		o.metrics.ObserveOracle(report.Adapter, outcome)
		if report.Error != "" {
			o.logger.Warn("oracle call failed",
				zap.String("adapter", report.Adapter),
				zap.String("model", report.Model),
				zap.Int("retries", report.Retries),
				zap.String("error", report.Error),
			)
		} else if report.Retries > 0 {
			o.logger.Warn("oracle call succeeded after retries",
				zap.String("adapter", report.Adapter),
				zap.String("model", report.Model),
				zap.Int("retries", report.Retries),
			)
		}
		if report.Error == "" && report.FallbackUsed {
			o.logger.Info("oracle fallback used", zap.String("adapter", report.Adapter), zap.String("model", report.Model))
		}
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, ErrBudgetExceeded) {
			return nil, err
		}
		return nil, adapter.Unavailable(err)
	}
	return resp, nil
}

func callAdapterWithPolicy(
	ctx context.Context,
	adapters map[string]adapter.Adapter,
	adapterName string,
	model string,
	req *adapter.Request,
	cfg *config.RoutingConfig,
	tracker *costTracker,
	callTimeout time.Duration,
) (*adapter.Response, []adapter.CallReport, error) {
	targets := buildTargets(adapterName, model, cfg)
	retryCfg := retrySettings(cfg)
	var reports []adapter.CallReport
	var lastErr error

	for idx, target := range targets {
		adapterImpl, ok := adapters[target.Adapter]
		if !ok {
			lastErr = fmt.Errorf("adapter %s not configured", target.Adapter)
			continue
		}

		for attempt := 0; attempt <= retryCfg.MaxRetries; attempt++ {
			if err := tracker.checkBudget(target.Adapter, target.Model); err != nil {
				return nil, reports, err
			}

			attemptReq := *req
			attemptReq.Model = target.Model
			resp, err := invokeWithTimeout(ctx, adapterImpl, &attemptReq, callTimeout)
			if err == nil {
				usage := normalizeUsage(resp.Usage)
				cost, _ := estimateCost(cfgPricing(cfg), target.Adapter, target.Model, usage)
				reports = append(reports, adapter.CallReport{
					Adapter:      target.Adapter,
					Model:        target.Model,
					Usage:        usage,
					Cost:         cost,
					Retries:      attempt,
					FallbackUsed: idx > 0,
				})
				return resp, reports, nil
			}

			lastErr = err
			if ctx.Err() != nil {
				return nil, reports, ctx.Err()
			}
			if !adapter.IsTransient(err) || attempt == retryCfg.MaxRetries {
				reports = append(reports, adapter.CallReport{
					Adapter:      target.Adapter,
					Model:        target.Model,
					Usage:        adapter.Usage{},
					Cost:         adapter.Cost{Currency: "USD"},
					Retries:      attempt,
					FallbackUsed: idx > 0,
					Error:        err.Error(),
				})
				break
			}

			backoff := computeBackoff(retryCfg.BaseBackoffMs, retryCfg.MaxBackoffMs, attempt)
			if err := sleepWithContext(ctx, backoff); err != nil {
				return nil, reports, err
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("adapter call failed")
	}
	return nil, reports, lastErr
}

func invokeWithTimeout(ctx context.Context, a adapter.Adapter, req *adapter.Request, timeout time.Duration) (*adapter.Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := a.Invoke(ctx, req)
	if err == nil && resp == nil {
		return nil, fmt.Errorf("adapter %s returned no response", a.Name())
	}
	return resp, err
}

func buildTargets(adapterName, model string, cfg *config.RoutingConfig) []callTarget {
	targets := []callTarget{{Adapter: adapterName, Model: model}}
	if cfg == nil || !cfg.Fallback.AllowFallback {
		return targets
	}
	chain := resolveFallbackChain(cfg, adapterName, model)
	for _, entry := range chain {
		targets = append(targets, callTarget{Adapter: entry.Adapter, Model: cfg.Resolve(entry.Model)})
	}
	return targets
}

func resolveFallbackChain(cfg *config.RoutingConfig, adapterName, model string) []config.RouteTarget {
	if cfg == nil || cfg.Fallback.FallbackChain == nil {
		return nil
	}
	key := fmt.Sprintf("%s/%s", adapterName, model)
	if chain, ok := cfg.Fallback.FallbackChain[key]; ok {
		return chain
	}
	if chain, ok := cfg.Fallback.FallbackChain[adapterName]; ok {
		return chain
	}
	return nil
}

func retrySettings(cfg *config.RoutingConfig) config.RetryConfig {
	if cfg == nil {
		return config.RetryConfig{MaxRetries: 2, BaseBackoffMs: 200, MaxBackoffMs: 2000}
	}
	return cfg.Retry
}

func computeBackoff(baseMs, maxMs, attempt int) time.Duration {
	backoff := time.Duration(baseMs) * time.Millisecond
	limit := time.Duration(maxMs) * time.Millisecond
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= limit {
			return limit
		}
	}
	if backoff > limit {
		return limit
	}
	return backoff
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func cfgPricing(cfg *config.RoutingConfig) config.PricingConfig {
	if cfg == nil {
		return nil
	}
	return cfg.Pricing
}
