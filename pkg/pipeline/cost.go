package pipeline

import (
	"errors"
	"fmt"

	"github.com/zen-systems/gameforge/pkg/adapter"
	"github.com/zen-systems/gameforge/pkg/config"
	"github.com/zen-systems/gameforge/pkg/evidence"
)

// ErrBudgetExceeded stops a run whose estimated oracle spend reached the cap.
var ErrBudgetExceeded = errors.New("cost budget exceeded")

// costTracker accumulates usage for one run. Runs are sequential, so the
// tracker is not shared between goroutines.
type costTracker struct {
	pricing       config.PricingConfig
	totalUsage    adapter.Usage
	totalAmount   float64
	currency      string
	calls         []adapter.CallReport
	byStage       map[string]evidence.StageCost
	maxBudgetUSD  float64
	lastUsageHint *adapter.Usage
}

func newCostTracker(cfg *config.RoutingConfig, maxBudgetUSD float64) *costTracker {
	pricing := config.PricingConfig(nil)
	if cfg != nil {
		pricing = cfg.Pricing
	}
	return &costTracker{
		pricing:      pricing,
		currency:     "USD",
		maxBudgetUSD: maxBudgetUSD,
	}
}

func (t *costTracker) checkBudget(adapterName, model string) error {
	if t == nil || t.maxBudgetUSD <= 0 {
		return nil
	}
	if t.totalAmount >= t.maxBudgetUSD {
		return fmt.Errorf("%w: limit %.2f, spent %.2f", ErrBudgetExceeded, t.maxBudgetUSD, t.totalAmount)
	}
	if t.lastUsageHint == nil {
		return nil
	}

	cost, ok := estimateCost(t.pricing, adapterName, model, *t.lastUsageHint)
	if !ok {
		return nil
	}
	if projected := t.totalAmount + cost.Amount; projected > t.maxBudgetUSD {
		return fmt.Errorf("%w: limit %.2f, projected %.2f", ErrBudgetExceeded, t.maxBudgetUSD, projected)
	}
	return nil
}

func (t *costTracker) recordReports(reports []adapter.CallReport) {
	if t == nil {
		return
	}
	for _, report := range reports {
		t.calls = append(t.calls, report)
		if t.byStage == nil {
			t.byStage = make(map[string]evidence.StageCost)
		}
		sc := t.byStage[report.Stage]
		sc.Calls++
		if report.Error != "" {
			sc.Failed++
			t.byStage[report.Stage] = sc
			continue
		}
		sc.Amount += report.Cost.Amount
		sc.Usage = addUsage(sc.Usage, report.Usage)
		t.byStage[report.Stage] = sc

		t.totalAmount += report.Cost.Amount
		t.totalUsage = addUsage(t.totalUsage, report.Usage)
		usage := report.Usage
		t.lastUsageHint = &usage
	}
}

// mark returns a position for callsSince.
func (t *costTracker) mark() int {
	if t == nil {
		return 0
	}
	return len(t.calls)
}

func (t *costTracker) callsSince(mark int) []adapter.CallReport {
	if t == nil || mark >= len(t.calls) {
		return nil
	}
	return append([]adapter.CallReport(nil), t.calls[mark:]...)
}

func (t *costTracker) report() *evidence.RunCostReport {
	if t == nil {
		return nil
	}
	byStage := make(map[string]evidence.StageCost, len(t.byStage))
	for name, sc := range t.byStage {
		byStage[name] = sc
	}
	return &evidence.RunCostReport{
		Currency:    t.currency,
		TotalAmount: t.totalAmount,
		TotalUsage:  t.totalUsage,
		ByStage:     byStage,
		Calls:       append([]adapter.CallReport(nil), t.calls...),
	}
}

func normalizeUsage(u *adapter.Usage) adapter.Usage {
	if u == nil {
		return adapter.Usage{}
	}
	usage := *u
	if usage.TotalTokens == 0 && (usage.PromptTokens > 0 || usage.CompletionTokens > 0) {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

func estimateCost(pricing config.PricingConfig, adapterName, model string, usage adapter.Usage) (adapter.Cost, bool) {
	entry, ok := pricingFor(pricing, adapterName, model)
	if !ok {
		return adapter.Cost{Currency: "USD"}, false
	}

	promptCost := (float64(usage.PromptTokens) / 1000.0) * entry.PromptPer1K
	completionCost := (float64(usage.CompletionTokens) / 1000.0) * entry.CompletionPer1K
	return adapter.Cost{
		Currency:     "USD",
		Amount:       promptCost + completionCost,
		IsEstimate:   true,
		PricingModel: "per_1k_tokens",
	}, true
}

func pricingFor(pricing config.PricingConfig, adapterName, model string) (config.ModelPricing, bool) {
	if pricing == nil {
		return config.ModelPricing{}, false
	}
	if adapterPricing, ok := pricing[adapterName]; ok {
		if entry, ok := adapterPricing[model]; ok {
			return entry, true
		}
		if entry, ok := adapterPricing["default"]; ok {
			return entry, true
		}
	}
	return config.ModelPricing{}, false
}

func addUsage(a adapter.Usage, b adapter.Usage) adapter.Usage {
	return adapter.Usage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
	}
}
