package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zen-systems/gameforge/pkg/evidence"
	"github.com/zen-systems/gameforge/pkg/gate"
	"github.com/zen-systems/gameforge/pkg/logging"
	"github.com/zen-systems/gameforge/pkg/stage"
	"github.com/zen-systems/gameforge/pkg/state"
	"github.com/zen-systems/gameforge/pkg/status"
)

const tracerName = "github.com/zen-systems/gameforge/pkg/pipeline"

// RunOptions configures one run.
type RunOptions struct {
	RunID string
	Input state.Document
	// EvidenceDir receives <run_id>/ with the audit bundle. Empty disables it.
	EvidenceDir string
	Logger      *zap.Logger
}

// RunResult captures a finished run. State is the terminal snapshot.
type RunResult struct {
	RunID       string
	State       state.State
	EvidenceDir string
	Steps       []StepResult
	Cost        *evidence.RunCostReport
	Duration    time.Duration
}

// StepResult captures one stage execution.
type StepResult struct {
	Seq      int
	Stage    stage.Name
	Adapter  string
	Model    string
	Duration time.Duration
	Decision *gate.Decision
	// Next is the stage that follows; empty once the run is terminal.
	Next stage.Name
	Err  error
}

// Shipped reports whether the run finished with an approved game.
func (r *RunResult) Shipped() bool {
	return r != nil && r.State.Status == state.StatusDone && r.State.ShipApproved
}

// run is the per-run working set. Nothing in it outlives Run.
type run struct {
	p       *Pipeline
	logger  *zap.Logger
	tracer  trace.Tracer
	tracker *costTracker
	writer  *evidence.Writer
	result  *RunResult
}

// Run drives a new run from the planner until a terminal status. The
// returned result is non-nil whenever the run started; err is non-nil when
// the run ended failed (stage error, unavailable oracle, cancellation).
func Run(ctx context.Context, p *Pipeline, opts RunOptions) (*RunResult, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if opts.RunID == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("run_id", opts.RunID))

	tracer := p.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	r := &run{
		p:       p,
		logger:  logger,
		tracer:  tracer,
		tracker: newCostTracker(p.Routing, p.MaxBudgetUSD),
		result:  &RunResult{RunID: opts.RunID},
	}

	s := state.New(opts.RunID, opts.Input)
	if opts.EvidenceDir != "" {
		writer, err := evidence.NewWriter(opts.EvidenceDir, opts.RunID)
		if err != nil {
			return nil, fmt.Errorf("prepare evidence dir: %w", err)
		}
		r.writer = writer
		r.result.EvidenceDir = writer.RunDir()
		r.writeRun(s)
	}

	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run_id", opts.RunID),
		attribute.String("title", s.Input.Title()),
	))
	defer span.End()

	start := time.Now()
	final, err := r.loop(ctx, s)
	r.result.State = final
	r.result.Cost = r.tracker.report()
	r.result.Duration = time.Since(start)

	p.Metrics.ObserveRun(string(final.Status), final.ShipApproved)
	r.writeFinal(final)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("run failed", zap.Error(err), zap.Int("errors", len(final.Errors)))
	} else {
		logger.Info("run finished",
			zap.String("status", string(final.Status)),
			zap.Bool("ship_approved", final.ShipApproved),
			zap.Int("design_iterations", final.DesignIteration),
			zap.Int("code_iterations", final.CodeIteration),
			zap.Duration("duration", r.result.Duration),
		)
	}
	return r.result, err
}

func (r *run) loop(ctx context.Context, s state.State) (state.State, error) {
	bound := r.p.StepBound()
	current := stage.Planner

	for seq := 1; ; seq++ {
		if seq > bound {
			s = s.Apply(state.Transition{Status: state.StatusFailed, Error: ErrStepBudgetExceeded.Error()})
			return s, fmt.Errorf("%w: %d steps", ErrStepBudgetExceeded, bound)
		}
		if err := ctx.Err(); err != nil {
			return r.cancel(ctx, current, s, err)
		}

		next, step, err := r.step(ctx, seq, current, s)
		r.result.Steps = append(r.result.Steps, step)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return r.cancel(ctx, current, s, err)
			}
			s = s.Apply(state.Transition{Status: state.StatusFailed, Error: fmt.Sprintf("%s: %v", current, err)})
			r.push(ctx, current, s)
			return s, fmt.Errorf("stage %s: %w", current, err)
		}
		s = next

		if s.Status.IsTerminal() {
			return s, nil
		}
		current = step.Next
	}
}

// step executes one stage, merges its delta, consults the gate and moves
// the status to the next stage (or done).
func (r *run) step(ctx context.Context, seq int, name stage.Name, s state.State) (state.State, StepResult, error) {
	target := r.p.Routing.Route(string(name))
	step := StepResult{Seq: seq, Stage: name, Adapter: target.Adapter, Model: target.Model}
	log := r.logger.With(logging.RunFields(s.RunID, string(name), iterationFor(name, s))...)

	ctx, span := r.tracer.Start(ctx, "stage."+string(name), trace.WithAttributes(
		attribute.String("run_id", s.RunID),
		attribute.String("stage", string(name)),
		attribute.String("adapter", target.Adapter),
		attribute.String("model", target.Model),
		attribute.Int("design_iteration", s.DesignIteration),
		attribute.Int("code_iteration", s.CodeIteration),
	))
	defer span.End()

	oracle := &routedOracle{
		stage:       string(name),
		adapters:    r.p.Adapters,
		target:      target,
		routing:     r.p.Routing,
		tracker:     r.tracker,
		metrics:     r.p.Metrics,
		logger:      log,
		callTimeout: r.p.OracleTimeout,
	}
	env := stage.Env{
		Oracle:     oracle,
		Model:      target.Model,
		Logger:     log,
		OnToolCall: r.p.Metrics.ObserveTool,
	}

	log.Info("stage started", zap.String("adapter", target.Adapter), zap.String("model", target.Model))
	mark := r.tracker.mark()
	start := time.Now()
	res, err := r.p.Stages[name].Run(ctx, env, s)
	step.Duration = time.Since(start)

	record := evidence.StageRecord{
		Seq:             seq,
		Name:            string(name),
		Adapter:         target.Adapter,
		Model:           target.Model,
		StatusBefore:    string(s.Status),
		DesignIteration: s.DesignIteration,
		CodeIteration:   s.CodeIteration,
		DurationMillis:  step.Duration.Milliseconds(),
	}

	if err != nil {
		step.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.p.Metrics.ObserveStage(string(name), "error", step.Duration)
		log.Error("stage failed", zap.Error(err), zap.Duration("duration", step.Duration))
		record.StatusAfter = string(state.StatusFailed)
		record.Error = err.Error()
		record.Calls = r.tracker.callsSince(mark)
		r.writeStage(record, res)
		return s, step, err
	}
	r.p.Metrics.ObserveStage(string(name), "ok", step.Duration)

	next := s.Apply(res.Delta)
	t := r.p.next(name, next)
	if t.decision != nil {
		step.Decision = t.decision
		r.p.Metrics.ObserveGate(t.decision.Gate, gateBranch(*t.decision))
		fields := []zap.Field{
			zap.String("gate", t.decision.Gate),
			zap.String("next", string(t.decision.Next)),
			zap.String("reason", t.decision.Reason),
		}
		if t.decision.Forced {
			log.Warn("gate exhausted, advancing without approval", fields...)
		} else {
			log.Info("gate decision", fields...)
		}
	}
	if t.terminal {
		next = next.Apply(state.Transition{Status: state.StatusDone})
	} else {
		step.Next = t.next
		next = next.Apply(state.Transition{Status: entryStatus(t.next)})
	}

	log.Info("stage finished",
		zap.Duration("duration", step.Duration),
		zap.String("status", string(next.Status)),
	)

	record.StatusAfter = string(next.Status)
	record.DesignIteration = next.DesignIteration
	record.CodeIteration = next.CodeIteration
	record.NewErrors = newErrors(s, next)
	record.Calls = r.tracker.callsSince(mark)
	if t.decision != nil {
		record.Gate = &evidence.GateRecord{
			Gate:     t.decision.Gate,
			Next:     string(t.decision.Next),
			Forced:   t.decision.Forced,
			Terminal: t.decision.Terminal,
			Reason:   t.decision.Reason,
		}
	}
	r.writeStage(record, res)
	r.push(ctx, name, next)
	return next, step, nil
}

func (r *run) cancel(ctx context.Context, current stage.Name, s state.State, cause error) (state.State, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		cause = ctxErr
	}
	r.logger.Warn("run cancelled", zap.String("stage", string(current)), zap.Error(cause))
	s = s.Apply(state.Transition{
		Status: state.StatusFailed,
		Error:  fmt.Sprintf("run cancelled before %s completed: %v", current, cause),
	})
	r.push(ctx, current, s)
	return s, fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// push reports a snapshot. Failures are logged and never stop the run; a
// cancelled run still reports its final snapshot.
func (r *run) push(ctx context.Context, name stage.Name, s state.State) {
	if r.p.Sink == nil {
		return
	}
	timeout := r.p.StatusTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := r.p.Sink.Push(pushCtx, status.FromState(string(name), s)); err != nil {
		r.logger.Warn("status push failed", zap.String("stage", string(name)), zap.Error(err))
	}
}

func (r *run) writeRun(s state.State) {
	routes := map[string]string{}
	for _, name := range r.p.graph() {
		routes[string(name)] = r.p.Routing.Route(string(name)).String()
	}
	record := evidence.RunRecord{
		ID:        s.RunID,
		Timestamp: time.Now().UTC(),
		Title:     s.Input.Title(),
		InputHash: evidence.Hash([]byte(s.Input.JSON())),
		Engine:    r.p.Engine,
		Limits: evidence.LimitsRecord{
			MaxDesignIterations: r.p.Limits.MaxDesignIterations,
			MaxCodeIterations:   r.p.Limits.MaxCodeIterations,
			MaxToolRounds:       r.p.MaxToolRounds,
		},
		Routes: routes,
	}
	if err := r.writer.WriteRun(record); err != nil {
		r.logger.Warn("write run evidence", zap.Error(err))
	}
}

func (r *run) writeStage(record evidence.StageRecord, res stage.Result) {
	if r.writer == nil {
		return
	}
	record.Outputs = r.blobs(deltaOutputs(res.Delta))
	if res.Loop != nil {
		record.Rounds = res.Loop.Rounds
		record.Exhausted = res.Loop.Exhausted
		for _, call := range res.Loop.ToolCalls {
			record.ToolCalls = append(record.ToolCalls, evidence.ToolCallRecord{Round: call.Round, Name: call.Name, Error: call.Error})
		}
	}
	if res.Verdict != nil {
		record.Verdict = res.Verdict.Source
		if res.Verdict.Approved {
			record.Verdict += ":approved"
		} else {
			record.Verdict += ":rejected"
		}
	}
	if res.Runtime != nil {
		record.Runtime = &evidence.RuntimeRecord{
			Errors:   res.Runtime.Errors,
			Warnings: res.Runtime.Warnings,
			Success:  res.Runtime.Success,
		}
	}
	if err := r.writer.WriteStage(record); err != nil {
		r.logger.Warn("write stage evidence", zap.String("stage", record.Name), zap.Error(err))
	}
}

func (r *run) writeFinal(s state.State) {
	if r.writer == nil {
		return
	}
	refs := r.blobs(map[string]string{"game": s.GameCode, "design": s.DesignDoc})
	record := evidence.FinalRecord{
		Status:          string(s.Status),
		ShipApproved:    s.ShipApproved,
		DesignIteration: s.DesignIteration,
		CodeIteration:   s.CodeIteration,
		Steps:           len(r.result.Steps),
		Errors:          s.Errors,
		GameRef:         refs["game"],
		DesignRef:       refs["design"],
		Cost:            r.tracker.report(),
		DurationMillis:  r.result.Duration.Milliseconds(),
	}
	if err := r.writer.WriteFinal(record); err != nil {
		r.logger.Warn("write final evidence", zap.Error(err))
	}
}

func (r *run) blobs(outputs map[string]string) map[string]string {
	if len(outputs) == 0 {
		return nil
	}
	refs := make(map[string]string, len(outputs))
	for kind, content := range outputs {
		if content == "" {
			continue
		}
		ref, _, err := r.writer.WriteBlob(kind, []byte(content))
		if err != nil {
			r.logger.Warn("write evidence blob", zap.String("kind", kind), zap.Error(err))
			continue
		}
		refs[kind] = ref
	}
	return refs
}

func deltaOutputs(d state.Delta) map[string]string {
	switch d := d.(type) {
	case state.PlannerDelta:
		return map[string]string{"design": d.DesignDoc}
	case state.EvaluatorDelta:
		return map[string]string{"feedback": d.Feedback}
	case state.ImplementationPlanDelta:
		return map[string]string{"plan": d.Plan}
	case state.CoderDelta:
		return map[string]string{"game": d.GameCode, "documentation": d.Documentation}
	case state.AssetDelta:
		return map[string]string{"game": d.GameCode}
	case state.PlayerDelta:
		return map[string]string{"playtest": d.Report}
	default:
		return nil
	}
}

func newErrors(before, after state.State) []string {
	if len(after.Errors) <= len(before.Errors) {
		return nil
	}
	return append([]string(nil), after.Errors[len(before.Errors):]...)
}

func iterationFor(name stage.Name, s state.State) int {
	switch name {
	case stage.Planner, stage.Evaluator:
		return s.DesignIteration + 1
	case stage.Coder, stage.AssetEmbedder, stage.Player:
		return s.CodeIteration + 1
	default:
		return 0
	}
}
