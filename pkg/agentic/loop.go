// Package agentic runs a bounded oracle/tool exchange for one stage.
package agentic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/gameforge/pkg/adapter"
	"github.com/zen-systems/gameforge/pkg/tools"
)

// DefaultMaxToolRounds bounds oracle invocations per sub-loop.
const DefaultMaxToolRounds = 5

// Options configures a Loop.
type Options struct {
	Model     string
	MaxRounds int
	MaxTokens int
	// CallTimeout bounds each oracle invocation. Zero means no extra bound.
	CallTimeout time.Duration
	Logger      *zap.Logger
	// OnToolCall is notified after every tool execution with outcome
	// "ok", "not_found" or "error".
	OnToolCall func(name, outcome string)
}

// ToolCallRecord describes one executed tool call.
type ToolCallRecord struct {
	Round  int    `json:"round"`
	ID     string `json:"id"`
	Name   string `json:"name"`
	Error  string `json:"error,omitempty"`
	Output int    `json:"output_bytes"`
}

// Result is the outcome of a sub-loop. Exhausted is set when the round
// bound was reached without a final answer; Text is then the text of the
// last response.
type Result struct {
	Text      string           `json:"-"`
	Rounds    int              `json:"rounds"`
	Exhausted bool             `json:"exhausted"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
}

// Loop alternates oracle turns and tool executions.
type Loop struct {
	oracle  adapter.Adapter
	invoker tools.Invoker
	opts    Options
}

// New creates a loop. invoker may be nil, in which case no tools are
// offered and the first response is final.
func New(oracle adapter.Adapter, invoker tools.Invoker, opts Options) (*Loop, error) {
	if oracle == nil {
		return nil, errors.New("oracle is required")
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxToolRounds
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Loop{oracle: oracle, invoker: invoker, opts: opts}, nil
}

// Run seeds the history with system and user prompts and iterates until a
// final response or the round bound.
func (l *Loop) Run(ctx context.Context, system, user string) (Result, error) {
	var defs []adapter.ToolDefinition
	if l.invoker != nil {
		defs = l.invoker.Definitions()
	}
	history := []adapter.Message{adapter.UserMessage(user)}

	var res Result
	var last *adapter.Response
	for res.Rounds < l.opts.MaxRounds {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Rounds++

		resp, err := l.invoke(ctx, &adapter.Request{
			Model:     l.opts.Model,
			System:    system,
			Messages:  append([]adapter.Message(nil), history...),
			Tools:     defs,
			MaxTokens: l.opts.MaxTokens,
		})
		if err != nil {
			return res, err
		}
		last = resp

		if resp.IsFinal() {
			res.Text = resp.Text
			return res, nil
		}

		history = append(history, adapter.AssistantMessage(resp.Text, resp.ToolCalls...))
		for _, call := range resp.ToolCalls {
			out, err := l.execute(ctx, call)
			if err != nil {
				return res, err
			}
			rec := ToolCallRecord{Round: res.Rounds, ID: call.ID, Name: call.Name, Output: len(out.text)}
			if out.err != nil {
				rec.Error = out.err.Error()
			}
			res.ToolCalls = append(res.ToolCalls, rec)
			history = append(history, adapter.ToolResultMessage(call, out.text))
		}
	}

	res.Exhausted = true
	if last != nil {
		res.Text = last.Text
	}
	l.opts.Logger.Warn("tool rounds exhausted without final response",
		zap.Int("rounds", res.Rounds),
		zap.Int("tool_calls", len(res.ToolCalls)),
	)
	return res, nil
}

func (l *Loop) invoke(ctx context.Context, req *adapter.Request) (*adapter.Response, error) {
	if l.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.CallTimeout)
		defer cancel()
	}
	resp, err := l.oracle.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("oracle returned no response")
	}
	return resp, nil
}

type toolOutput struct {
	text string
	err  error
}

// execute runs one call. Tool failures become result text for the model;
// only cancellation of ctx is returned as an error.
func (l *Loop) execute(ctx context.Context, call adapter.ToolCall) (toolOutput, error) {
	if err := ctx.Err(); err != nil {
		return toolOutput{}, err
	}
	if l.invoker == nil {
		err := fmt.Errorf("%w: %q", tools.ErrToolNotFound, call.Name)
		l.notify(call.Name, "not_found")
		return toolOutput{text: fmt.Sprintf("Error: unknown tool %q", call.Name), err: err}, nil
	}

	text, err := l.invoker.Invoke(ctx, call.Name, call.Arguments)
	switch {
	case err == nil:
		l.notify(call.Name, "ok")
		l.opts.Logger.Debug("tool call", zap.String("tool", call.Name), zap.Int("output_bytes", len(text)))
		return toolOutput{text: text}, nil
	case ctx.Err() != nil:
		return toolOutput{}, ctx.Err()
	case errors.Is(err, tools.ErrToolNotFound):
		l.notify(call.Name, "not_found")
		l.opts.Logger.Warn("unknown tool requested", zap.String("tool", call.Name))
		return toolOutput{text: fmt.Sprintf("Error: unknown tool %q", call.Name), err: err}, nil
	default:
		l.notify(call.Name, "error")
		l.opts.Logger.Warn("tool call failed", zap.String("tool", call.Name), zap.Error(err))
		return toolOutput{text: fmt.Sprintf("Error: %v", err), err: err}, nil
	}
}

func (l *Loop) notify(name, outcome string) {
	if l.opts.OnToolCall != nil {
		l.opts.OnToolCall(name, outcome)
	}
}
