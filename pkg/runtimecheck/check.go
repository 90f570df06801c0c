// Package runtimecheck inspects generated game code outside the oracle.
// A non-empty Report.Errors vetoes ship approval.
package runtimecheck

import (
	"context"
	"fmt"
	"strings"
)

// Report is the outcome of one check.
type Report struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Logs     []string `json:"logs,omitempty"`
	Success  bool     `json:"success"`

	Diagnostics *CommandDiagnostics `json:"diagnostics,omitempty"`
}

// Summary renders the report for prompts.
func (r Report) Summary() string {
	var lines []string
	if len(r.Errors) > 0 {
		lines = append(lines, fmt.Sprintf("ERRORS (%d):", len(r.Errors)))
		for _, e := range r.Errors {
			lines = append(lines, "  - "+e)
		}
	}
	if len(r.Warnings) > 0 {
		lines = append(lines, fmt.Sprintf("WARNINGS (%d):", len(r.Warnings)))
		for _, w := range r.Warnings {
			lines = append(lines, "  - "+w)
		}
	}
	if len(lines) == 0 {
		return "No errors or warnings detected."
	}
	return strings.Join(lines, "\n")
}

// Checker runs a game and reports what went wrong.
type Checker interface {
	Check(ctx context.Context, code string) (Report, error)
	Name() string
}

// Multi runs checkers in order and merges their reports. A checker that
// fails to run contributes an error entry instead of aborting the others.
type Multi []Checker

// Name returns the checker identifier.
func (m Multi) Name() string {
	names := make([]string, 0, len(m))
	for _, c := range m {
		names = append(names, c.Name())
	}
	return strings.Join(names, "+")
}

// Check runs every checker.
func (m Multi) Check(ctx context.Context, code string) (Report, error) {
	merged := Report{Success: true}
	for _, c := range m {
		if err := ctx.Err(); err != nil {
			return merged, err
		}
		r, err := c.Check(ctx, code)
		if err != nil {
			merged.Errors = append(merged.Errors, fmt.Sprintf("%s: %v", c.Name(), err))
			merged.Success = false
			continue
		}
		merged.Errors = append(merged.Errors, r.Errors...)
		merged.Warnings = append(merged.Warnings, r.Warnings...)
		merged.Logs = append(merged.Logs, r.Logs...)
		if r.Diagnostics != nil {
			merged.Diagnostics = r.Diagnostics
		}
		merged.Success = merged.Success && r.Success
	}
	if len(merged.Errors) > 0 {
		merged.Success = false
	}
	return merged, nil
}
