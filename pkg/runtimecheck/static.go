package runtimecheck

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var (
	scriptOpenPattern  = regexp.MustCompile(`(?i)<script`)
	scriptClosePattern = regexp.MustCompile(`(?i)</script>`)
)

// StaticChecker performs structural checks on a single-file HTML game.
type StaticChecker struct {
	// Engine is the library name expected in a script reference.
	Engine string
	// InitCall is the expected engine bootstrap, e.g. "kaplay(".
	InitCall string
}

// NewStaticChecker returns a checker for the given engine. An empty engine
// defaults to kaplay.
func NewStaticChecker(engine string) *StaticChecker {
	if engine == "" {
		engine = "kaplay"
	}
	return &StaticChecker{Engine: engine, InitCall: engine + "("}
}

// Name returns the checker identifier.
func (c *StaticChecker) Name() string {
	return "static"
}

// Issues lists structural problems with code.
func (c *StaticChecker) Issues(code string) []string {
	var issues []string
	if !strings.Contains(strings.ToLower(code), "<!doctype html>") {
		issues = append(issues, "Missing <!DOCTYPE html> declaration")
	}
	if !strings.Contains(strings.ToLower(code), "<html") {
		issues = append(issues, "Missing <html> tag")
	}
	if c.Engine != "" && !strings.Contains(strings.ToLower(code), strings.ToLower(c.Engine)) {
		issues = append(issues, fmt.Sprintf("Missing %s script reference", c.Engine))
	}
	if c.InitCall != "" && !strings.Contains(code, c.InitCall) {
		issues = append(issues, fmt.Sprintf("Missing %s) initialization", c.InitCall))
	}
	open := len(scriptOpenPattern.FindAllStringIndex(code, -1))
	closed := len(scriptClosePattern.FindAllStringIndex(code, -1))
	if open != closed {
		issues = append(issues, fmt.Sprintf("Unbalanced script tags: %d open, %d close", open, closed))
	}
	return issues
}

// Check reports structural issues as errors.
func (c *StaticChecker) Check(ctx context.Context, code string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	issues := c.Issues(code)
	return Report{Errors: issues, Success: len(issues) == 0}, nil
}

// Describe renders the issues the way the validate_html tool reports them.
func (c *StaticChecker) Describe(code string) string {
	issues := c.Issues(code)
	if len(issues) == 0 {
		return "VALID: All basic checks passed."
	}
	return "ISSUES FOUND:\n- " + strings.Join(issues, "\n- ")
}
