// Package state holds the pipeline record passed between stages. A State is
// a value: merging a delta returns a new State and leaves the receiver (and
// every slice it references) untouched.
package state

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the lifecycle position of a run.
type Status string

const (
	StatusPlanning               Status = "planning"
	StatusEvaluating             Status = "evaluating"
	StatusImplementationPlanning Status = "implementation_planning"
	StatusCoding                 Status = "coding"
	StatusGeneratingAssets       Status = "generating_assets"
	StatusPlaytesting            Status = "playtesting"
	StatusDone                   Status = "done"
	StatusFailed                 Status = "failed"
)

// IsTerminal reports whether no further stage will run.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Document is the structured input (a lesson plan). It is opaque to the
// pipeline apart from a few well-known keys used for titles.
type Document map[string]any

// ParseDocument decodes a JSON object into a Document.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse input document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("parse input document: expected a JSON object")
	}
	return doc, nil
}

// Title returns the document title, falling back to "Untitled".
func (d Document) Title() string {
	for _, key := range []string{"title", "name", "topic"} {
		if v, ok := d[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return "Untitled"
}

// JSON renders the document for prompts.
func (d Document) JSON() string {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// State is the single record threaded through a run.
type State struct {
	RunID string   `json:"run_id"`
	Input Document `json:"input"`

	DesignDoc    string `json:"design_doc,omitempty"`
	GameType     string `json:"game_type,omitempty"`
	TemplateCode string `json:"template_code,omitempty"`

	DesignFeedback string `json:"design_feedback,omitempty"`
	DesignApproved bool   `json:"design_approved"`

	ImplementationPlan string `json:"implementation_plan,omitempty"`

	GameCode      string `json:"game_code,omitempty"`
	Documentation string `json:"documentation,omitempty"`

	Assets         []string `json:"assets,omitempty"`
	AssetsEmbedded bool     `json:"assets_embedded"`

	PlaytestReport string   `json:"playtest_report,omitempty"`
	ShipApproved   bool     `json:"ship_approved"`
	PlaytestErrors []string `json:"playtest_errors,omitempty"`

	Errors []string `json:"errors,omitempty"`

	DesignIteration int    `json:"design_iteration"`
	CodeIteration   int    `json:"code_iteration"`
	Status          Status `json:"status"`
}

// New creates the initial state for a run.
func New(runID string, input Document) State {
	return State{
		RunID:  runID,
		Input:  input,
		Status: StatusPlanning,
	}
}

// Apply merges d into a copy of s and returns the copy.
func (s State) Apply(d Delta) State {
	next := s.clone()
	if d != nil {
		d.apply(&next)
	}
	return next
}

func (s State) clone() State {
	next := s
	next.Assets = cloneStrings(s.Assets)
	next.PlaytestErrors = cloneStrings(s.PlaytestErrors)
	next.Errors = cloneStrings(s.Errors)
	return next
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append(make([]string, 0, len(in)), in...)
}
