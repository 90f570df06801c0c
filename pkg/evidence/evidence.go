// Package evidence writes a per-run audit bundle: run.json, one record per
// stage execution, content-addressed blobs for large outputs, and final.json.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zen-systems/gameforge/pkg/adapter"
)

// RunRecord captures run-level metadata.
type RunRecord struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Title     string            `json:"title"`
	InputHash string            `json:"input_hash"`
	Engine    string            `json:"engine,omitempty"`
	Limits    LimitsRecord      `json:"limits"`
	Routes    map[string]string `json:"routes,omitempty"`
}

// LimitsRecord captures the iteration bounds a run was started with.
type LimitsRecord struct {
	MaxDesignIterations int `json:"max_design_iterations"`
	MaxCodeIterations   int `json:"max_code_iterations"`
	MaxToolRounds       int `json:"max_tool_rounds"`
}

// StageRecord captures one stage execution.
type StageRecord struct {
	Seq             int                  `json:"seq"`
	Name            string               `json:"name"`
	Adapter         string               `json:"adapter,omitempty"`
	Model           string               `json:"model,omitempty"`
	StatusBefore    string               `json:"status_before"`
	StatusAfter     string               `json:"status_after"`
	DesignIteration int                  `json:"design_iteration"`
	CodeIteration   int                  `json:"code_iteration"`
	Outputs         map[string]string    `json:"outputs,omitempty"`
	Rounds          int                  `json:"rounds,omitempty"`
	Exhausted       bool                 `json:"exhausted,omitempty"`
	ToolCalls       []ToolCallRecord     `json:"tool_calls,omitempty"`
	Verdict         string               `json:"verdict,omitempty"`
	Runtime         *RuntimeRecord       `json:"runtime,omitempty"`
	Gate            *GateRecord          `json:"gate,omitempty"`
	NewErrors       []string             `json:"new_errors,omitempty"`
	Error           string               `json:"error,omitempty"`
	Calls           []adapter.CallReport `json:"calls,omitempty"`
	DurationMillis  int64                `json:"duration_ms"`
}

// ToolCallRecord captures a tool call made inside a stage.
type ToolCallRecord struct {
	Round int    `json:"round"`
	Name  string `json:"name"`
	Error string `json:"error,omitempty"`
}

// RuntimeRecord captures a runtime check report.
type RuntimeRecord struct {
	Checker  string   `json:"checker,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Success  bool     `json:"success"`
}

// GateRecord captures the gate decision that followed a stage.
type GateRecord struct {
	Gate     string `json:"gate"`
	Next     string `json:"next"`
	Forced   bool   `json:"forced,omitempty"`
	Terminal bool   `json:"terminal,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// FinalRecord captures the terminal state of a run.
type FinalRecord struct {
	Status          string         `json:"status"`
	ShipApproved    bool           `json:"ship_approved"`
	DesignIteration int            `json:"design_iteration"`
	CodeIteration   int            `json:"code_iteration"`
	Steps           int            `json:"steps"`
	Errors          []string       `json:"errors,omitempty"`
	GameRef         string         `json:"game_ref,omitempty"`
	DesignRef       string         `json:"design_ref,omitempty"`
	Cost            *RunCostReport `json:"cost,omitempty"`
	DurationMillis  int64          `json:"duration_ms"`
}

// RunCostReport aggregates oracle usage for a run.
type RunCostReport struct {
	Currency    string               `json:"currency"`
	TotalAmount float64              `json:"total_amount"`
	TotalUsage  adapter.Usage        `json:"total_usage"`
	ByStage     map[string]StageCost `json:"by_stage,omitempty"`
	Calls       []adapter.CallReport `json:"calls,omitempty"`
}

// StageCost is the share of a run's usage spent in one stage.
type StageCost struct {
	Calls  int           `json:"calls"`
	Failed int           `json:"failed,omitempty"`
	Amount float64       `json:"amount"`
	Usage  adapter.Usage `json:"usage"`
}

// Writer writes evidence bundles to disk.
type Writer struct {
	baseDir string
	runDir  string
}

// NewWriter creates a new evidence writer rooted at baseDir/runID.
func NewWriter(baseDir, runID string) (*Writer, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}
	if strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return nil, fmt.Errorf("invalid run ID %q", runID)
	}

	runDir := filepath.Join(baseDir, runID)
	for _, dir := range []string{runDir, filepath.Join(runDir, "stages"), filepath.Join(runDir, "blobs")} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
		if err := os.Chmod(dir, 0700); err != nil {
			return nil, err
		}
	}

	return &Writer{baseDir: baseDir, runDir: runDir}, nil
}

// RunDir returns the run directory path.
func (w *Writer) RunDir() string {
	return w.runDir
}

// WriteRun writes run metadata to run.json.
func (w *Writer) WriteRun(record RunRecord) error {
	return writeJSON(filepath.Join(w.runDir, "run.json"), record)
}

// WriteStage writes a stage record to stages/<seq>-<stage>.json.
func (w *Writer) WriteStage(record StageRecord) error {
	if record.Name == "" {
		return fmt.Errorf("stage name is required")
	}
	path := filepath.Join(w.runDir, "stages", fmt.Sprintf("%03d-%s.json", record.Seq, sanitizeKind(record.Name)))
	return writeJSON(path, record)
}

// WriteFinal writes the terminal record to final.json.
func (w *Writer) WriteFinal(record FinalRecord) error {
	return writeJSON(filepath.Join(w.runDir, "final.json"), record)
}

// WriteBlob stores content under blobs/<kind>-<sha256>.txt and returns the
// path relative to the run directory. Identical content is written once.
func (w *Writer) WriteBlob(kind string, content []byte) (string, string, error) {
	sha := Hash(content)
	ref := filepath.ToSlash(filepath.Join("blobs", fmt.Sprintf("%s-%s.txt", sanitizeKind(kind), sha)))
	path := filepath.Join(w.runDir, filepath.FromSlash(ref))

	if _, err := os.Stat(path); err == nil {
		return ref, sha, nil
	}
	if err := os.WriteFile(path, content, 0600); err != nil {
		return "", "", err
	}
	return ref, sha, nil
}

// Hash returns the hex sha256 of content.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func sanitizeKind(kind string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(kind) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		case r == ' ' || r == '-':
			sb.WriteRune('_')
		}
	}
	out := strings.Trim(sb.String(), "_")
	if out == "" {
		return "blob"
	}
	return out
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
