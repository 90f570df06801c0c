// Package attest builds and verifies attestations over a run's evidence
// bundle: a content hash for every file plus a claim about the outcome that
// can be recomputed from the records themselves.
package attest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zen-systems/gameforge/pkg/evidence"
)

// Schema identifies the attestation format.
const Schema = "gameforge.attestation.v1"

// Attestation captures a run's outcome and the evidence it rests on.
type Attestation struct {
	Schema    string            `json:"schema"`
	Subject   Subject           `json:"subject"`
	Claim     Claim             `json:"claim"`
	Evidence  Evidence          `json:"evidence"`
	Hashes    map[string]string `json:"hashes"`
	Signature *Signature        `json:"signature,omitempty"`
}

// Subject identifies the attested run.
type Subject struct {
	RunID     string `json:"run_id"`
	Title     string `json:"title"`
	InputHash string `json:"input_hash"`
}

// Claim summarizes the run outcome.
type Claim struct {
	Status          string      `json:"status"`
	ShipApproved    bool        `json:"ship_approved"`
	DesignIteration int         `json:"design_iteration"`
	CodeIteration   int         `json:"code_iteration"`
	Stages          int         `json:"stages"`
	Gates           []GateClaim `json:"gates"`
}

// GateClaim summarizes one gate decision.
type GateClaim struct {
	Seq    int    `json:"seq"`
	Gate   string `json:"gate"`
	Next   string `json:"next"`
	Forced bool   `json:"forced,omitempty"`
}

// Evidence references the run files.
type Evidence struct {
	RunJSON   string   `json:"run_json"`
	FinalJSON string   `json:"final_json"`
	Stages    []string `json:"stages"`
	Blobs     []string `json:"blobs"`
}

// bundle is a parsed run directory.
type bundle struct {
	run    evidence.RunRecord
	final  evidence.FinalRecord
	stages []evidence.StageRecord
	paths  []string
}

// Build creates an attestation for the run directory written by a
// pipeline run.
func Build(runDir string) (*Attestation, error) {
	if runDir == "" {
		return nil, fmt.Errorf("runDir is required")
	}
	b, err := load(runDir)
	if err != nil {
		return nil, err
	}

	blobs := collectBlobs(b)
	hashes := make(map[string]string)
	for _, rel := range append(append([]string{"run.json", "final.json"}, b.paths...), blobs...) {
		if _, ok := hashes[rel]; ok {
			continue
		}
		sum, err := hashFile(runDir, rel)
		if err != nil {
			return nil, err
		}
		hashes[rel] = sum
	}

	return &Attestation{
		Schema: Schema,
		Subject: Subject{
			RunID:     b.run.ID,
			Title:     b.run.Title,
			InputHash: b.run.InputHash,
		},
		Claim: claimFor(b),
		Evidence: Evidence{
			RunJSON:   "run.json",
			FinalJSON: "final.json",
			Stages:    b.paths,
			Blobs:     blobs,
		},
		Hashes: hashes,
	}, nil
}

// WriteFile stores att as indented JSON.
func WriteFile(att *Attestation, path string) error {
	data, err := json.MarshalIndent(att, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ReadFile loads an attestation.
func ReadFile(path string) (*Attestation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var att Attestation
	if err := json.Unmarshal(data, &att); err != nil {
		return nil, fmt.Errorf("parse attestation: %w", err)
	}
	return &att, nil
}

func load(runDir string) (*bundle, error) {
	var b bundle
	if err := readJSON(runDir, "run.json", &b.run); err != nil {
		return nil, err
	}
	if err := readJSON(runDir, "final.json", &b.final); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(runDir, "stages"))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		b.paths = append(b.paths, filepath.ToSlash(filepath.Join("stages", entry.Name())))
	}
	sort.Strings(b.paths)

	for _, rel := range b.paths {
		var record evidence.StageRecord
		if err := readJSON(runDir, rel, &record); err != nil {
			return nil, err
		}
		b.stages = append(b.stages, record)
	}
	sort.SliceStable(b.stages, func(i, j int) bool { return b.stages[i].Seq < b.stages[j].Seq })
	return &b, nil
}

func claimFor(b *bundle) Claim {
	gates := make([]GateClaim, 0)
	for _, record := range b.stages {
		if record.Gate == nil {
			continue
		}
		gates = append(gates, GateClaim{
			Seq:    record.Seq,
			Gate:   record.Gate.Gate,
			Next:   record.Gate.Next,
			Forced: record.Gate.Forced,
		})
	}
	return Claim{
		Status:          b.final.Status,
		ShipApproved:    b.final.ShipApproved,
		DesignIteration: b.final.DesignIteration,
		CodeIteration:   b.final.CodeIteration,
		Stages:          len(b.stages),
		Gates:           gates,
	}
}

func collectBlobs(b *bundle) []string {
	seen := make(map[string]struct{})
	blobs := make([]string, 0)
	add := func(ref string) {
		if ref == "" {
			return
		}
		ref = filepath.ToSlash(ref)
		if _, ok := seen[ref]; ok {
			return
		}
		seen[ref] = struct{}{}
		blobs = append(blobs, ref)
	}
	for _, record := range b.stages {
		for _, ref := range record.Outputs {
			add(ref)
		}
	}
	add(b.final.GameRef)
	add(b.final.DesignRef)
	sort.Strings(blobs)
	return blobs
}

func readJSON(runDir, rel string, v any) error {
	path, err := safeJoin(runDir, rel)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", rel, err)
	}
	return nil
}

func hashFile(runDir, rel string) (string, error) {
	path, err := safeJoin(runDir, rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return evidence.Hash(data), nil
}

func safeJoin(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute path not allowed")
	}
	normalized := filepath.FromSlash(rel)
	for _, seg := range strings.Split(normalized, string(filepath.Separator)) {
		if seg == ".." {
			return "", fmt.Errorf("path traversal detected")
		}
	}
	clean := filepath.Clean(normalized)
	if clean == "." {
		return "", fmt.Errorf("invalid path")
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	targetAbs := filepath.Join(rootAbs, clean)
	if targetAbs != rootAbs && !strings.HasPrefix(targetAbs, rootAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes run dir")
	}
	return targetAbs, nil
}
