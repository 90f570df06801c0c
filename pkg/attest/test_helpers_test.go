package attest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/zen-systems/gameforge/pkg/evidence"
)

// writeRunBundle writes a two-gate shipped run and returns its directory.
func writeRunBundle(t *testing.T) string {
	t.Helper()
	w, err := evidence.NewWriter(t.TempDir(), "run-1")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.WriteRun(evidence.RunRecord{ID: "run-1", Title: "Fractions", InputHash: evidence.Hash([]byte("plan"))}); err != nil {
		t.Fatalf("write run: %v", err)
	}

	design, _, err := w.WriteBlob("design", []byte("GAME_TYPE: maze"))
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}
	game, _, err := w.WriteBlob("game", []byte("<html></html>"))
	if err != nil {
		t.Fatalf("write blob: %v", err)
	}

	records := []evidence.StageRecord{
		{Seq: 1, Name: "planner", Outputs: map[string]string{"design": design}},
		{Seq: 2, Name: "evaluator", Gate: &evidence.GateRecord{Gate: "design", Next: "implementation_planner"}},
		{Seq: 3, Name: "coder", Outputs: map[string]string{"game": game}},
		{Seq: 4, Name: "player", Gate: &evidence.GateRecord{Gate: "ship", Next: "done", Terminal: true}},
	}
	for _, record := range records {
		if err := w.WriteStage(record); err != nil {
			t.Fatalf("write stage: %v", err)
		}
	}
	if err := w.WriteFinal(evidence.FinalRecord{
		Status:          "done",
		ShipApproved:    true,
		DesignIteration: 1,
		CodeIteration:   1,
		Steps:           len(records),
		GameRef:         game,
		DesignRef:       design,
	}); err != nil {
		t.Fatalf("write final: %v", err)
	}
	return w.RunDir()
}

func writeJSONFile(t *testing.T, path string, value any) {
	t.Helper()
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write json: %v", err)
	}
}

func readFinal(t *testing.T, runDir string) evidence.FinalRecord {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(runDir, "final.json"))
	if err != nil {
		t.Fatalf("read final: %v", err)
	}
	var final evidence.FinalRecord
	if err := json.Unmarshal(data, &final); err != nil {
		t.Fatalf("parse final: %v", err)
	}
	return final
}
