package attest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildSummarizesRun(t *testing.T) {
	runDir := writeRunBundle(t)

	att, err := Build(runDir)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if att.Schema != Schema {
		t.Fatalf("schema = %q", att.Schema)
	}
	if att.Subject.RunID != "run-1" || att.Subject.Title != "Fractions" {
		t.Fatalf("unexpected subject: %+v", att.Subject)
	}
	if att.Claim.Status != "done" || !att.Claim.ShipApproved {
		t.Fatalf("unexpected claim: %+v", att.Claim)
	}
	if att.Claim.Stages != 4 {
		t.Fatalf("stages = %d, want 4", att.Claim.Stages)
	}
	if len(att.Claim.Gates) != 2 || att.Claim.Gates[0].Gate != "design" || att.Claim.Gates[1].Next != "done" {
		t.Fatalf("unexpected gates: %+v", att.Claim.Gates)
	}
	if len(att.Evidence.Blobs) != 2 {
		t.Fatalf("blobs = %v, want 2", att.Evidence.Blobs)
	}
	// run.json, final.json, four stage records and two blobs
	if len(att.Hashes) != 8 {
		t.Fatalf("hashes = %d, want 8", len(att.Hashes))
	}
	for rel := range att.Hashes {
		if strings.HasPrefix(rel, "/") || strings.Contains(rel, "..") {
			t.Fatalf("unexpected hash path %q", rel)
		}
	}
}

func TestBuildRequiresFinalRecord(t *testing.T) {
	runDir := writeRunBundle(t)
	if err := os.Remove(filepath.Join(runDir, "final.json")); err != nil {
		t.Fatalf("remove final: %v", err)
	}
	if _, err := Build(runDir); err == nil {
		t.Fatal("expected error for missing final.json")
	}
}

func TestBuildRejectsEmptyDir(t *testing.T) {
	if _, err := Build(""); err == nil {
		t.Fatal("expected error for empty run dir")
	}
}

func TestWriteAndReadFile(t *testing.T) {
	runDir := writeRunBundle(t)
	att, err := Build(runDir)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	path := filepath.Join(t.TempDir(), "attestation.json")
	if err := WriteFile(att, path); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if loaded.Subject != att.Subject || len(loaded.Hashes) != len(att.Hashes) {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()
	cases := []string{"", "/etc/passwd", "../outside", "blobs/../../x", "."}
	for _, rel := range cases {
		if _, err := safeJoin(root, rel); err == nil {
			t.Fatalf("expected error for %q", rel)
		}
	}
	if _, err := safeJoin(root, "blobs/game-abc.txt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
