package attest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVerifyAcceptsUntouchedBundle(t *testing.T) {
	runDir := writeRunBundle(t)
	att, err := Build(runDir)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := Verify(att, runDir); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyDetectsTamperedBlob(t *testing.T) {
	runDir := writeRunBundle(t)
	att, err := Build(runDir)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	blob := filepath.Join(runDir, filepath.FromSlash(att.Evidence.Blobs[0]))
	if err := os.WriteFile(blob, []byte("tampered"), 0600); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	err = Verify(att, runDir)
	if err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("expected hash mismatch, got %v", err)
	}
}

func TestVerifyDetectsEditedClaim(t *testing.T) {
	runDir := writeRunBundle(t)
	att, err := Build(runDir)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	att.Claim.ShipApproved = false
	err = Verify(att, runDir)
	if err == nil || !strings.Contains(err.Error(), "claim mismatch") {
		t.Fatalf("expected claim mismatch, got %v", err)
	}
}

func TestVerifyDetectsRewrittenFinal(t *testing.T) {
	runDir := writeRunBundle(t)
	att, err := Build(runDir)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	final := readFinal(t, runDir)
	final.Status = "failed"
	writeJSONFile(t, filepath.Join(runDir, "final.json"), final)

	if err := Verify(att, runDir); err == nil {
		t.Fatal("expected error for rewritten final.json")
	}
}

func TestVerifyDetectsAddedStage(t *testing.T) {
	runDir := writeRunBundle(t)
	att, err := Build(runDir)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	writeJSONFile(t, filepath.Join(runDir, "stages", "005-coder.json"), map[string]any{"seq": 5, "name": "coder"})
	err = Verify(att, runDir)
	if err == nil || !strings.Contains(err.Error(), "stage records changed") {
		t.Fatalf("expected stage count error, got %v", err)
	}
}

func TestVerifyRejectsTraversalInHashes(t *testing.T) {
	runDir := writeRunBundle(t)
	att, err := Build(runDir)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	att.Hashes["../outside.txt"] = "deadbeef"
	err = Verify(att, runDir)
	if err == nil || !strings.Contains(err.Error(), "traversal") {
		t.Fatalf("expected traversal error, got %v", err)
	}
}

func TestVerifyRejectsUnknownSchema(t *testing.T) {
	runDir := writeRunBundle(t)
	att, err := Build(runDir)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	att.Schema = "flow.v0"
	if err := Verify(att, runDir); err == nil {
		t.Fatal("expected schema error")
	}
}

func TestVerifyFile(t *testing.T) {
	runDir := writeRunBundle(t)
	att, err := Build(runDir)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	path := filepath.Join(t.TempDir(), "attestation.json")
	if err := WriteFile(att, path); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := VerifyFile(path, runDir); err != nil {
		t.Fatalf("verify file: %v", err)
	}
}
