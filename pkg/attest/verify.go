package attest

import (
	"fmt"
	"reflect"
)

// Verify checks every hash in att against runDir and recomputes the claim
// from the records on disk.
func Verify(att *Attestation, runDir string) error {
	if att == nil {
		return fmt.Errorf("attestation is required")
	}
	if runDir == "" {
		return fmt.Errorf("runDir is required")
	}
	if att.Schema != Schema {
		return fmt.Errorf("unknown attestation schema: %q", att.Schema)
	}

	for _, rel := range append([]string{att.Evidence.RunJSON, att.Evidence.FinalJSON}, att.Evidence.Stages...) {
		if _, ok := att.Hashes[rel]; !ok {
			return fmt.Errorf("no hash recorded for %s", rel)
		}
	}
	for rel, expected := range att.Hashes {
		actual, err := hashFile(runDir, rel)
		if err != nil {
			return fmt.Errorf("evidence file %s: %w", rel, err)
		}
		if actual != expected {
			return fmt.Errorf("hash mismatch for %s", rel)
		}
	}

	b, err := load(runDir)
	if err != nil {
		return err
	}
	if len(b.paths) != len(att.Evidence.Stages) {
		return fmt.Errorf("stage records changed: attested %d, found %d", len(att.Evidence.Stages), len(b.paths))
	}
	if b.run.ID != att.Subject.RunID || b.run.InputHash != att.Subject.InputHash {
		return fmt.Errorf("subject mismatch")
	}
	if !reflect.DeepEqual(claimFor(b), att.Claim) {
		return fmt.Errorf("claim mismatch")
	}
	return nil
}

// VerifyFile loads an attestation and verifies it against runDir.
func VerifyFile(attestationPath, runDir string) error {
	att, err := ReadFile(attestationPath)
	if err != nil {
		return err
	}
	return Verify(att, runDir)
}
