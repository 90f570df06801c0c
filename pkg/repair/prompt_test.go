package repair

import (
	"strings"
	"testing"
)

func TestGenerateRepairPromptIncludesErrorsAndReport(t *testing.T) {
	prompt := GenerateRepairPrompt("<html>v1</html>", Feedback{
		Report: "VERDICT: FIX\nThe player cannot jump.",
		Errors: []string{"jump key ignored", "Uncaught TypeError: body is undefined"},
	})

	for _, want := range []string{
		"<html>v1</html>",
		"- jump key ignored\n",
		"- Uncaught TypeError: body is undefined\n",
		"Playtest report:\nVERDICT: FIX",
		"complete corrected HTML file",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestGenerateRepairPromptWithoutErrors(t *testing.T) {
	prompt := GenerateRepairPrompt("<html></html>", Feedback{})
	if strings.Contains(prompt, "Errors found") {
		t.Fatalf("unexpected errors section")
	}
	if strings.Contains(prompt, "Playtest report") {
		t.Fatalf("unexpected report section")
	}
}

func TestGenerateEscalationPromptRejectsRepeats(t *testing.T) {
	prompt := GenerateEscalationPrompt("original", Feedback{Errors: []string{"crash"}})
	if !strings.Contains(prompt, "Do NOT repeat the previous output") {
		t.Fatalf("missing repeat warning")
	}
	if !strings.Contains(prompt, "- crash") {
		t.Fatalf("missing error list")
	}
	if !strings.Contains(prompt, "---\noriginal\n---") {
		t.Fatalf("missing previous output")
	}
}
