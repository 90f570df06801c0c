package repair

import (
	"fmt"
	"strings"
)

// Feedback is what the previous playtest reported about a game.
type Feedback struct {
	Report string
	Errors []string
}

// GenerateRepairPrompt creates the revision section of a coder prompt.
func GenerateRepairPrompt(previousCode string, fb Feedback) string {
	var sb strings.Builder

	sb.WriteString("The previous version of the game failed playtesting:\n\n")
	sb.WriteString("---\n")
	sb.WriteString(previousCode)
	sb.WriteString("\n---\n\n")

	if len(fb.Errors) > 0 {
		sb.WriteString("Errors found:\n")
		for _, e := range fb.Errors {
			sb.WriteString(fmt.Sprintf("- %s\n", e))
		}
		sb.WriteString("\n")
	}

	if report := strings.TrimSpace(fb.Report); report != "" {
		sb.WriteString("Playtest report:\n")
		sb.WriteString(report)
		sb.WriteString("\n\n")
	}

	sb.WriteString("Fix every error above and return the complete corrected HTML file.")

	return sb.String()
}

// GenerateEscalationPrompt creates a stronger prompt when a revision came
// back unchanged.
func GenerateEscalationPrompt(previousCode string, fb Feedback) string {
	var sb strings.Builder

	sb.WriteString("Your revision is identical to the version that failed playtesting.\n")
	sb.WriteString("Do NOT repeat the previous output; change the implementation.\n\n")

	if len(fb.Errors) > 0 {
		sb.WriteString("Errors that must be fixed:\n")
		for _, e := range fb.Errors {
			sb.WriteString(fmt.Sprintf("- %s\n", e))
		}
	}

	sb.WriteString("\nPrevious output:\n---\n")
	sb.WriteString(previousCode)
	sb.WriteString("\n---\n")
	sb.WriteString("\nProvide a corrected, complete single-file HTML game that addresses the errors above.\n")

	return sb.String()
}
