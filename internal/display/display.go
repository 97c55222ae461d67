package display

import (
	"fmt"
	"strings"

	"map-annotator/internal/pose"
	"map-annotator/internal/supervisor"
)

const maxNameLength = 40

func FormatNames(names []string) string {
	if len(names) == 0 {
		return "No poses stored."
	}
	return fmt.Sprintf("Poses (%d): %s", len(names), strings.Join(names, ", "))
}

func FormatPoses(poses []pose.NamedPose) string {
	if len(poses) == 0 {
		return "No poses stored."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Stored poses (frame %s):\n", pose.Frame))
	sb.WriteString("--------------------------------------------------\n")
	for _, np := range poses {
		sb.WriteString(fmt.Sprintf("  %-20s %s\n", formatName(np.Name), np.Pose))
	}
	sb.WriteString("--------------------------------------------------")
	return sb.String()
}

func FormatPose(name string, p pose.Pose) string {
	return fmt.Sprintf("%s: %s", formatName(name), p)
}

func FormatOutcome(out supervisor.Outcome) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[Goal %s %s] %s", out.GoalID, out.Kind, formatName(out.Name)))
	if out.Message != "" {
		sb.WriteString(": " + out.Message)
	}
	if out.Kind != supervisor.Succeeded && out.Reason != supervisor.ReasonNone {
		sb.WriteString(fmt.Sprintf(" (%s)", out.Reason))
	}
	if d := out.Duration(); d > 0 {
		sb.WriteString(fmt.Sprintf(" after %d ms", d.Milliseconds()))
	}
	return sb.String()
}

func FormatFeedback(fb supervisor.Feedback) string {
	return fmt.Sprintf("[Goal %s] %s: %s (navigator %s)", fb.GoalID, formatName(fb.Name), fb.State, fb.Status)
}

func FormatSnapshot(snap supervisor.Snapshot) string {
	if snap.Goal == nil {
		return fmt.Sprintf("Supervisor %s, no goal in progress.", snap.State)
	}
	return FormatFeedback(*snap.Goal)
}

// formatName keeps odd names on one line and readable.
func formatName(name string) string {
	s := strings.ReplaceAll(name, "\n", "\\n")
	if len(s) > maxNameLength {
		return s[:maxNameLength] + "..."
	}
	return s
}
