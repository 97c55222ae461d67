package display

import (
	"fmt"
	"strings"

	"map-annotator/internal/metrics"
)

func FormatGoalMetrics(history []metrics.GoalMetrics) string {
	if len(history) == 0 {
		return "No goals finished yet."
	}
	var sb strings.Builder
	sb.WriteString("Recent goals:\n")
	succeeded := 0
	for _, g := range history {
		status := "ok"
		if g.Succeeded {
			succeeded++
		} else {
			status = "err"
		}
		sb.WriteString(fmt.Sprintf("  • %-10s %-22s %7d ms  [%s] %s\n",
			g.GoalID, "("+formatName(g.Name)+")", g.DurationMs, status, g.Reason))
	}
	sb.WriteString(fmt.Sprintf("- Succeeded %d of %d", succeeded, len(history)))
	return sb.String()
}
