package display

import (
	"fmt"
	"strings"

	"candlebot/internal/metrics"
)

func FormatMissionMetrics(mm *metrics.MissionMetrics) string {
	if mm == nil {
		return "No metrics available."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Mission %s metrics:\n", mm.MissionID))
	sb.WriteString(fmt.Sprintf("- Total: %d ms  (final=%s, success=%v, fallback=%v)\n",
		mm.DurationMs, mm.FinalState, mm.Succeeded, mm.FallbackRun))
	for _, p := range mm.Phases {
		sb.WriteString(fmt.Sprintf("  • %-11s #%d %7d ms  %-21s samples=%d",
			p.State, p.Attempt, p.DurationMs, p.Outcome, p.Samples))
		if p.PerceptionFailures > 0 {
			sb.WriteString(fmt.Sprintf(" failures=%d", p.PerceptionFailures))
		}
		if p.Err != "" {
			sb.WriteString("  [" + truncate(p.Err, maxGuidanceLength) + "]")
		}
		sb.WriteString("\n")
	}
	if mm.Err != "" {
		sb.WriteString("- Error: " + mm.Err + "\n")
	}
	return sb.String()
}

// FormatHistory lists stored missions, newest first.
func FormatHistory(missions []metrics.MissionMetrics) string {
	if len(missions) == 0 {
		return "No missions recorded."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d mission(s):\n", len(missions)))
	for i, m := range missions {
		sb.WriteString(fmt.Sprintf("  %2d. %s  %s  %-5s %7d ms  fallback=%v\n",
			i+1, m.MissionID, m.Start.Local().Format("2006-01-02 15:04:05"), m.FinalState, m.DurationMs, m.FallbackRun))
	}
	return sb.String()
}
