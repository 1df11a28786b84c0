package display

import (
	"fmt"
	"strings"

	"candlebot/internal/mission"
)

const maxGuidanceLength = 100

// FormatSnapshot renders one perception sample for the console.
func FormatSnapshot(s mission.Snapshot) string {
	var sb strings.Builder
	sb.WriteString("Scene:\n")
	sb.WriteString("--------------------------------------------------\n")
	sb.WriteString(fmt.Sprintf("  Suggested next state: %s\n", s.SuggestedNextState))
	sb.WriteString(fmt.Sprintf("  Candle in cake:  %s\n", yesNo(s.ObjectPlaced)))
	sb.WriteString(fmt.Sprintf("  Flame lit:       %s\n", yesNo(s.ActionConfirmed)))
	sb.WriteString(fmt.Sprintf("  Arm retracted:   %s\n", yesNo(s.ArmRetracted)))
	sb.WriteString(fmt.Sprintf("  Claw has candle: %s\n", yesNo(s.ClawHasObject)))
	if s.GuidanceText != "" {
		sb.WriteString(fmt.Sprintf("  Guidance: %s\n", truncate(s.GuidanceText, maxGuidanceLength)))
	}
	dets := s.Detections()
	if len(dets) > 0 {
		sb.WriteString(fmt.Sprintf("  Detections (%d):\n", len(dets)))
		for _, d := range dets {
			sb.WriteString(fmt.Sprintf("    - %-16s y=%.3f x=%.3f\n", d.Label, d.Point.Y, d.Point.X))
		}
	}
	sb.WriteString("--------------------------------------------------")
	return sb.String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, limit int) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	if limit >= 0 && len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
