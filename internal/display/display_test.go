package display

import (
	"strings"
	"testing"
	"time"

	"candlebot/internal/metrics"
	"candlebot/internal/mission"
)

func TestFormatSnapshot(t *testing.T) {
	snap := mission.NewSnapshot(mission.Snapshot{
		ObjectPlaced:       true,
		SuggestedNextState: mission.StateActivating,
		GuidanceText:       "bring the lighter to the wick",
	}, []mission.Detection{{Label: "candle", Point: mission.NormalizedPoint{Y: 0.5, X: 0.25}}})

	out := FormatSnapshot(snap)

	if !strings.Contains(out, "Suggested next state: ACTIVATING") {
		t.Errorf("The scene output is missing the suggested state.")
	}
	if !strings.Contains(out, "Candle in cake:  yes") {
		t.Errorf("The scene output is missing the placement flag.")
	}
	if !strings.Contains(out, "Flame lit:       no") {
		t.Errorf("The scene output is missing the flame flag.")
	}
	if !strings.Contains(out, "candle") || !strings.Contains(out, "y=0.500 x=0.250") {
		t.Errorf("The scene output is missing the detection.")
	}
}

func TestFormatSnapshot_WithLongGuidance(t *testing.T) {
	long := strings.Repeat("a", 200)
	out := FormatSnapshot(mission.NewSnapshot(mission.Snapshot{GuidanceText: long}, nil))

	if !strings.Contains(out, "...") {
		t.Errorf("Expected long guidance to be truncated with '...', but it wasn't.")
	}
	if strings.Contains(out, long) {
		t.Errorf("Expected long guidance to be truncated, but the full string was found.")
	}
	if strings.Contains(out, "Detections") {
		t.Errorf("Expected no detections section for an empty scene.")
	}
}

func TestFormatMissionMetrics(t *testing.T) {
	if FormatMissionMetrics(nil) != "No metrics available." {
		t.Errorf("Expected placeholder for nil metrics.")
	}

	mm := &metrics.MissionMetrics{
		MissionID:   "ab12cd34",
		DurationMs:  21000,
		FinalState:  "ERROR",
		FallbackRun: true,
		Err:         "servo jam",
		Phases: []metrics.PhaseMetrics{
			{State: "PLACING", Attempt: 1, DurationMs: 10000, Outcome: "completed", Samples: 3},
			{State: "ACTIVATING", Attempt: 1, DurationMs: 11000, Outcome: "failed", PerceptionFailures: 2, Err: "servo jam"},
		},
	}
	out := FormatMissionMetrics(mm)

	if !strings.Contains(out, "final=ERROR") || !strings.Contains(out, "fallback=true") {
		t.Errorf("The metrics output is missing the mission summary.")
	}
	if !strings.Contains(out, "ACTIVATING") || !strings.Contains(out, "failures=2") {
		t.Errorf("The metrics output is missing the failed phase.")
	}
	if !strings.Contains(out, "- Error: servo jam") {
		t.Errorf("The metrics output is missing the mission error.")
	}
}

func TestFormatHistory(t *testing.T) {
	if FormatHistory(nil) != "No missions recorded." {
		t.Errorf("Expected placeholder for empty history.")
	}
	out := FormatHistory([]metrics.MissionMetrics{{MissionID: "m1", Start: time.Now(), FinalState: "DONE"}})
	if !strings.Contains(out, "Found 1 mission(s)") || !strings.Contains(out, "m1") {
		t.Errorf("The history output is missing the mission.")
	}
}
