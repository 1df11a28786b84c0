package perception

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"candlebot/internal/mission"
)

type wirePoint struct {
	Point []float64 `json:"point"`
	Label string    `json:"label"`
}

type wireScene struct {
	CurrentState   string      `json:"current_state"`
	NextState      string      `json:"next_state"`
	Points         []wirePoint `json:"points"`
	ClawHasCandle  looseBool   `json:"claw_has_candle"`
	IsFlameLit     looseBool   `json:"is_flame_lit"`
	IsCandleInCake looseBool   `json:"is_candle_in_cake"`
	IsArmRetracted looseBool   `json:"is_arm_retracted"`
	Instructions   string      `json:"instructions"`
}

// looseBool accepts true/false, "true"/"false", "yes"/"no" and null.
type looseBool bool

func (b *looseBool) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"`))
	switch s {
	case "true", "yes", "1":
		*b = true
	case "false", "no", "0", "null", "":
		*b = false
	default:
		return fmt.Errorf("not a boolean: %s", data)
	}
	return nil
}

// Decode parses a model reply into a snapshot. Markdown fences and text
// around the JSON object are tolerated; points given as [y, x] on a 0-1000
// grid are normalised to [0,1].
func Decode(text string, capturedAt time.Time) (mission.Snapshot, error) {
	raw := extractObject(text)
	if raw == nil {
		return mission.Snapshot{}, mission.PerceptionFailure(fmt.Errorf("no JSON object in response"))
	}

	var w wireScene
	if err := json.Unmarshal(raw, &w); err != nil {
		return mission.Snapshot{}, mission.PerceptionFailure(fmt.Errorf("decode response: %w", err))
	}

	// An unknown state name is model noise; it falls back to IDLE.
	next, _ := mission.ParseState(w.NextState)

	dets := make([]mission.Detection, 0, len(w.Points))
	for _, p := range w.Points {
		if len(p.Point) != 2 {
			continue
		}
		dets = append(dets, mission.Detection{
			Label: strings.TrimSpace(p.Label),
			Point: mission.NormalizedPoint{Y: normalise(p.Point[0]), X: normalise(p.Point[1])},
		})
	}

	return mission.NewSnapshot(mission.Snapshot{
		ObjectPlaced:       bool(w.IsCandleInCake),
		ActionConfirmed:    bool(w.IsFlameLit),
		ArmRetracted:       bool(w.IsArmRetracted),
		ClawHasObject:      bool(w.ClawHasCandle),
		SuggestedNextState: next,
		GuidanceText:       strings.TrimSpace(w.Instructions),
		CapturedAt:         capturedAt,
	}, dets), nil
}

func normalise(v float64) float64 {
	v /= 1000
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func extractObject(text string) []byte {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	b := []byte(strings.TrimSpace(s))

	start := bytes.IndexByte(b, '{')
	end := bytes.LastIndexByte(b, '}')
	if start < 0 || end <= start {
		return nil
	}
	return b[start : end+1]
}
