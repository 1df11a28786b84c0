package metrics

import "time"

// PhaseMetrics describes one supervised phase attempt.
type PhaseMetrics struct {
	State              string    `json:"state"`
	Attempt            int       `json:"attempt"`
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	DurationMs         int64     `json:"duration_ms"`
	Outcome            string    `json:"outcome"`
	Samples            int       `json:"samples"`
	PerceptionFailures int       `json:"perception_failures"`
	CancelRequests     int       `json:"cancel_requests"`
	Err                string    `json:"err,omitempty"`
}

type MissionMetrics struct {
	MissionID   string         `json:"mission_id"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
	DurationMs  int64          `json:"duration_ms"`
	FinalState  string         `json:"final_state"`
	Succeeded   bool           `json:"succeeded"`
	FallbackRun bool           `json:"fallback_run"`
	Err         string         `json:"err,omitempty"`
	Phases      []PhaseMetrics `json:"phases"`
}

// Compute derived fields for a phase.
func (p *PhaseMetrics) Finalize() {
	p.DurationMs = p.End.Sub(p.Start).Milliseconds()
}

func (m *MissionMetrics) Finalize() {
	m.DurationMs = m.End.Sub(m.Start).Milliseconds()
}

// Attempts counts the phase attempts recorded for state.
func (m *MissionMetrics) Attempts(state string) int {
	n := 0
	for _, p := range m.Phases {
		if p.State == state {
			n++
		}
	}
	return n
}
