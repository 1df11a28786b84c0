package supervisor

import (
	"candlebot/internal/metrics"
	"candlebot/internal/mission"
)

type MissionResult struct {
	MissionID  string                  `json:"mission_id"`
	FinalState mission.State           `json:"final_state"`
	Error      string                  `json:"error,omitempty"`
	Metrics    *metrics.MissionMetrics `json:"metrics,omitempty"`

	Err error `json:"-"`
}

func (r MissionResult) Succeeded() bool { return r.FinalState == mission.StateDone }
