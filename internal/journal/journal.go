// Package journal appends mission events to an NDJSON file, one object per
// line, for replay and post-mortems.
package journal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"candlebot/internal/metrics"
	"candlebot/internal/mission"
)

type EventType string

const (
	EventTransition EventType = "transition"
	EventSample     EventType = "sample"
	EventPhase      EventType = "phase"
	EventFallback   EventType = "fallback"
	EventMission    EventType = "mission"
)

type Record struct {
	Time      time.Time               `json:"time"`
	MissionID string                  `json:"mission_id"`
	Type      EventType               `json:"type"`
	From      mission.State           `json:"from,omitempty"`
	To        mission.State           `json:"to,omitempty"`
	State     mission.State           `json:"state,omitempty"`
	Cause     string                  `json:"cause,omitempty"`
	Snapshot  *mission.Snapshot       `json:"snapshot,omitempty"`
	Phase     *metrics.PhaseMetrics   `json:"phase,omitempty"`
	Mission   *metrics.MissionMetrics `json:"mission,omitempty"`
	Err       string                  `json:"err,omitempty"`
}

// Journal is safe for concurrent use. Write failures are logged, never
// returned, so a full disk cannot stop the arm.
type Journal struct {
	mu      sync.Mutex
	w       io.Writer
	closer  io.Closer
	enc     *json.Encoder
	samples bool
	log     zerolog.Logger
	now     func() time.Time
}

// Open appends to path, creating it and its directory as needed. With
// samples false, per-sample records are skipped.
func Open(path string, samples bool, logger zerolog.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	j := New(f, samples, logger)
	j.closer = f
	return j, nil
}

func New(w io.Writer, samples bool, logger zerolog.Logger) *Journal {
	return &Journal{
		w:       w,
		enc:     json.NewEncoder(w),
		samples: samples,
		log:     logger.With().Str("component", "journal").Logger(),
		now:     time.Now,
	}
}

func (j *Journal) write(r Record) {
	j.mu.Lock()
	defer j.mu.Unlock()
	r.Time = j.now().UTC()
	if err := j.enc.Encode(r); err != nil {
		j.log.Warn().Err(err).Str("type", string(r.Type)).Msg("journal write failed")
	}
}

func (j *Journal) Transition(missionID string, from, to mission.State, cause string) {
	j.write(Record{MissionID: missionID, Type: EventTransition, From: from, To: to, Cause: cause})
}

func (j *Journal) Sample(missionID string, state mission.State, snap mission.Snapshot) {
	if !j.samples {
		return
	}
	j.write(Record{MissionID: missionID, Type: EventSample, State: state, Snapshot: &snap})
}

func (j *Journal) PhaseFinished(missionID string, pm metrics.PhaseMetrics) {
	j.write(Record{MissionID: missionID, Type: EventPhase, State: mission.State(pm.State), Phase: &pm, Err: pm.Err})
}

func (j *Journal) Fallback(missionID string, state mission.State, err error) {
	r := Record{MissionID: missionID, Type: EventFallback, State: state}
	if err != nil {
		r.Err = err.Error()
	}
	j.write(r)
}

func (j *Journal) MissionFinished(missionID string, mm *metrics.MissionMetrics) {
	j.write(Record{MissionID: missionID, Type: EventMission, State: mission.State(mm.FinalState), Mission: mm, Err: mm.Err})
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closer == nil {
		return nil
	}
	err := j.closer.Close()
	j.closer = nil
	return err
}
