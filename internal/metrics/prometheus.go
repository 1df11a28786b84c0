package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"candlebot/internal/mission"
)

const namespace = "candlebot"

var allStates = []mission.State{
	mission.StateIdle, mission.StatePlacing, mission.StateActivating,
	mission.StateRetracting, mission.StateDone, mission.StateError,
}

// Collector exports mission progress on a private registry.
type Collector struct {
	registry *prometheus.Registry

	transitions        *prometheus.CounterVec
	phases             *prometheus.CounterVec
	phaseDuration      *prometheus.HistogramVec
	samples            *prometheus.CounterVec
	detections         *prometheus.HistogramVec
	perceptionFailures *prometheus.CounterVec
	fallbacks          *prometheus.CounterVec
	missions           *prometheus.CounterVec
	state              *prometheus.GaugeVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Mission state transitions",
		}, []string{"from", "to"}),
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phases_total",
			Help:      "Supervised phase attempts by outcome",
		}, []string{"state", "outcome"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of supervised phase attempts",
			Buckets:   []float64{1, 2, 5, 10, 15, 20, 30, 45, 60, 120},
		}, []string{"state"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "perception_samples_total",
			Help:      "Successful perception samples",
		}, []string{"state"}),
		detections: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "perception_detections",
			Help:      "Detections reported per sample",
			Buckets:   prometheus.LinearBuckets(0, 2, 6),
		}, []string{"state"}),
		perceptionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "perception_failures_total",
			Help:      "Perception samples that failed and were treated as not confirmed",
		}, []string{"state"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Safety fallback runs",
		}, []string{"result"}),
		missions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missions_total",
			Help:      "Finished missions by final state",
		}, []string{"final_state"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mission_state",
			Help:      "1 for the current mission state, 0 otherwise",
		}, []string{"state"}),
	}
	registry.MustRegister(
		c.transitions, c.phases, c.phaseDuration, c.samples, c.detections,
		c.perceptionFailures, c.fallbacks, c.missions, c.state,
	)
	c.setState(mission.StateIdle)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) setState(s mission.State) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		c.state.WithLabelValues(st.String()).Set(v)
	}
}

func (c *Collector) Transition(_ string, from, to mission.State, _ string) {
	c.transitions.WithLabelValues(from.String(), to.String()).Inc()
	c.setState(to)
}

func (c *Collector) Sample(_ string, state mission.State, snap mission.Snapshot) {
	c.samples.WithLabelValues(state.String()).Inc()
	c.detections.WithLabelValues(state.String()).Observe(float64(snap.DetectionCount()))
}

func (c *Collector) PhaseFinished(_ string, pm PhaseMetrics) {
	c.phases.WithLabelValues(pm.State, pm.Outcome).Inc()
	c.phaseDuration.WithLabelValues(pm.State).Observe(pm.End.Sub(pm.Start).Seconds())
	if pm.PerceptionFailures > 0 {
		c.perceptionFailures.WithLabelValues(pm.State).Add(float64(pm.PerceptionFailures))
	}
}

func (c *Collector) Fallback(_ string, _ mission.State, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	c.fallbacks.WithLabelValues(result).Inc()
}

func (c *Collector) MissionFinished(_ string, mm *MissionMetrics) {
	c.missions.WithLabelValues(mm.FinalState).Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes /metrics on addr until ctx ends.
func (c *Collector) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
