// Package perception turns a camera frame into a mission.Snapshot using a
// vision-language model.
package perception

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"candlebot/internal/mission"
)

type Config struct {
	Backend     string
	Model       string
	APIKey      string
	OllamaHost  string
	Temperature float32
	Prompt      string
	// Timeout bounds one capture plus inference.
	Timeout time.Duration
}

// Oracle is satisfied by every backend in this package.
type Oracle interface {
	Sample(ctx context.Context) (mission.Snapshot, error)
}

var ErrEmptyResponse = errors.New("vision model returned an empty response")

// New builds the oracle for cfg.Backend.
func New(ctx context.Context, cfg Config, cam Camera, logger zerolog.Logger) (Oracle, error) {
	if cam == nil {
		return nil, errors.New("perception: camera is required")
	}
	if strings.TrimSpace(cfg.Prompt) == "" {
		cfg.Prompt = DefaultPrompt
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = "gemini"
	}

	var vm visionModel
	switch backend {
	case "gemini":
		g, err := newGemini(ctx, cfg)
		if err != nil {
			return nil, err
		}
		vm = g
	case "ollama":
		o, err := newOllama(cfg)
		if err != nil {
			return nil, err
		}
		vm = o
	default:
		return nil, fmt.Errorf("unsupported perception backend: %s", backend)
	}

	return &modelOracle{
		model:   vm,
		camera:  cam,
		prompt:  cfg.Prompt,
		timeout: cfg.Timeout,
		log:     logger.With().Str("component", "perception").Str("backend", backend).Logger(),
	}, nil
}

// visionModel answers a prompt about one JPEG frame with raw model text.
type visionModel interface {
	Describe(ctx context.Context, image []byte, prompt string) (string, error)
}

type modelOracle struct {
	model   visionModel
	camera  Camera
	prompt  string
	timeout time.Duration
	log     zerolog.Logger
}

func (o *modelOracle) Sample(ctx context.Context) (mission.Snapshot, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	frame, err := o.camera.Capture(ctx)
	if err != nil {
		return mission.Snapshot{}, fmt.Errorf("capture: %w", err)
	}
	text, err := o.model.Describe(ctx, frame, o.prompt)
	if err != nil {
		return mission.Snapshot{}, err
	}
	snap, err := Decode(text, time.Now())
	if err != nil {
		o.log.Debug().Str("raw", text).Msg("undecodable response")
		return mission.Snapshot{}, err
	}
	o.log.Debug().
		Dur("latency", time.Since(start)).
		Str("suggested", snap.SuggestedNextState.String()).
		Int("detections", snap.DetectionCount()).
		Msg("sampled scene")
	return snap, nil
}
