package config

import (
	"fmt"
	"os"

	"candlebot/internal/actuator"
	"candlebot/internal/mission"
	"candlebot/internal/perception"
	"candlebot/internal/simulate"
	"candlebot/internal/supervisor"
)

func (c Config) PhaseConfig() supervisor.PhaseConfig {
	return supervisor.PhaseConfig{
		PollInterval:  c.Mission.PollInterval.Std(),
		SafeStopDelay: c.Mission.SafeStopDelay.Std(),
	}
}

func (c Config) DriverConfig() supervisor.DriverConfig {
	return supervisor.DriverConfig{
		IdlePollInterval: c.Mission.IdlePollInterval.Std(),
		MaxAttempts:      c.Mission.MaxAttempts,
		FallbackTimeout:  c.Mission.FallbackTimeout.Std(),
		Backoff: supervisor.BackoffConfig{
			InitialDelay: c.Mission.Backoff.Initial.Std(),
			MaxDelay:     c.Mission.Backoff.Max.Std(),
			Multiplier:   c.Mission.Backoff.Multiplier,
		},
	}
}

func (c Config) ShellConfig() actuator.ShellConfig {
	return actuator.ShellConfig{
		Commands: map[mission.PhaseKind]string{
			mission.PhasePlace:    c.Actuator.Place,
			mission.PhaseActivate: c.Actuator.Activate,
			mission.PhaseRetract:  c.Actuator.Retract,
		},
		SafeStop:  c.Actuator.SafeStop,
		Dir:       c.Actuator.Workdir,
		WaitDelay: c.Actuator.WaitDelay.Std(),
	}
}

// PerceptionConfig reads the prompt file, if any.
func (c Config) PerceptionConfig() (perception.Config, error) {
	pc := perception.Config{
		Backend:     c.Perception.Backend,
		Model:       c.Perception.Model,
		APIKey:      c.Perception.APIKey,
		OllamaHost:  c.Perception.OllamaHost,
		Temperature: c.Perception.Temperature,
		Timeout:     c.Perception.Timeout.Std(),
	}
	if c.Perception.PromptFile != "" {
		data, err := os.ReadFile(c.Perception.PromptFile)
		if err != nil {
			return perception.Config{}, fmt.Errorf("failed to read prompt file: %w", err)
		}
		pc.Prompt = string(data)
	}
	return pc, nil
}

func (c Config) Camera() perception.Camera {
	if c.Perception.Camera.Command != "" {
		return perception.CommandCamera{Command: c.Perception.Camera.Command, Output: c.Perception.Camera.Output}
	}
	return perception.FileCamera{Path: c.Perception.Camera.File}
}

func (c Config) SimulatorConfig() simulate.Config {
	sc := simulate.DefaultConfig()
	sc.TimeScale = c.Simulate.TimeScale
	sc.ActivateSuccessAfter = c.Simulate.ActivateSuccessAfter.Std()
	sc.FailPhase = mission.PhaseKind(c.Simulate.FailPhase)
	return sc
}
