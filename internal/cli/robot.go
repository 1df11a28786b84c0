package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"candlebot/internal/actuator"
	"candlebot/internal/config"
	"candlebot/internal/monitor"
	"candlebot/internal/operation"
	"candlebot/internal/override"
	"candlebot/internal/perception"
	"candlebot/internal/simulate"
)

// buildRobot returns the actuator and the oracle watching it. In simulate
// mode both are the same simulated robot.
func buildRobot(ctx context.Context, cfg config.Config, log zerolog.Logger) (operation.Actuator, monitor.Oracle, error) {
	if cfg.Actuator.Mode == "simulate" {
		robot := simulate.NewRobot(cfg.SimulatorConfig(), log)
		return robot, robot, nil
	}

	act, err := actuator.NewShell(cfg.ShellConfig(), log)
	if err != nil {
		return nil, nil, err
	}
	oracle, err := buildOracle(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return act, oracle, nil
}

func buildOracle(ctx context.Context, cfg config.Config, log zerolog.Logger) (monitor.Oracle, error) {
	pc, err := cfg.PerceptionConfig()
	if err != nil {
		return nil, err
	}
	oracle, err := perception.New(ctx, pc, cfg.Camera(), log)
	if err != nil {
		return nil, fmt.Errorf("could not initialize perception: %w", err)
	}
	return oracle, nil
}

// overrideSource returns nil when overrides are disabled.
func overrideSource(cfg config.OverrideConfig, keyboard <-chan string, log zerolog.Logger) override.Source {
	switch cfg.Mode {
	case "keyboard":
		return override.NewKeyboard(keyboard, cfg.Keyword, log)
	case "file":
		return override.NewFile(cfg.TriggerFile, log)
	default:
		return nil
	}
}
