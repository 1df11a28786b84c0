package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"candlebot/internal/config"
	"candlebot/internal/journal"
	"candlebot/internal/listener"
	"candlebot/internal/logger"
	"candlebot/internal/metrics"
	"candlebot/internal/store"
	"candlebot/internal/supervisor"
	"candlebot/internal/telemetry"
)

func newRunCmd() *cobra.Command {
	var (
		simulateRobot bool
		overrideMode  string
		timeScale     float64
		confirm       bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one candle mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(func(c *config.Config) {
				if simulateRobot {
					c.UseSimulator()
				}
				if cmd.Flags().Changed("override") {
					c.Override.Mode = overrideMode
				}
				if cmd.Flags().Changed("time-scale") {
					c.Simulate.TimeScale = timeScale
				}
			})
			if err != nil {
				return err
			}

			if err := listener.Init(); err != nil {
				return fmt.Errorf("failed to init terminal input: %w", err)
			}
			defer listener.Close()

			if confirm && !listener.AskYesNo("Place the cupcake in view and start the candle mission?") {
				listener.AsyncPrintln("Mission not started.")
				return nil
			}

			res, err := runMission(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if !res.Succeeded() {
				return errMissionFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&simulateRobot, "simulate", false, "drive the built-in simulated robot")
	cmd.Flags().StringVar(&overrideMode, "override", "keyboard", "override source: none, keyboard or file")
	cmd.Flags().Float64Var(&timeScale, "time-scale", 1, "simulator time scale (0.1 runs ten times faster)")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "ask before starting the mission")
	return cmd
}

// runMission wires every component from cfg and blocks until the mission
// reaches DONE or ERROR.
func runMission(parent context.Context, cfg config.Config) (supervisor.MissionResult, error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.Log

	shutdownTracing, err := telemetry.Setup(cfg.Tracing, "candlebot")
	if err != nil {
		return supervisor.MissionResult{}, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	act, oracle, err := buildRobot(ctx, cfg, log)
	if err != nil {
		return supervisor.MissionResult{}, err
	}

	collector := metrics.NewCollector()
	recorders := supervisor.Recorders{collector, newConsole()}
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, cfg.Journal.Samples, log)
		if err != nil {
			return supervisor.MissionResult{}, err
		}
		defer j.Close()
		recorders = append(recorders, j)
	}
	if cfg.Store.Path != "" {
		st, err := store.Open(ctx, cfg.Store.Path, log)
		if err != nil {
			return supervisor.MissionResult{}, err
		}
		defer st.Close()
		recorders = append(recorders, st)
	}

	runner := supervisor.NewRunner()
	keyboard := make(chan string)

	bgCtx, stopBackground := context.WithCancel(ctx)
	var g errgroup.Group
	defer func() {
		stopBackground()
		if err := g.Wait(); err != nil {
			log.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return collector.Serve(bgCtx, cfg.Metrics.Listen, log) })
	}
	lines := listener.Lines(bgCtx)
	g.Go(func() error {
		dispatch(bgCtx, lines, runner, keyboard, listener.AsyncPrintln)
		return nil
	})

	phases := supervisor.NewPhaseSupervisor(cfg.PhaseConfig(), act, oracle,
		overrideSource(cfg.Override, keyboard, log), recorders, log)
	fallback := supervisor.RetractFallback{
		Actuator:      act,
		SafeStopDelay: cfg.Mission.SafeStopDelay.Std(),
		Logger:        log,
	}
	driver := supervisor.NewDriver(cfg.DriverConfig(), phases, oracle, fallback, recorders, log)

	listener.AsyncPrintln(fmt.Sprintf("Mission %s started. %s", driver.ID(), consoleHelp))
	return runner.Run(ctx, driver)
}
