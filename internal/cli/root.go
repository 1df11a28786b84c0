package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"candlebot/internal/config"
	"candlebot/internal/logger"
)

var (
	configPath string
	logLevel   string
)

var errMissionFailed = errors.New("mission did not finish")

var rootCmd = &cobra.Command{
	Use:   "candlebot",
	Short: "Supervises a robot arm placing and lighting a birthday candle",
	Long: `candlebot drives the candle mission (place, light, retract) and supervises
each phase with a vision model, cancelling the arm as soon as the camera
confirms the phase, or when the operator overrides it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.toml or .yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")

	rootCmd.AddCommand(newRunCmd(), newSampleCmd(), newHistoryCmd(), newConfigCmd())
}

// loadConfig loads the config named by --config, applies the command's
// overrides and (re)initialises the logger from it.
func loadConfig(overrides ...func(*config.Config)) (config.Config, error) {
	if logLevel != "" {
		overrides = append(overrides, func(c *config.Config) { c.Logging.Level = logLevel })
	}
	cfg, err := config.Load(configPath, overrides...)
	if err != nil {
		return config.Config{}, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return config.Config{}, fmt.Errorf("could not initialize logger: %w", err)
	}
	return cfg, nil
}

func Execute() {
	err := rootCmd.Execute()
	logger.Close()
	if err != nil {
		if !errors.Is(err, errMissionFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
