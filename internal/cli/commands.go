package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"candlebot/internal/config"
	"candlebot/internal/display"
	"candlebot/internal/logger"
	"candlebot/internal/monitor"
	"candlebot/internal/simulate"
	"candlebot/internal/store"
)

func newSampleCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Take one picture and print what the vision model sees",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmdContext(cmd)

			var oracle monitor.Oracle
			if cfg.Perception.Backend == "simulate" {
				oracle = simulate.NewRobot(cfg.SimulatorConfig(), logger.Log)
			} else if oracle, err = buildOracle(ctx, cfg, logger.Log); err != nil {
				return err
			}

			snap, err := oracle.Sample(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			fmt.Fprintln(cmd.OutOrStdout(), display.FormatSnapshot(snap))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot as JSON")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [mission-id]",
		Short: "List recorded missions, or show one in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read(configPath)
			if err != nil {
				return err
			}
			if cfg.Store.Path == "" {
				return fmt.Errorf("store.path is not configured")
			}
			ctx := cmdContext(cmd)
			st, err := store.Open(ctx, cfg.Store.Path, logger.Log)
			if err != nil {
				return err
			}
			defer st.Close()

			if len(args) == 1 {
				mm, err := st.GetMission(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), display.FormatMissionMetrics(mm))
				return nil
			}
			missions, err := st.ListMissions(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), display.FormatHistory(missions))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of missions to list")
	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read(configPath)
			if err != nil {
				return err
			}
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
		},
	}
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
