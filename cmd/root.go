// cmd/root.go
package cmd

import (
	"context"
	"log"

	"calorie-challenge-engine/config"

	"github.com/spf13/cobra"
)

var (
	envOnly bool
	cfg     *config.Config

	rootCmd = &cobra.Command{
		Use:   "challenge-engine",
		Short: "Calorie challenge adherence and ranking service",
		Long: `challenge-engine judges daily calorie adherence for challenge participants,
tracks streaks and cheat days, and ranks participants per challenge room.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if envOnly {
				cfg, err = config.FromEnv()
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				return err
			}
			log.Printf("⚙️  Configuration loaded (driver=%s)", cfg.DatabaseDriver)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&envOnly, "env-only", false, "ignore .env and read the process environment only")
	rootCmd.AddCommand(serveCmd, migrateCmd, recomputeCmd, sweepCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}
