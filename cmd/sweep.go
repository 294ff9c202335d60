// cmd/sweep.go
package cmd

import (
	"log"

	"calorie-challenge-engine/services"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one cutoff sweep and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, s, err := openEngine(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		defer engine.Close()

		sink, err := reportSink(cmd.Context(), cfg.Report)
		if err != nil {
			return err
		}
		res, err := services.NewSweeper(engine, sink).RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		log.Printf("✅ Sweep: scanned %d, finalized %d, completed %d, archived %d, failed %d",
			res.Scanned, res.Finalized, res.Completed, res.Archived, res.Failed)
		return nil
	},
}
