// cmd/recompute.go
package cmd

import (
	"log"

	"github.com/spf13/cobra"
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Rebuild every participation's streak statistics from its verdicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, s, err := openEngine(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		defer engine.Close()

		changed, err := engine.Streaks.RecomputeAll(cmd.Context())
		if err != nil {
			return err
		}
		log.Printf("✅ Recompute finished: %d participation(s) corrected", changed)
		return nil
	},
}
