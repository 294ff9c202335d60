// cmd/migrate.go
package cmd

import (
	"log"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the schema and register the room catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, s, err := openEngine(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		defer engine.Close()
		log.Println("✅ Migration complete")
		return nil
	},
}
