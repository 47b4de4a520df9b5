package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-production-goals/internal/config"
	"github.com/tbourn/go-production-goals/internal/repo"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Create or update the database tables",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbCfg, err := config.LoadDB()
			if err != nil {
				return err
			}
			db, err := openDB(dbCfg, false)
			if err != nil {
				return err
			}
			defer closeDB(db)

			if err := repo.AutoMigrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s database\n", dbCfg.Driver)
			return nil
		},
	}
}
