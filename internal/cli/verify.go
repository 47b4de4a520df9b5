package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-production-goals/internal/config"
	"github.com/tbourn/go-production-goals/internal/repo"
)

// ErrDrift is returned by verify when at least one part's progress differs
// from the sum of its current-cycle submissions.
var ErrDrift = errors.New("progress drift detected")

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	var projectID uint

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check progress against the submission log",
		Long: `Check every part's progress against the sum of its current-cycle
submissions and report the parts that disagree. Exits non-zero on drift.`,
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

			ctx := cmd.Context()
			ids := []uint{projectID}
			if projectID == 0 {
				projects, err := repo.ListProjects(ctx, db)
				if err != nil {
					return err
				}
				ids = ids[:0]
				for _, p := range projects {
					ids = append(ids, p.ID)
				}
			}

			out := cmd.OutOrStdout()
			drifted := 0
			for _, id := range ids {
				parts, err := repo.CycleDrift(ctx, db, id)
				if err != nil {
					return fmt.Errorf("project %d: %w", id, err)
				}
				for _, p := range parts {
					drifted++
					fmt.Fprintf(out, "project %d part %d (%s): progress %d disagrees with submissions\n",
						id, p.ID, p.Name, p.Progress)
				}
			}
			if drifted > 0 {
				return fmt.Errorf("%w in %d part(s)", ErrDrift, drifted)
			}
			fmt.Fprintf(out, "ok: %d project(s) consistent\n", len(ids))
			return nil
		},
	}

	cmd.Flags().UintVar(&projectID, "project", 0, "check a single project (default all)")
	return cmd
}
