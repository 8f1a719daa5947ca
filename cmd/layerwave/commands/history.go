package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/layerwave/layerwave/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		target     string
		reportID   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived plan reports",
		Long: `List plans archived with 'layerwave plan --save', newest first.

Reports are read from the database.path setting.`,
		Example: `  # All reports
  layerwave history

  # Reports for one target
  layerwave history --target 2.0.0

  # One report with its waves
  layerwave history --id 5f0c... --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			ctx := cmd.Context()
			archive, err := openArchive(ctx, rt)
			if err != nil {
				return err
			}
			defer func() { _ = archive.Close() }()

			if reportID != "" {
				report, err := archive.GetReport(ctx, reportID)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			}

			reports, err := archive.ListReports(ctx, target)
			if err != nil {
				return err
			}
			if jsonOutput {
				if reports == nil {
					reports = []*stores.PlanReport{}
				}
				return writeJSON(cmd.OutOrStdout(), reports)
			}
			return renderReports(cmd.OutOrStdout(), reports)
		},
	}

	cmd.Flags().StringVarP(&target, "target", "t", "", "only reports for this target version")
	cmd.Flags().StringVar(&reportID, "id", "", "show a single report")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}

// openArchive opens and migrates the configured report archive.
func openArchive(ctx context.Context, rt *runtime) (*stores.SQLiteStore, error) {
	path := rt.settings.Database.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return stores.Open(ctx, stores.Config{
		Path:   path,
		Logger: rt.telemetry.Logger.Zerolog(),
	})
}
