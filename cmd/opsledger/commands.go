package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fernandezvara/opsledger/internal/scheduler"
	"github.com/fernandezvara/opsledger/internal/server"
	"github.com/fernandezvara/opsledger/ledger"
	"github.com/fernandezvara/opsledger/migrations"
	"github.com/fernandezvara/opsledger/report"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve /healthz and /metrics and run the nightly inventory rollup",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, true)
			if err != nil {
				return err
			}
			defer a.close()

			svc := ledger.NewService(a.db)
			sched, err := scheduler.New(a.config.RollupSchedule, svc, a.logger)
			if err != nil {
				return fmt.Errorf("invalid ROLLUP_SCHEDULE %q: %w", a.config.RollupSchedule, err)
			}
			sched.Start()
			defer sched.Stop()

			a.logger.Info("starting opsledger",
				zap.String("addr", a.config.HTTPAddr),
				zap.String("rollup_schedule", a.config.RollupSchedule),
			)
			return server.New(a.config.HTTPAddr, a.db, a.registry, a.logger).ListenAndServe(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			all, err := migrations.All()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if status {
				entries, err := a.db.MigrationStatus(ctx, all)
				if err != nil {
					return err
				}
				for _, e := range entries {
					state := "pending"
					switch {
					case e.Applied && !e.ChecksumMatch:
						state = "changed"
					case e.Applied:
						state = "applied"
					}
					fmt.Fprintf(out, "%s  %-8s %s\n", e.ID, state, e.Description)
				}
				return nil
			}

			res, err := a.db.Migrate(ctx, all)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "applied %d, skipped %d in %s\n", len(res.Applied), len(res.Skipped), res.TotalTime.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "List migrations and whether they are applied")
	return cmd
}

func rollupCmd() *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "rollup",
		Short: "Recompute the inventory summary of every active material for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDay(day, time.Now())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := setup(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			summaries, err := ledger.NewService(a.db).RollupInventory(ctx, d)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range summaries {
				fmt.Fprintf(out, "%s  opening %.2f  produced %.2f  dispatched %.2f  closing %.2f\n",
					s.MaterialID, s.OpeningBalance, s.TotalProduction, s.TotalDispatched, s.ClosingBalance)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&day, "date", "", "Day to roll up as YYYY-MM-DD (default: yesterday, UTC)")
	return cmd
}

func exportCmd() *cobra.Command {
	var from, to, outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the reporting views for a date range to an .xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := parseRange(from, to)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := setup(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			rep, err := report.New(a.db).Build(ctx, rng)
			if err != nil {
				return err
			}

			path := outPath
			if path == "" {
				path = exportPath(a.config.ExportDir, rng)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("create export directory: %w", err)
			}
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			if err := report.WriteWorkbook(f, rep); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			a.logger.Info("report exported", zap.String("path", path), zap.Stringer("range", rng))
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First day as YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&to, "to", "", "Last day as YYYY-MM-DD (required)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default: EXPORT_DIR/opsledger_<from>_<to>.xlsx)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// parseDay parses YYYY-MM-DD; an empty value is the UTC day before now.
func parseDay(value string, now time.Time) (time.Time, error) {
	if value == "" {
		y := now.UTC().AddDate(0, 0, -1)
		return time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	d, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", value)
	}
	return d, nil
}

func parseRange(from, to string) (ledger.DateRange, error) {
	start, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return ledger.DateRange{}, fmt.Errorf("invalid --from %q, want YYYY-MM-DD", from)
	}
	end, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return ledger.DateRange{}, fmt.Errorf("invalid --to %q, want YYYY-MM-DD", to)
	}
	return ledger.ValidateDateRange(ledger.DateRange{StartDate: start, EndDate: end})
}

func exportPath(dir string, rng ledger.DateRange) string {
	name := fmt.Sprintf("opsledger_%s_%s.xlsx", rng.StartDate.Format(time.DateOnly), rng.EndDate.Format(time.DateOnly))
	return filepath.Join(dir, name)
}
