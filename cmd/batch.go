package main

import (
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/firmenradar/internal/importer"
)

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Aggregate companies from a CSV or XLSX list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		companies, err := importer.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read company list")
		}
		if batchLimit > 0 && len(companies) > batchLimit {
			companies = companies[:batchLimit]
		}

		zap.L().Info("batch started",
			zap.String("file", args[0]),
			zap.Int("companies", len(companies)))

		var done, failed atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Batch.MaxConcurrentCompanies)

		for _, identity := range companies {
			g.Go(func() error {
				record, report, err := e.Orchestrator.Aggregate(gctx, identity)
				if err != nil && record == nil {
					failed.Add(1)
					zap.L().Error("aggregation failed",
						zap.String("company", identity.CompanyName),
						zap.Error(err))
					return nil
				}
				if err != nil {
					failed.Add(1)
					zap.L().Error("persist failed",
						zap.String("company", identity.CompanyName),
						zap.Error(err))
					return nil
				}
				done.Add(1)
				zap.L().Info("company aggregated",
					zap.String("company", identity.CompanyName),
					zap.String("run_id", report.RunID),
					zap.Int("fields", len(record.Fields)))
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "batch")
		}

		zap.L().Info("batch finished",
			zap.Int64("succeeded", done.Load()),
			zap.Int64("failed", failed.Load()))
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of companies to process (0 = all)")
	rootCmd.AddCommand(batchCmd)
}
