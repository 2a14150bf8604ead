package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/firmenradar/internal/aggregate"
	"github.com/sells-group/firmenradar/internal/model"
)

var (
	aggName     string
	aggRegister string
	aggUstID    string
	aggJSON     bool
	aggReport   string
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate data for a single company",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		identity := model.CompanyIdentity{
			CompanyName:    aggName,
			Registernummer: aggRegister,
			UstIDNr:        aggUstID,
		}

		record, report, err := e.Orchestrator.Aggregate(ctx, identity)
		if err != nil && record == nil {
			return eris.Wrap(err, "aggregate")
		}
		if err != nil {
			// Persist failure; the run itself completed.
			zap.L().Error("persist failed", zap.Error(err))
		}

		if aggReport != "" {
			f, ferr := os.Create(aggReport)
			if ferr != nil {
				return eris.Wrapf(ferr, "create report %s", aggReport)
			}
			defer f.Close()
			if werr := aggregate.WriteMarkdownReport(f, record, report); werr != nil {
				return werr
			}
			zap.L().Info("report written", zap.String("path", aggReport))
		}

		if aggJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"record": record,
				"report": report,
			})
		}

		zap.L().Info("aggregation complete",
			zap.String("fingerprint", record.Fingerprint),
			zap.Int("fields", len(record.Fields)),
			zap.Int("missing", len(report.Missing)),
			zap.Int("conflicts", len(report.Conflicts)))
		return err
	},
}

func init() {
	aggregateCmd.Flags().StringVar(&aggName, "name", "", "company name")
	aggregateCmd.Flags().StringVar(&aggRegister, "register", "", "register number (e.g. HRB182742)")
	aggregateCmd.Flags().StringVar(&aggUstID, "ustid", "", "VAT id (e.g. DE123456789)")
	aggregateCmd.Flags().BoolVar(&aggJSON, "json", false, "print record and report as JSON")
	aggregateCmd.Flags().StringVar(&aggReport, "report", "", "write a Markdown report to this path")
	rootCmd.AddCommand(aggregateCmd)
}
