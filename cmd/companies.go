package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/firmenradar/internal/model"
)

var companiesJSON bool

var companiesCmd = &cobra.Command{
	Use:   "companies",
	Short: "List aggregated companies",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		records, err := st.ListCompanies(ctx, 100, 0)
		if err != nil {
			return err
		}

		if companiesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}

		if len(records) == 0 {
			fmt.Println("no companies stored")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%-32s %-20s %2d fields  %s\n",
				r.Identity.CompanyName,
				r.StringValue(model.FieldRegisternummer),
				len(r.Fields),
				r.AggregatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}
		fmt.Println("schema up to date")
		return nil
	},
}

func init() {
	companiesCmd.Flags().BoolVar(&companiesJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(companiesCmd, migrateCmd)
}
