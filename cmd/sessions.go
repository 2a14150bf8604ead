package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/firmenradar/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage source authentication sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions and their validity",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := session.NewManager(cfg.Sessions.Path)
		if err != nil {
			return err
		}

		states := mgr.All()
		if len(states) == 0 {
			fmt.Println("no sessions stored")
			return nil
		}
		for _, s := range states {
			validity := "valid"
			if !s.Valid {
				validity = "INVALID (re-authentication required)"
			}
			fmt.Printf("%-24s %s  last validated %s\n",
				s.SourceID, validity, s.LastValidated.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var sessionsImportCmd = &cobra.Command{
	Use:   "import <source> <blob-file>",
	Short: "Import a session blob captured out of band",
	Long:  "Stores the contents of blob-file (e.g. a li_at cookie value) as the session for a source and marks it valid. Use - to read from stdin.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sourceID, blobPath := args[0], args[1]

		var data []byte
		var err error
		if blobPath == "-" {
			data, err = os.ReadFile("/dev/stdin")
		} else {
			data, err = os.ReadFile(blobPath)
		}
		if err != nil {
			return eris.Wrapf(err, "read blob %s", blobPath)
		}

		mgr, err := session.NewManager(cfg.Sessions.Path)
		if err != nil {
			return err
		}
		if err := mgr.Put(sourceID, strings.TrimSpace(string(data))); err != nil {
			return err
		}
		fmt.Printf("session for %s stored\n", sourceID)
		return nil
	},
}

var sessionsInvalidateCmd = &cobra.Command{
	Use:   "invalidate <source>",
	Short: "Mark a session invalid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := session.NewManager(cfg.Sessions.Path)
		if err != nil {
			return err
		}
		mgr.MarkInvalid(args[0])
		fmt.Printf("session for %s marked invalid\n", args[0])
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsImportCmd, sessionsInvalidateCmd)
	rootCmd.AddCommand(sessionsCmd)
}
