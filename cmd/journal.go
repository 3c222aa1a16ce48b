package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show recent mutation requests",
	Long: `Show recent mutation requests, newest first, including rejected ones.
Requires journal.enabled in the config file.`,
	SilenceUsage: true,
	Args:         exactArgs(0, "none"),
	RunE:         runJournal,
}

var limitFlag int

func init() {
	rootCmd.AddCommand(journalCmd)

	journalCmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "Maximum number of entries, 0 for all")
}

func runJournal(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.Journal(limitFlag)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, e := range entries {
		outcome := idColor.Sprint(shortID(e.After.Commit))
		if e.ErrorKind != "" {
			outcome = failColor.Sprint(e.ErrorKind)
		}
		fmt.Fprintf(out, "%s %-12s %-40s %s\n",
			e.Time.Local().Format(time.DateTime), e.Kind, e.Target, outcome)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}
