package cmd

import (
	"github.com/spf13/cobra"

	"github.com/KostasZigo/gitree/utils"
)

var versionCmd = &cobra.Command{
	Use:          "root",
	Short:        "Print the current commit and root tree ids",
	SilenceUsage: true,
	Args:         exactArgs(0, "none"),
	RunE:         runRoot,
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the blob or tree stored under an object id",
	Long: `Resolve an object id. Blobs are printed verbatim, trees as one line per
entry with mode, kind, id and name. Ids that are no longer reachable from the
branch tip still resolve.`,
	SilenceUsage: true,
	Args:         exactArgs(1, "object id"),
	RunE:         runShow,
}

var lsCmd = &cobra.Command{
	Use:          "ls [path]",
	Short:        "List a directory of the current root",
	SilenceUsage: true,
	Args:         maximumArgs(1),
	RunE:         runList,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(lsCmd)
}

func runRoot(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	printVersion(cmd, store.Root())
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	obj, err := store.Resolve(args[0])
	if err != nil {
		return err
	}
	if obj.IsDir() {
		printEntries(cmd, obj.Entries)
		return nil
	}
	_, err = cmd.OutOrStdout().Write(obj.Content)
	return err
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var path []string
	if len(args) > 0 {
		path = utils.SplitPath(args[0])
	}
	entries, err := store.ListPath(path)
	if err != nil {
		return err
	}
	printEntries(cmd, entries)
	return nil
}
