package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KostasZigo/gitree/internal/constants"
	"github.com/KostasZigo/gitree/internal/repository"
	"github.com/KostasZigo/gitree/utils"
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a new gitree repository",
	Long: `The 'init' command sets up a new repository in the given or current directory.
It creates a .git directory laid out the way git expects, with HEAD pointing at
the tracked branch. If a repository already exists, the command will not
overwrite existing data.`,
	SilenceUsage: true,
	Args:         maximumArgs(1),
	RunE:         runInit,
}

var branchFlag string

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVarP(&branchFlag, "branch", "b", constants.DefaultBranch, "Name of the tracked branch")
}

// runInit executes repository initialization at specified or current directory.
func runInit(cmd *cobra.Command, args []string) error {
	dirPath := "."
	if len(args) > 0 {
		dirPath = args[0]
	}

	if err := repository.InitRepositoryWithBranch(dirPath, branchFlag); err != nil {
		return fmt.Errorf("failed to initialize repository - %w", err)
	}

	cmd.Printf("Initialized empty gitree repository in %s\n", utils.BuildDirPath(dirPath, constants.GitDir))
	return nil
}
