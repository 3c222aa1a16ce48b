package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KostasZigo/gitree/internal/objects"
	"github.com/KostasZigo/gitree/internal/repository"
)

var hashObjectCmd = &cobra.Command{
	Use:   "hash-object <filepath>",
	Short: "Compute object hash and optionally create and store a blob from a file",
	Long: `Compute the object hash (SHA-1 hash) for a file's content.
Optionally write the resulting object's blob into the objects folder.

Examples:
  # Compute hash without storing
  gitree hash-object myfile.txt

  # Compute hash and store in .git/objects
  gitree hash-object -w myfile.txt`,
	SilenceUsage: true,
	Args:         exactArgs(1, "filepath"),
	RunE:         runHashObject,
}

var writeFlag bool

func init() {
	rootCmd.AddCommand(hashObjectCmd)

	hashObjectCmd.Flags().BoolVarP(&writeFlag, "write", "w", false, "Write the object into the objects folder")
}

// runHashObject computes hash and optionally stores blob object.
func runHashObject(cmd *cobra.Command, args []string) error {
	blob, err := objects.NewBlobFromFile(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), blob.Hash())

	if writeFlag {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		repo, err := repository.Open(cfg.Repo.Path, nil)
		if err != nil {
			return err
		}
		if err := repo.Objects().Store(blob); err != nil {
			return fmt.Errorf("failed to store object: %w", err)
		}
	}

	return nil
}
