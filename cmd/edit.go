package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KostasZigo/gitree/internal/serializer"
	"github.com/KostasZigo/gitree/utils"
)

var renameCmd = &cobra.Command{
	Use:          "rename <path> <new-name>",
	Short:        "Rename a file or directory in place",
	SilenceUsage: true,
	Args:         exactArgs(2, "path and new name"),
	RunE:         runRename,
}

var removeCmd = &cobra.Command{
	Use:          "rm <path>",
	Short:        "Delete a file or directory",
	SilenceUsage: true,
	Args:         exactArgs(1, "path"),
	RunE:         runRemove,
}

var moveCmd = &cobra.Command{
	Use:   "mv <path> <new-path>",
	Short: "Move a file or directory",
	Long: `Move an item to a new path, keeping its object id. The destination's parent
directory must already exist.`,
	SilenceUsage: true,
	Args:         exactArgs(2, "path and new path"),
	RunE:         runMove,
}

var saveCmd = &cobra.Command{
	Use:   "save <path>",
	Short: "Replace the content of a file",
	Long: `Replace the content of a file. The content comes from --content, --file or stdin.

Pass the id the content was read at with --expect; the save is rejected with a
conflict when the file changed since.`,
	SilenceUsage: true,
	Args:         exactArgs(1, "path"),
	RunE:         runSave,
}

var expectFlag string

func init() {
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(saveCmd)

	for _, c := range []*cobra.Command{renameCmd, removeCmd, moveCmd, saveCmd} {
		c.Flags().StringVarP(&expectFlag, "expect", "e", "", "Fail with a conflict unless the item has this object id")
	}
	saveCmd.Flags().StringVarP(&contentFlag, "content", "c", "", "File content")
	saveCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Read file content from this local file")
}

// itemPath splits a path that must name an item below the root.
func itemPath(arg string) ([]string, error) {
	segments := utils.SplitPath(arg)
	if len(segments) == 0 {
		return nil, fmt.Errorf("path %q does not name an item", arg)
	}
	return segments, nil
}

func runRename(cmd *cobra.Command, args []string) error {
	segments, err := itemPath(args[0])
	if err != nil {
		return err
	}
	if err := validateExpect(expectFlag); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	v, err := store.Mutate(cmd.Context(), serializer.Rename{
		Path:     segments[:len(segments)-1],
		PrevName: segments[len(segments)-1],
		PrevID:   expectFlag,
		NewName:  args[1],
	})
	if err != nil {
		return err
	}
	printVersion(cmd, v)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	segments, err := itemPath(args[0])
	if err != nil {
		return err
	}
	if err := validateExpect(expectFlag); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	v, err := store.Mutate(cmd.Context(), serializer.Delete{Path: segments, ExpectedID: expectFlag})
	if err != nil {
		return err
	}
	printVersion(cmd, v)
	return nil
}

func runMove(cmd *cobra.Command, args []string) error {
	segments, err := itemPath(args[0])
	if err != nil {
		return err
	}
	destination, err := itemPath(args[1])
	if err != nil {
		return err
	}
	if err := validateExpect(expectFlag); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	v, err := store.Mutate(cmd.Context(), serializer.Move{
		Path:       segments,
		ExpectedID: expectFlag,
		NewPath:    destination,
	})
	if err != nil {
		return err
	}
	printVersion(cmd, v)
	return nil
}

func runSave(cmd *cobra.Command, args []string) error {
	segments, err := itemPath(args[0])
	if err != nil {
		return err
	}
	if err := validateExpect(expectFlag); err != nil {
		return err
	}
	content, err := readContent(cmd, contentFlag, fileFlag)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	v, err := store.Mutate(cmd.Context(), serializer.SaveContent{
		Path:    segments,
		PrevID:  expectFlag,
		Content: content,
	})
	if err != nil {
		return err
	}
	printVersion(cmd, v)
	return nil
}
