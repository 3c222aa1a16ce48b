package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KostasZigo/gitree/internal/apperr"
	"github.com/KostasZigo/gitree/internal/serializer"
	"github.com/KostasZigo/gitree/internal/treestore"
	"github.com/KostasZigo/gitree/utils"
)

var mkdirCmd = &cobra.Command{
	Use:          "mkdir <path>",
	Short:        "Create an empty directory",
	SilenceUsage: true,
	Args:         exactArgs(1, "path"),
	RunE:         runMkdir,
}

var createFileCmd = &cobra.Command{
	Use:   "create-file <path>",
	Short: "Create a file",
	Long: `Create a file at path. The content comes from --content, --file or stdin.

With --parents, missing directories on the way to the file are created in the
same commit.

Examples:
  gitree create-file notes/todo.md --content "- buy milk"
  gitree create-file -p archive/2024/report.pdf --file ./report.pdf`,
	SilenceUsage: true,
	Args:         exactArgs(1, "path"),
	RunE:         runCreateFile,
}

var (
	contentFlag string
	fileFlag    string
	parentsFlag bool
)

func init() {
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(createFileCmd)

	createFileCmd.Flags().StringVarP(&contentFlag, "content", "c", "", "File content")
	createFileCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Read file content from this local file")
	createFileCmd.Flags().BoolVarP(&parentsFlag, "parents", "p", false, "Create missing parent directories")
}

func runMkdir(cmd *cobra.Command, args []string) error {
	segments := utils.SplitPath(args[0])
	if len(segments) == 0 {
		return fmt.Errorf("mkdir needs a directory name")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	v, err := store.Mutate(cmd.Context(), serializer.CreateDir{
		Path: segments[:len(segments)-1],
		Name: segments[len(segments)-1],
	})
	if err != nil {
		return err
	}
	printVersion(cmd, v)
	return nil
}

func runCreateFile(cmd *cobra.Command, args []string) error {
	segments := utils.SplitPath(args[0])
	if len(segments) == 0 {
		return fmt.Errorf("create-file needs a file name")
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

	split := len(segments) - 1
	if parentsFlag {
		if split, err = existingPrefix(store, segments[:len(segments)-1]); err != nil {
			return err
		}
	}

	v, err := store.Mutate(cmd.Context(), serializer.CreateFile{
		Path:    segments[:split],
		Rel:     segments[split:],
		Content: content,
	})
	if err != nil {
		return err
	}
	printVersion(cmd, v)
	return nil
}

// existingPrefix returns how many leading segments of dirs name existing
// directories in the current root. A file in the way ends the prefix too,
// so the mutation reports it.
func existingPrefix(store *treestore.Store, dirs []string) (int, error) {
	n := 0
	for n < len(dirs) {
		obj, err := store.ResolvePath(dirs[:n+1])
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrNotADirectory) {
			break
		}
		if err != nil {
			return 0, err
		}
		if !obj.IsDir() {
			break
		}
		n++
	}
	return n, nil
}
