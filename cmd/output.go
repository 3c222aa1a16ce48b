package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/KostasZigo/gitree/internal/objects"
	"github.com/KostasZigo/gitree/internal/resolver"
	"github.com/KostasZigo/gitree/internal/serializer"
	"github.com/KostasZigo/gitree/utils"
)

var (
	dirColor  = color.New(color.FgBlue, color.Bold)
	idColor   = color.New(color.FgYellow)
	failColor = color.New(color.FgRed)
)

// printVersion writes the commit and root tree ids of v.
func printVersion(cmd *cobra.Command, v serializer.Version) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "commit %s\n", v.Commit)
	fmt.Fprintf(out, "tree %s\n", v.Tree)
}

// printEntries writes tree entries in git ls-tree layout.
func printEntries(cmd *cobra.Command, entries []resolver.Entry) {
	out := cmd.OutOrStdout()
	for _, e := range entries {
		name := e.Name
		mode := string(e.Mode)
		if e.Kind == objects.KindDir {
			name = dirColor.Sprint(e.Name + "/")
			// git ls-tree prints the padded directory mode
			mode = string(objects.ModeDirectoryPadded)
		}
		fmt.Fprintf(out, "%s %-4s %s\t%s\n", mode, e.Kind, idColor.Sprint(e.ID), name)
	}
}

// readContent returns the file content given by the --content or --file
// flags, or stdin when neither is set.
func readContent(cmd *cobra.Command, content, file string) ([]byte, error) {
	switch {
	case content != "" && file != "":
		return nil, fmt.Errorf("--content and --file are mutually exclusive")
	case content != "":
		return []byte(content), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		return data, nil
	default:
		in := cmd.InOrStdin()
		if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return nil, fmt.Errorf("no content given: pass --content or --file, or pipe it to stdin")
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
}

// validateExpect rejects --expect values that cannot be content ids.
func validateExpect(expect string) error {
	if expect != "" && !utils.IsValidHash(expect) {
		return fmt.Errorf("--expect must be a 40 character hex object id, got %q", expect)
	}
	return nil
}
