package cmd

import (
	"bytes"
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KostasZigo/gitree/internal/repository"
)

func init() {
	color.NoColor = true
}

// createTestRootCmd creates a fresh root command with the given subcommands.
// Flag values left over from earlier executions are reset to their defaults.
func createTestRootCmd(cmds ...*cobra.Command) *cobra.Command {
	testRootCmd := &cobra.Command{Use: "gitree"}
	addPersistentFlags(testRootCmd)
	for _, c := range cmds {
		resetFlags(c)
		testRootCmd.AddCommand(c)
	}
	return testRootCmd
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

// captureStdout returns command stdout output as string.
func captureStdout(cmd *cobra.Command) *bytes.Buffer {
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	return &stdout
}

// captureStderr returns command stderr output as string.
func captureStderr(cmd *cobra.Command) *bytes.Buffer {
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	return &stderr
}

// allCommands lists every subcommand registered on rootCmd.
func allCommands() []*cobra.Command {
	return []*cobra.Command{
		initCmd, hashObjectCmd, versionCmd, showCmd, lsCmd, mkdirCmd, createFileCmd,
		renameCmd, removeCmd, moveCmd, saveCmd, journalCmd, syncCmd,
	}
}

// runGitree executes args against a fresh root command and returns stdout.
func runGitree(t *testing.T, args ...string) (string, error) {
	t.Helper()
	testRootCmd := createTestRootCmd(allCommands()...)
	stdout := captureStdout(testRootCmd)
	captureStderr(testRootCmd)
	testRootCmd.SetArgs(args)
	err := testRootCmd.Execute()
	return stdout.String(), err
}

// mustRunGitree is runGitree for commands expected to succeed.
func mustRunGitree(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runGitree(t, args...)
	if err != nil {
		t.Fatalf("gitree %v failed: %v", args, err)
	}
	return out
}

// initTestRepo creates an initialized repository in a temp dir.
func initTestRepo(t *testing.T) string {
	t.Helper()
	repoPath := t.TempDir()
	if err := repository.InitRepository(repoPath); err != nil {
		t.Fatalf("InitRepository failed: %v", err)
	}
	return repoPath
}

// changeToRepoDir changes working directory to repo path and registers cleanup.
func changeToRepoDir(t *testing.T, repoPath string) {
	t.Helper()

	oldDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get current directory: %v", err)
	}

	if err := os.Chdir(repoPath); err != nil {
		t.Fatalf("Failed to change to directory %s: %v", repoPath, err)
	}

	t.Cleanup(func() {
		os.Chdir(oldDir)
	})
}
