package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the branch with its remote",
	Long: `Keep the tracked branch in step with the configured remote. Edits made in
the working tree are committed, then the remote branch is fetched, merged or
rebased, and the result force pushed when needed.

Without --once the command runs until interrupted, restarting the loop after
an unrecoverable divergence. Requires sync.enabled and repo.worktree in the
config file.`,
	SilenceUsage: true,
	Args:         exactArgs(0, "none"),
	RunE:         runSync,
}

var onceFlag bool

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVar(&onceFlag, "once", false, "Run a single reconciliation cycle and exit")
}

func runSync(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if onceFlag {
		if err := store.Sync(cmd.Context()); err != nil {
			return err
		}
		printVersion(cmd, store.Root())
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = store.RunSync(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
