package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/zulandar/carpool/internal/gateway"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cpool",
		Short: "Carpool trip companion",
		Long:  "Carpool keeps your current trip in sync with the backend, auto-starts trips and runs the trip chat.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newAutostartCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newCancelCmd())
	cmd.AddCommand(newFinishCmd())
	cmd.AddCommand(newCommentCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cpool %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

// execute runs cmd and maps its error to an exit code: 2 when the backend
// refused the action, 1 for any other failure.
func execute(cmd *cobra.Command) int {
	err := cmd.Execute()
	switch {
	case err == nil:
		return 0
	case gateway.IsRejected(err):
		return 2
	default:
		return 1
	}
}

func main() {
	os.Exit(execute(newRootCmd()))
}
