package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// set at build time with -ldflags "-X github.com/kava-labs/kava-rpc-gateway/cmd.Version=..."
var (
	Version = "dev"
	Commit  = ""
)

// VersionCmd ...
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Version:", Version)
		if Commit != "" {
			fmt.Fprintln(out, "Git Commit:", Commit)
		}
		fmt.Fprintln(out, "Go Version:", runtime.Version())
	},
}
