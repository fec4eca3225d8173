// Command mailctl is the operator CLI: migrations, exports, tracking links
// and segment rule checks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ignite/mailcraft/internal/app"
	"github.com/ignite/mailcraft/internal/config"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "mailctl",
		Short:         "Operate a mailcraft deployment",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to the YAML config")

	load := func() (*config.Config, error) { return app.LoadConfig(configPath) }
	root.AddCommand(migrateCmd(load))
	root.AddCommand(exportCmd(load))
	root.AddCommand(tokenCmd(load))
	root.AddCommand(segmentCmd())
	return root
}
