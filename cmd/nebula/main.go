package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/user/nebula-blue/config"
	"github.com/user/nebula-blue/logger"
)

func main() {
	if err := fang.Execute(context.Background(), newRootCmd(os.Getenv)); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Environment overrides are applied before
// the flags are bound so that flags win.
func newRootCmd(getenv func(string) string) *cobra.Command {
	cfg := config.Default()
	envErr := cfg.ApplyEnv(getenv)

	root := &cobra.Command{
		Use:           "nebula",
		Short:         "Stream a protected sensor payload over a simulated notification link",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return envErr
			}
			logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
			return nil
		},
	}
	cfg.BindFlags(root.PersistentFlags())

	root.AddCommand(newSimulateCmd(&cfg))
	root.AddCommand(newKeygenCmd())
	root.AddCommand(newDecryptCmd(&cfg))
	return root
}
