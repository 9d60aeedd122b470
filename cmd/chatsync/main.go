package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "chatsync",
		Short:         "Conversation sync engine for multi-channel chat",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CHATSYNC_CONFIG"), "path to a YAML config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newFollowCmd(&configPath),
		newTokenCmd(&configPath),
	)
	return root
}
