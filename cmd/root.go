package cmd

import (
	"github.com/spf13/cobra"

	"github.com/strandapp/strand/pkg/config"
)

var cfgPath string

// NewRootCmd builds the strand command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "strand",
		Short:         "Interactive story chat client",
		Long:          "strand is a terminal client for streaming story conversations.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath(), "Path to the config file")

	rootCmd.AddCommand(GetChatCommand())
	rootCmd.AddCommand(GetRoomsCommand())
	rootCmd.AddCommand(NewVersionCmd())
	return rootCmd
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgPath)
}
