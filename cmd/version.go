package cmd

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func NewVersionCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version information for this binary",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput {
				out, err := sonic.MarshalIndent(map[string]string{
					"version":    Version,
					"commit":     Commit,
					"build_date": BuildDate,
				}, "", "  ")
				if err != nil {
					return fmt.Errorf("encoding version info: %w", err)
				}
				fmt.Println(string(out))
				return nil
			}
			fmt.Printf("strand %s (%s, built %s)\n", Version, Commit, BuildDate)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version information in JSON format")

	return cmd
}
