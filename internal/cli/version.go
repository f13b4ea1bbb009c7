package cli

import (
	"fmt"

	"github.com/dl-alexandre/savegem/internal/types"
	"github.com/dl-alexandre/savegem/pkg/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := GetGlobalFlags()
		out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)
		info := version.Get()
		if flags.OutputFormat == types.OutputFormatJSON {
			return out.WriteSuccess("version", info)
		}
		fmt.Fprintln(cmd.OutOrStdout(), info.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
