package commands

import (
	"fmt"
	"strings"

	"followbot/internal/targets"

	"github.com/spf13/cobra"
)

var targetsCmd = &cobra.Command{
	Use:   "targets <text>",
	Short: "Print the user ids a target list expands to.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := targets.Parse(args[0])
		if len(ids) == 0 {
			return fmt.Errorf("no valid user ids in %q", args[0])
		}

		formatted := make([]string, len(ids))
		for i, id := range ids {
			formatted[i] = fmt.Sprint(id)
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(formatted, " "))
		fmt.Fprintf(cmd.ErrOrStderr(), "%d targets\n", len(ids))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(targetsCmd)
}
