package status

import (
	"github.com/spf13/cobra"
)

func NewStatusCommand() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"st"},
		Short:   "Show status of a running relay",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return statusCmd(jsonOut)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print raw JSON status")

	return cmd
}
