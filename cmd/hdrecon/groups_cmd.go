package main

import (
	"github.com/spf13/cobra"

	"github.com/iota-uz/helpdesk-recon/pkg/batch"
)

func newGroupsCmd() *cobra.Command {
	var opts batchOptions

	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Bulk group-membership changes from a CSV batch (Email, Group_Name, Action)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), opts, batch.TemplateMembership)
		},
	}
	bindBatchFlags(cmd, &opts)
	return cmd
}
