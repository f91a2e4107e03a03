package main

import (
	"github.com/spf13/cobra"

	"github.com/iota-uz/helpdesk-recon/pkg/batch"
)

func newDeactivateCmd() *cobra.Command {
	var opts batchOptions

	cmd := &cobra.Command{
		Use:   "deactivate",
		Short: "Bulk-deactivate users from a CSV batch (Email, Reason)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), opts, batch.TemplateDeactivate)
		},
	}
	bindBatchFlags(cmd, &opts)
	return cmd
}
