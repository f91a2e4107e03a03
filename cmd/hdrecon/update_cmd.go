package main

import (
	"github.com/spf13/cobra"

	"github.com/iota-uz/helpdesk-recon/pkg/batch"
)

func bindBatchFlags(cmd *cobra.Command, opts *batchOptions) {
	cmd.Flags().StringVar(&opts.input, "input", "", "Input CSV file (required)")
	cmd.Flags().StringVar(&opts.outputDir, "output", "", "Output directory for reports (default: input file's directory)")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Apply changes to the platform (default is dry-run)")
	cmd.Flags().BoolVar(&opts.xlsx, "xlsx", false, "Also write reports as .xlsx")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "Platform base URL (default: HELPDESK_BASE_URL)")
	cmd.Flags().Int64Var(&opts.workspace, "workspace", 0, "Workspace ID (default: HELPDESK_WORKSPACE_ID)")
	_ = cmd.MarkFlagRequired("input")
}

func newUpdateCmd() *cobra.Command {
	var opts batchOptions

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Bulk-update user records from a CSV batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), opts, batch.TemplateUpdate)
		},
	}
	bindBatchFlags(cmd, &opts)
	return cmd
}
