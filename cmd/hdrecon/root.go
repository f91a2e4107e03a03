package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hdrecon",
		Short:         "Bulk user/department/group reconciliation for the helpdesk platform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newDeactivateCmd())
	cmd.AddCommand(newGroupsCmd())
	cmd.AddCommand(newTemplateCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
