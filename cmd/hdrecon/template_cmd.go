package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/iota-uz/helpdesk-recon/pkg/batch"
)

func newTemplateCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write blank CSV templates for all batch formats",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return withCode(exitAPI, fmt.Errorf("mkdir %s: %w", outputDir, err))
			}
			templates := []batch.Template{batch.TemplateUpdate, batch.TemplateDeactivate, batch.TemplateMembership}
			files := make([]string, 0, len(templates))
			for _, t := range templates {
				path := filepath.Join(outputDir, fmt.Sprintf("%s_template.csv", t))
				f, err := os.Create(path)
				if err != nil {
					return withCode(exitAPI, err)
				}
				if err := batch.WriteTemplate(f, t); err != nil {
					_ = f.Close()
					return withCode(exitAPI, err)
				}
				if err := f.Close(); err != nil {
					return withCode(exitAPI, err)
				}
				files = append(files, path)
			}
			return writeJSONLine(struct {
				Status string   `json:"status"`
				Files  []string `json:"files"`
			}{Status: "written", Files: files})
		},
	}

	cmd.Flags().StringVar(&outputDir, "output", ".", "Directory to write templates into")
	return cmd
}
