package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/helpdesk-recon/pkg/batch"
	"github.com/iota-uz/helpdesk-recon/pkg/configuration"
	"github.com/iota-uz/helpdesk-recon/pkg/directory"
	"github.com/iota-uz/helpdesk-recon/pkg/helpdesk"
	"github.com/iota-uz/helpdesk-recon/pkg/recon"
	"github.com/iota-uz/helpdesk-recon/pkg/report"
)

type batchOptions struct {
	input     string
	outputDir string
	apply     bool
	xlsx      bool
	baseURL   string
	workspace int64
}

type session struct {
	cfg       *configuration.Configuration
	client    *helpdesk.Client
	cache     *directory.Cache
	resolver  *directory.Resolver
	validator *batch.Validator
	executor  *recon.Executor
}

func newSession(opts batchOptions) (*session, error) {
	cfg := configuration.Use()

	baseURL := strings.TrimSpace(opts.baseURL)
	if baseURL == "" {
		baseURL = cfg.Helpdesk.BaseURL
	}
	workspace := opts.workspace
	if workspace == 0 {
		workspace = cfg.Helpdesk.WorkspaceID
	}
	if baseURL == "" {
		return nil, withCode(exitUsage, fmt.Errorf("--base-url or HELPDESK_BASE_URL is required"))
	}
	if strings.TrimSpace(cfg.Helpdesk.APIKey) == "" {
		return nil, withCode(exitUsage, fmt.Errorf("HELPDESK_API_KEY is required"))
	}

	client, err := helpdesk.NewClient(helpdesk.Options{
		BaseURL:               baseURL,
		APIKey:                cfg.Helpdesk.APIKey,
		WorkspaceID:           workspace,
		RateLimitRequests:     cfg.RateLimit.Requests,
		RateLimitPeriod:       cfg.RateLimit.Period,
		RateLimitMaxWait:      cfg.RateLimit.MaxWait,
		RateLimitPollInterval: cfg.RateLimit.PollInterval,
		MaxRetries:            cfg.MaxRetries,
		Logger:                cfg.Logger(),
	})
	if err != nil {
		return nil, withCode(exitUsage, err)
	}

	cache := directory.NewCache(client)
	resolver := directory.NewResolver(cfg.Resolver.SimilarityThreshold)
	validator := batch.NewValidator(resolver, cache, client, batch.ValidatorOptions{
		CheckManagers: cfg.CheckManagers,
		Logger:        cfg.Logger(),
	})
	executor := recon.NewExecutor(client, resolver, cache, client.Audit(), cfg.Logger())

	return &session{
		cfg:       cfg,
		client:    client,
		cache:     cache,
		resolver:  resolver,
		validator: validator,
		executor:  executor,
	}, nil
}

type batchSummary struct {
	Status      string `json:"status"`
	RunID       string `json:"run_id"`
	Template    string `json:"template"`
	Mode        string `json:"mode"`
	Rows        int    `json:"rows"`
	Valid       int    `json:"valid"`
	Invalid     int    `json:"invalid"`
	Applied     int    `json:"applied"`
	Simulated   int    `json:"simulated"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	APICalls    int    `json:"api_calls"`
	ResultsFile string `json:"results_file,omitempty"`
	ErrorsFile  string `json:"errors_file,omitempty"`
}

func runBatch(ctx context.Context, opts batchOptions, template batch.Template) error {
	if strings.TrimSpace(opts.input) == "" {
		return withCode(exitUsage, fmt.Errorf("--input is required"))
	}
	if opts.outputDir == "" {
		opts.outputDir = filepath.Dir(opts.input)
	}
	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
		return withCode(exitAPI, fmt.Errorf("mkdir %s: %w", opts.outputDir, err))
	}

	sess, err := newSession(opts)
	if err != nil {
		return err
	}

	rows, err := batch.ReadFile(opts.input, template)
	if err != nil {
		return withCode(exitValidation, fmt.Errorf("%s: %w", opts.input, err))
	}

	valid, invalid, err := sess.validator.Validate(ctx, template, rows)
	if err != nil {
		return apiExitError(err)
	}

	runID := uuid.New()
	stem := strings.TrimSuffix(filepath.Base(opts.input), filepath.Ext(opts.input))

	summary := batchSummary{
		RunID:    runID.String(),
		Template: string(template),
		Rows:     len(rows),
		Valid:    len(valid),
		Invalid:  len(invalid),
	}

	if len(invalid) > 0 {
		summary.ErrorsFile = filepath.Join(opts.outputDir, stem+"_errors.csv")
		if err := report.WriteRowErrorsFile(summary.ErrorsFile, invalid); err != nil {
			return withCode(exitAPI, fmt.Errorf("write %s: %w", summary.ErrorsFile, err))
		}
		if opts.xlsx {
			if err := report.WriteRowErrorsXLSX(filepath.Join(opts.outputDir, stem+"_errors.xlsx"), invalid); err != nil {
				return withCode(exitAPI, err)
			}
		}
	}

	if len(valid) == 0 {
		summary.Status = "no_valid_rows"
		summary.Mode = modeLabel(opts.apply)
		if err := writeJSONLine(summary); err != nil {
			return err
		}
		if len(invalid) > 0 {
			return withCode(exitValidation, fmt.Errorf("no valid rows: %d of %d rows rejected", len(invalid), len(rows)))
		}
		return nil
	}

	mode := recon.DryRun
	if opts.apply {
		mode = recon.Live
	}
	summary.Mode = mode.String()

	outcomes, execErr := sess.executor.Execute(ctx, valid, mode)
	for _, o := range outcomes {
		switch o.Status {
		case recon.StatusApplied:
			summary.Applied++
		case recon.StatusSimulated:
			summary.Simulated++
		case recon.StatusSkipped:
			summary.Skipped++
		case recon.StatusFailed:
			summary.Failed++
		}
	}
	summary.APICalls = len(sess.client.Audit().Entries())

	if len(outcomes) > 0 {
		summary.ResultsFile = filepath.Join(opts.outputDir, stem+"_results.csv")
		if err := report.WriteOutcomesFile(summary.ResultsFile, outcomes); err != nil {
			return withCode(exitAPI, fmt.Errorf("write %s: %w", summary.ResultsFile, err))
		}
		if opts.xlsx {
			if err := report.WriteOutcomesXLSX(filepath.Join(opts.outputDir, stem+"_results.xlsx"), outcomes); err != nil {
				return withCode(exitAPI, err)
			}
		}
	}

	if execErr != nil {
		summary.Status = "aborted"
		_ = writeJSONLine(summary)
		if errors.Is(execErr, recon.ErrAuthFailed) {
			return withCode(exitAuth, execErr)
		}
		return apiExitError(execErr)
	}

	summary.Status = "completed"
	return writeJSONLine(summary)
}

func modeLabel(apply bool) string {
	if apply {
		return recon.Live.String()
	}
	return recon.DryRun.String()
}

func apiExitError(err error) error {
	if apiErr, ok := helpdesk.AsError(err); ok && apiErr.Kind == helpdesk.ErrAuth {
		return withCode(exitAuth, err)
	}
	return withCode(exitAPI, err)
}
