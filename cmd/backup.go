package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dhcgn/imapfetch/config"
	"github.com/dhcgn/imapfetch/filter"
	"github.com/dhcgn/imapfetch/progress"
	"github.com/dhcgn/imapfetch/runner"
	"github.com/dhcgn/imapfetch/stats"
)

func newBackupCommand() *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup HOST",
		Short: "Append new messages of every mailbox to its local mbox file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return session(cmd, args, func(cfg config.Config, logger *slog.Logger, opts runner.Options, connect runner.Connector) error {
				return backup(cmd, cfg, logger, opts, connect)
			})
		},
	}
	config.RegisterConnectionFlags(backupCmd)
	config.RegisterBackupFlags(backupCmd)
	return backupCmd
}

func backup(cmd *cobra.Command, cfg config.Config, logger *slog.Logger, opts runner.Options, connect runner.Connector) error {
	dir := cfg.Path
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if cfg.Compress {
		logger.Warn("compression is not supported, archives are written uncompressed")
	}

	f, err := filter.New(filter.Options{Include: cfg.IncludeMailbox, Exclude: cfg.ExcludeMailbox})
	if err != nil {
		return fmt.Errorf("create filter: %w", err)
	}

	opts.Dir = dir
	opts.Mailboxes = cfg.Mailboxes
	opts.Filter = f
	opts.Failure = runner.FailurePolicy{ContinueOnError: !cfg.FailFast}

	reporter := stats.NewReporter(logger)
	bar := progress.New(!cfg.NoProgress && cfg.LogLevel == "info")
	defer bar.Stop()

	r, err := runner.New(opts, connect, logger, stats.Multi(reporter, bar))
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}

	report, runErr := r.Run(cmd.Context())
	bar.Stop()
	summary := reporter.Finish()

	out := cmd.OutOrStdout()
	for _, mb := range report.Mailboxes {
		if mb.Err != nil {
			fmt.Fprintf(out, "%s: failed: %v\n", mb.Mailbox, mb.Err)
			continue
		}
		fmt.Fprintf(out, "%s: %d messages, %d already archived, %d appended -> %s (%s)\n",
			mb.Mailbox, mb.Messages, mb.Known, mb.Appended, mb.Path, humanize.Bytes(uint64(max(mb.Bytes, 0))))
	}
	if !cfg.NoProgress {
		progress.PrintSummary(summary, report.Bytes())
	}
	return runErr
}
