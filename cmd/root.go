// Package cmd holds the imapfetch command tree.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dhcgn/imapfetch/config"
	"github.com/dhcgn/imapfetch/imap"
	"github.com/dhcgn/imapfetch/runner"
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "imapfetch",
		Short:         "Incrementally back up IMAP mailboxes into mbox files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterGlobalFlags(rootCmd)

	rootCmd.AddCommand(
		newListCommand(),
		newBackupCommand(),
		newInfoCommand(),
		newStatsCommand(),
	)
	return rootCmd
}

// Execute runs the command tree. An interrupt stops a backup after the
// record being written.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("imapfetch-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stderr, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stderr, opts)
	return slog.New(handler), cleanup, nil
}

// session loads the configuration and logger shared by list and backup and
// hands them to fn.
func session(cmd *cobra.Command, args []string, fn func(cfg config.Config, logger *slog.Logger, opts runner.Options, connect runner.Connector) error) error {
	cfg, err := config.LoadConfig(cmd, args)
	if err != nil {
		return err
	}

	logger, cleanup, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = cleanup()
	}()
	slog.SetDefault(logger)

	if cfg.Password == "" {
		if cfg.Password, err = promptPassword(cfg.User); err != nil {
			return err
		}
	}

	transport := imap.PlainTransport
	switch {
	case cfg.TLS:
		transport = imap.TLSTransport
	case cfg.StartTLS:
		transport = imap.StartTLSTransport
	}
	connect := imap.Connector(imap.Options{
		Host:               cfg.Host,
		Port:               cfg.Port,
		Transport:          transport,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		DialTimeout:        30 * time.Second,
	}, logger)

	opts := runner.Options{
		User:   cfg.User,
		Secret: cfg.Password,
		Retry: runner.DefaultRetryPolicy(func(context.Context, int) (string, error) {
			return promptPassword(cfg.User)
		}),
	}

	logger.Debug("starting imapfetch", "command", cmd.Name(), "host", cfg.Host, "user", cfg.User, "transport", transport)
	return fn(cfg, logger, opts, connect)
}
