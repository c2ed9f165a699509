package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dhcgn/imapfetch/config"
	"github.com/dhcgn/imapfetch/model"
	"github.com/dhcgn/imapfetch/runner"
)

func newListCommand() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list HOST",
		Short: "List remote mailboxes and the archive file each one maps to",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return session(cmd, args, func(_ config.Config, logger *slog.Logger, opts runner.Options, connect runner.Connector) error {
				r, err := runner.New(opts, connect, logger, nil)
				if err != nil {
					return fmt.Errorf("runner.New: %w", err)
				}

				mailboxes, err := r.List(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(mailboxes) > 0 {
					fmt.Fprintln(out, "Found mailboxes:")
				}
				for _, mb := range mailboxes {
					fmt.Fprintf(out, "  %s: %s\n", mb.Name, mb.Filename())
				}
				for file, names := range model.Collisions(mailboxes) {
					fmt.Fprintf(out, "warning: %v all map to %s\n", names, file)
				}
				return nil
			})
		},
	}
	config.RegisterConnectionFlags(listCmd)
	return listCmd
}
