package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dhcgn/imapfetch/mbox"
	"github.com/dhcgn/imapfetch/state"
)

func newInfoCommand() *cobra.Command {
	var verbose bool

	infoCmd := &cobra.Command{
		Use:   "info FILE",
		Short: "Count the entries and Message-IDs of a local archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := mbox.Open(args[0])
			if err != nil {
				return err
			}
			defer archive.Close()

			out := cmd.OutOrStdout()
			buf := archive.Bytes()
			if verbose {
				for i, entry := range mbox.Entries(buf) {
					id, err := state.MessageID(entry)
					switch {
					case err != nil:
						fmt.Fprintf(out, "%6d  %-10s  (%v)\n", i+1, humanize.Bytes(uint64(len(entry))), err)
					case id == nil:
						fmt.Fprintf(out, "%6d  %-10s  -\n", i+1, humanize.Bytes(uint64(len(entry))))
					default:
						fmt.Fprintf(out, "%6d  %-10s  %s\n", i+1, humanize.Bytes(uint64(len(entry))), id)
					}
				}
			}

			res := state.Scan(buf, slog.Default())
			fmt.Fprintf(out, "%s: %d entries, %d Message-IDs, %d malformed, %s\n",
				archive.Path(), res.Entries, res.Seen.Len(), res.Skipped, humanize.Bytes(uint64(archive.Len())))
			return nil
		},
	}
	infoCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List every entry with its size and Message-ID")
	return infoCmd
}
