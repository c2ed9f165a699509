package cmd

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	gombox "github.com/emersion/go-mbox"
	"github.com/spf13/cobra"

	"github.com/dhcgn/imapfetch/stats"
)

var headersToTrack = []string{"Delivered-To", "Subject", "From", "To"}

func newStatsCommand() *cobra.Command {
	var (
		reportDir string
		topN      int
	)

	statsCmd := &cobra.Command{
		Use:   "stats FILE",
		Short: "Analyse an mbox file and show header statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Analyzing mbox file:", args[0])

			counter, messageCount, err := countHeaders(args[0])
			if err != nil {
				return fmt.Errorf("error reading mbox file: %w", err)
			}

			fmt.Fprintf(out, "Processed %d messages\n\n", messageCount)
			for _, header := range headersToTrack {
				fmt.Fprintf(out, "Top %d %s:\n", topN, header)
				stats.PrettyPrintTop(out, counter[header], topN)
				fmt.Fprintln(out)
			}

			if err := saveCSVReports(counter, headersToTrack, reportDir, 1000); err != nil {
				return fmt.Errorf("error saving CSV reports: %w", err)
			}
			fmt.Fprintf(out, "Reports saved to directory: %s\n", reportDir)
			return nil
		},
	}

	statsCmd.Flags().StringVarP(&reportDir, "output", "o", ".", "Output directory for CSV reports")
	statsCmd.Flags().IntVarP(&topN, "top", "t", 10, "Number of top items to display in statistics")
	return statsCmd
}

// countHeaders tallies the tracked header values of every message in the
// mbox file at path. Messages whose header cannot be parsed are skipped.
func countHeaders(path string) (map[string]map[string]int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	counter := make(map[string]map[string]int, len(headersToTrack))
	for _, h := range headersToTrack {
		counter[h] = make(map[string]int)
	}

	reader := gombox.NewReader(file)
	messageCount := 0
	for {
		msgReader, err := reader.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, messageCount, err
		}

		entity, err := message.Read(msgReader)
		if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
			continue
		}

		messageCount++
		for header, value := range trackedValues(mail.Header{Header: entity.Header}) {
			if value != "" {
				counter[header][value]++
			}
		}
	}
	return counter, messageCount, nil
}

func trackedValues(h mail.Header) map[string]string {
	values := make(map[string]string, len(headersToTrack))
	for _, name := range headersToTrack {
		values[name] = h.Get(name)
	}

	if subject, err := h.Subject(); err == nil {
		values["Subject"] = subject
	}
	for _, name := range []string{"From", "To"} {
		if addrs, err := h.AddressList(name); err == nil && len(addrs) > 0 {
			list := make([]string, len(addrs))
			for i, a := range addrs {
				list[i] = a.Address
			}
			values[name] = strings.Join(list, ", ")
		}
	}
	return values
}

func saveCSVReports(counter map[string]map[string]int, headers []string, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, header := range headers {
		filePath := filepath.Join(dir, fmt.Sprintf("report_%s.csv", normalizeHeaderName(header)))
		if err := writeCSVReport(filePath, stats.Top(counter[header], limit)); err != nil {
			return err
		}
	}
	return nil
}

func writeCSVReport(path string, pairs []stats.Pair) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"Value", "Count"}); err != nil {
		return err
	}
	for _, p := range pairs {
		if err := writer.Write([]string{p.Key, strconv.Itoa(p.Value)}); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

func normalizeHeaderName(header string) string {
	name := strings.ToLower(header)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}
