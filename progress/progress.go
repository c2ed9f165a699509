package progress

import (
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"

	"github.com/dhcgn/imapfetch/stats"
)

// Bar draws one progress bar per mailbox. Every message advances it twice:
// once when its envelope is scanned and once when the body pass is done with
// it (appended, or known already).
type Bar struct {
	mu      sync.Mutex
	pb      *pterm.ProgressbarPrinter
	enabled bool
	mailbox string
}

// New creates a progress bar sink. It draws nothing unless enabled.
func New(enabled bool) *Bar {
	return &Bar{enabled: enabled}
}

// Ticks is the number of progress units a mailbox with n messages produces.
func Ticks(n int) int {
	return 2 * n
}

func (b *Bar) Emit(evt stats.Event) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeMailboxStarted:
		b.stop()
		b.mailbox = evt.Mailbox
		pb, err := pterm.DefaultProgressbar.
			WithTotal(Ticks(evt.Total)).
			WithTitle(evt.Mailbox).
			WithRemoveWhenDone(false).
			Start()
		if err != nil {
			return
		}
		b.pb = pb
	case stats.EventTypeMailboxSkipped:
		pterm.Info.Printf("%s: empty, skipped\n", evt.Mailbox)
	case stats.EventTypeScanned, stats.EventTypeDuplicate, stats.EventTypeAppended:
		if b.pb == nil {
			return
		}
		b.pb.Increment()
		if evt.Type == stats.EventTypeAppended {
			b.pb.UpdateTitle(b.mailbox + ": fetching")
		}
	case stats.EventTypeMailboxDone:
		b.stop()
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.Printf("%s: %v\n", evt.Mailbox, evt.Err)
		}
	}
}

// Stop finalizes the current bar, if any.
func (b *Bar) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stop()
}

func (b *Bar) stop() {
	if b.pb == nil {
		return
	}
	// messages that failed mid-way still count as done
	if b.pb.Current < b.pb.Total {
		b.pb.Current = b.pb.Total
	}
	_, _ = b.pb.Stop()
	b.pb = nil
}

// PrintSummary prints the run summary the way the bar reports it.
func PrintSummary(summary stats.Summary, archived uint64) {
	pterm.Println()
	pterm.DefaultSection.Println("Summary")
	pterm.Info.Printf("Mailboxes: %d (%d empty)\n", summary.Mailboxes, summary.Skipped)
	pterm.Info.Printf("Scanned: %d\n", summary.Scanned)
	pterm.Info.Printf("Already archived: %d\n", summary.Duplicates)
	pterm.Info.Printf("Appended: %d\n", summary.Appended)
	pterm.Info.Printf("Archive size: %s\n", humanize.Bytes(archived))
	if summary.Errors > 0 {
		pterm.Error.Printf("Errors: %d\n", summary.Errors)
		if summary.LastError != nil {
			pterm.Error.Printf("Last error: %v\n", summary.LastError)
		}
	}
}
