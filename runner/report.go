package runner

// MailboxReport describes what one run did to one mailbox.
type MailboxReport struct {
	Mailbox string
	Path    string
	// Messages is the remote message count.
	Messages int
	// Archived is the number of entries found in the archive before the run.
	Archived int
	Known    int
	Pending  int
	Appended int
	Batches  int
	// Bytes is the archive size after the run, as far as it is known.
	Bytes int64
	Err   error
}

// Failed returns the reports of mailboxes that ended with an error.
func (r Report) Failed() []MailboxReport {
	var failed []MailboxReport
	for _, mb := range r.Mailboxes {
		if mb.Err != nil {
			failed = append(failed, mb)
		}
	}
	return failed
}

type Report struct {
	Mailboxes []MailboxReport
}

func (r Report) Appended() int {
	n := 0
	for _, mb := range r.Mailboxes {
		n += mb.Appended
	}
	return n
}

func (r Report) Bytes() uint64 {
	var n uint64
	for _, mb := range r.Mailboxes {
		if mb.Bytes > 0 {
			n += uint64(mb.Bytes)
		}
	}
	return n
}
