// Package runner synchronizes remote mailboxes into local mbox archives.
// A run authenticates once, then processes mailboxes strictly one after
// another: index the local archive, scan remote envelopes in batches, and
// append every message the archive does not hold yet.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"

	"github.com/dhcgn/imapfetch/filter"
	"github.com/dhcgn/imapfetch/mbox"
	"github.com/dhcgn/imapfetch/model"
	"github.com/dhcgn/imapfetch/state"
	"github.com/dhcgn/imapfetch/stats"
)

// DefaultBatchSize is the number of envelopes requested per fetch.
const DefaultBatchSize = 100

// Client is the message-access collaborator. Implementations own the wire
// protocol, transport security and timeouts.
type Client interface {
	// Login authenticates the session. A refused login must wrap
	// model.ErrCredentialsRejected and leave the session usable for
	// another attempt.
	Login(user, secret string) error
	List(ref, pattern string) ([]model.Mailbox, error)
	// Examine opens a mailbox read-only.
	Examine(mailbox string) (model.MailboxStatus, error)
	// FetchEnvelopes returns the envelopes of sequence numbers start..end
	// inclusive in the examined mailbox.
	FetchEnvelopes(start, end uint32) ([]model.Envelope, error)
	// FetchBody returns the raw message with the given UID.
	FetchBody(uid uint32) (model.MessageRecord, error)
	Logout() error
	Close() error
}

// Connector opens a new, unauthenticated session.
type Connector func(ctx context.Context) (Client, error)

// FailurePolicy decides what happens to the remaining mailboxes once one
// fails.
type FailurePolicy struct {
	ContinueOnError bool
}

type Options struct {
	User   string
	Secret string
	// Dir receives the archive files.
	Dir string
	// Mailboxes restricts the run to these names; empty means all listed
	// mailboxes that pass Filter.
	Mailboxes []string
	Filter    *filter.Filter
	Retry     RetryPolicy
	Failure   FailurePolicy
	BatchSize int
}

type Runner struct {
	opts    Options
	connect Connector
	logger  *slog.Logger
	sink    stats.Sink
	state   State
}

func New(opts Options, connect Connector, logger *slog.Logger, sink stats.Sink) (*Runner, error) {
	if connect == nil {
		return nil, fmt.Errorf("connector must not be nil")
	}
	if opts.User == "" {
		return nil, fmt.Errorf("user is empty")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if sink == nil {
		sink = stats.SinkFunc(func(stats.Event) {})
	}
	return &Runner{
		opts:    opts,
		connect: connect,
		logger:  logger,
		sink:    sink,
	}, nil
}

// State returns the engine's current state.
func (r *Runner) State() State {
	return r.state
}

func (r *Runner) setState(s State) {
	if r.state == s {
		return
	}
	r.logger.Debug("state change", "from", r.state, "to", s)
	r.state = s
}

// List returns the mailboxes a backup would consider.
func (r *Runner) List(ctx context.Context) (mailboxes []model.Mailbox, err error) {
	client, err := r.authenticate(ctx)
	if err != nil {
		r.setState(Failed)
		return nil, err
	}
	defer func() {
		err = r.logout(client, err)
	}()

	delim, err := r.delimiter(client)
	if err != nil {
		return nil, err
	}
	mailboxes, err = r.mailboxes(client, delim)
	if err != nil {
		return nil, err
	}
	r.setState(Done)
	return mailboxes, nil
}

// Run performs one backup. The returned error joins the failures of every
// mailbox that could not be synchronized; the report covers all mailboxes
// that were attempted.
func (r *Runner) Run(ctx context.Context) (report Report, err error) {
	client, err := r.authenticate(ctx)
	if err != nil {
		r.setState(Failed)
		return report, err
	}
	defer func() {
		err = r.logout(client, err)
	}()

	delim, err := r.delimiter(client)
	if err != nil {
		return report, err
	}
	mailboxes, err := r.mailboxes(client, delim)
	if err != nil {
		return report, err
	}

	var failed []error
	for _, mb := range mailboxes {
		if err := ctx.Err(); err != nil {
			failed = append(failed, err)
			break
		}

		rep, err := r.syncMailbox(ctx, client, mb)
		rep.Err = err
		report.Mailboxes = append(report.Mailboxes, rep)
		if err == nil {
			continue
		}

		r.logger.Error("mailbox failed", "mailbox", mb.Name, "err", err)
		r.sink.Emit(stats.Event{Mailbox: mb.Name, Type: stats.EventTypeError, Err: err})
		failed = append(failed, fmt.Errorf("mailbox %s: %w", mb.Name, err))
		if !r.opts.Failure.ContinueOnError {
			break
		}
	}

	if len(failed) > 0 {
		r.setState(Failed)
		return report, errors.Join(failed...)
	}
	r.setState(Done)
	return report, nil
}

// logout always runs at the end of a session. Its failure only surfaces
// when nothing went wrong before.
func (r *Runner) logout(client Client, err error) error {
	lerr := client.Logout()
	if lerr == nil {
		return err
	}
	r.logger.Warn("imap logout failed", "err", lerr)
	if err != nil {
		return err
	}
	r.setState(Failed)
	return fmt.Errorf("logout: %w", lerr)
}

func (r *Runner) delimiter(client Client) (rune, error) {
	root, err := client.List("", "")
	if err != nil {
		r.setState(Failed)
		return 0, fmt.Errorf("list root: %w", err)
	}
	if len(root) == 0 || root[0].Delimiter == 0 {
		r.setState(Failed)
		return 0, model.ErrNoDelimiter
	}
	r.logger.Debug("hierarchy delimiter", "delimiter", string(root[0].Delimiter))
	return root[0].Delimiter, nil
}

func (r *Runner) mailboxes(client Client, delim rune) ([]model.Mailbox, error) {
	var mailboxes []model.Mailbox
	if len(r.opts.Mailboxes) > 0 {
		for _, name := range r.opts.Mailboxes {
			mailboxes = append(mailboxes, model.Mailbox{Name: name, Delimiter: delim})
		}
	} else {
		listed, err := client.List("", "*")
		if err != nil {
			r.setState(Failed)
			return nil, fmt.Errorf("list mailboxes: %w", err)
		}
		for _, mb := range listed {
			if mb.NoSelect {
				r.logger.Debug("skipping non-selectable mailbox", "mailbox", mb.Name)
				continue
			}
			if !r.opts.Filter.Allows(mb.Name) {
				r.logger.Debug("mailbox filtered out", "mailbox", mb.Name)
				continue
			}
			if mb.Delimiter == 0 {
				mb.Delimiter = delim
			}
			mailboxes = append(mailboxes, mb)
		}
	}

	for file, names := range model.Collisions(mailboxes) {
		r.logger.Warn("mailboxes share one archive file", "file", file, "mailboxes", names)
	}
	r.logger.Debug("mailboxes", "count", len(mailboxes))
	return mailboxes, nil
}

func (r *Runner) syncMailbox(ctx context.Context, client Client, mb model.Mailbox) (MailboxReport, error) {
	rep := MailboxReport{
		Mailbox: mb.Name,
		Path:    filepath.Join(r.opts.Dir, mb.Filename()),
	}
	logger := r.logger.With("mailbox", mb.Name)

	r.setState(MailboxSelected)
	status, err := client.Examine(mb.Name)
	if err != nil {
		return rep, fmt.Errorf("examine: %w", err)
	}
	rep.Messages = int(status.Messages)
	logger.Debug("mailbox examined", "messages", status.Messages, "uidValidity", status.UIDValidity)

	if status.Messages == 0 {
		r.sink.Emit(stats.Event{Mailbox: mb.Name, Type: stats.EventTypeMailboxSkipped})
		logger.Info("mailbox empty, skipped")
		return rep, nil
	}

	r.setState(Syncing)
	r.sink.Emit(stats.Event{Mailbox: mb.Name, Type: stats.EventTypeMailboxStarted, Total: rep.Messages})
	defer r.sink.Emit(stats.Event{Mailbox: mb.Name, Type: stats.EventTypeMailboxDone})

	seen, err := r.index(rep.Path, logger, &rep)
	if err != nil {
		return rep, err
	}

	pending, err := r.scan(client, mb.Name, status.Messages, seen, &rep)
	if err != nil {
		return rep, err
	}

	if err := r.fetch(ctx, client, mb.Name, rep.Path, pending, &rep); err != nil {
		return rep, err
	}

	logger.Info("mailbox synchronized", "messages", rep.Messages, "known", rep.Known, "appended", rep.Appended, "archive", rep.Path)
	return rep, nil
}

// index builds the SeenSet. The archive mapping is released before index
// returns, so appending afterwards never races the scan.
func (r *Runner) index(path string, logger *slog.Logger, rep *MailboxReport) (*state.SeenSet, error) {
	exists, err := mbox.Exists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return state.NewSeenSet(), nil
	}

	res, err := state.Index(path, logger)
	if err != nil {
		return nil, fmt.Errorf("index archive: %w", err)
	}
	rep.Archived = res.Entries
	rep.Bytes = int64(res.Bytes)
	return res.Seen, nil
}

// scan pages through the mailbox envelopes and returns the UIDs to fetch in
// ascending order.
func (r *Runner) scan(client Client, mailbox string, count uint32, seen *state.SeenSet, rep *MailboxReport) ([]uint32, error) {
	pending := make(map[uint32]struct{})
	batch := uint64(r.opts.BatchSize)

	for start := uint64(1); start <= uint64(count); start += batch {
		end := min(start+batch-1, uint64(count))
		envelopes, err := client.FetchEnvelopes(uint32(start), uint32(end))
		if err != nil {
			return nil, fmt.Errorf("fetch envelopes %d:%d: %w", start, end, err)
		}
		rep.Batches++

		for _, env := range envelopes {
			r.sink.Emit(stats.Event{Mailbox: mailbox, Stage: stats.StageScan, Type: stats.EventTypeScanned, UID: env.UID, MessageID: env.MessageID})
			if seen.Has(env.MessageID) {
				rep.Known++
				r.sink.Emit(stats.Event{Mailbox: mailbox, Stage: stats.StageScan, Type: stats.EventTypeDuplicate, UID: env.UID, MessageID: env.MessageID})
				continue
			}
			if _, dup := pending[env.UID]; dup {
				continue
			}
			pending[env.UID] = struct{}{}
			r.sink.Emit(stats.Event{Mailbox: mailbox, Stage: stats.StageScan, Type: stats.EventTypePending, UID: env.UID, MessageID: env.MessageID})
		}
	}

	rep.Pending = len(pending)
	return slices.Sorted(maps.Keys(pending)), nil
}

// fetch downloads and appends every pending message. The archive is only
// opened once there is something to write.
func (r *Runner) fetch(ctx context.Context, client Client, mailbox, path string, uids []uint32, rep *MailboxReport) (err error) {
	var w *mbox.Writer
	defer func() {
		if w == nil {
			return
		}
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := client.FetchBody(uid)
		if err != nil {
			return fmt.Errorf("fetch body uid %d: %w", uid, err)
		}

		if w == nil {
			if w, err = mbox.OpenWriter(path); err != nil {
				return err
			}
		}
		if err := w.Append(rec.Body); err != nil {
			return err
		}

		rep.Appended++
		rep.Bytes += int64(mbox.RecordLen(rec.Body))
		r.sink.Emit(stats.Event{Mailbox: mailbox, Stage: stats.StageFetch, Type: stats.EventTypeAppended, UID: uid, MessageID: rec.MessageID})
	}
	return nil
}
