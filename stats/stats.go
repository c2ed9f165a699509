package stats

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type Stage string

const (
	// StageScan is the envelope pass that decides what to fetch.
	StageScan Stage = "scan"
	// StageFetch is the body pass that appends to the archive.
	StageFetch Stage = "fetch"
)

type EventType string

const (
	EventTypeMailboxStarted EventType = "mailbox_started"
	EventTypeMailboxSkipped EventType = "mailbox_skipped"
	EventTypeMailboxDone    EventType = "mailbox_done"
	EventTypeScanned        EventType = "scanned"
	EventTypeDuplicate      EventType = "duplicate"
	EventTypePending        EventType = "pending"
	EventTypeAppended       EventType = "appended"
	EventTypeError          EventType = "error"
)

type Event struct {
	Mailbox   string
	Stage     Stage
	Type      EventType
	UID       uint32
	MessageID string
	// Total is the mailbox message count on mailbox_started.
	Total int
	Err   error
}

// Sink receives events in the order the engine produces them.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(evt Event) { f(evt) }

// Multi fans events out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	var active []Sink
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return SinkFunc(func(evt Event) {
		for _, s := range active {
			s.Emit(evt)
		}
	})
}

type Summary struct {
	Mailboxes  int
	Skipped    int
	Scanned    int
	Duplicates int
	Pending    int
	Appended   int
	Errors     int
	LastError  error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"mailboxes", s.Mailboxes,
		"emptyMailboxes", s.Skipped,
		"scanned", s.Scanned,
		"duplicates", s.Duplicates,
		"pending", s.Pending,
		"appended", s.Appended,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Emit(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeMailboxStarted:
		c.summary.Mailboxes++
	case EventTypeMailboxSkipped:
		c.summary.Mailboxes++
		c.summary.Skipped++
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeDuplicate:
		c.summary.Duplicates++
	case EventTypePending:
		c.summary.Pending++
	case EventTypeAppended:
		c.summary.Appended++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

// Reporter logs the collected summary when the run is over.
type Reporter struct {
	*Collector
	logger  *slog.Logger
	started time.Time
}

func NewReporter(logger *slog.Logger) *Reporter {
	return &Reporter{
		Collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
}

func (r *Reporter) Finish() Summary {
	summary := r.Snapshot()
	if r.logger != nil {
		r.logger.Info("stats summary", append(summary.LogAttrs(), "duration", time.Since(r.started))...)
	}
	return summary
}

// PrettyPrintTop writes the top N most frequent items in a map to w.
func PrettyPrintTop(w io.Writer, m map[string]int, limit int) {
	for i, p := range Top(m, limit) {
		fmt.Fprintf(w, "%d. %s (%d)\n", i+1, p.Key, p.Value)
	}
}

type Pair struct {
	Key   string
	Value int
}

// Top returns up to limit entries of m ordered by descending count, ties by key.
func Top(m map[string]int, limit int) []Pair {
	pairs := make([]Pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, Pair{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})

	if limit >= 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs
}
