package mbox

import (
	"bytes"
	"fmt"
	"os"

	"github.com/dhcgn/imapfetch/model"
)

// Separator is written in front of every appended record. The envelope
// sender is not reconstructed, so the sender field is a fixed placeholder.
const Separator = "From imapfetch\r\n"

var crlf = []byte("\r\n")

// Writer appends records to an archive file. Every record is handed to the
// kernel in one write, so an interrupted run can only lose the record being
// written, never damage an earlier one.
type Writer struct {
	path string
	file *os.File
	sync bool
	n    int
}

// OpenWriter opens path for appending, creating it when missing.
func OpenWriter(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open archive for append %s: %w", model.ErrIO, path, err)
	}
	return &Writer{path: path, file: file, sync: true}, nil
}

// Append writes one record: the separator line, the body and a single blank
// line.
func (w *Writer) Append(body []byte) error {
	if _, err := w.file.Write(Record(body)); err != nil {
		return fmt.Errorf("%w: append to %s: %w", model.ErrIO, w.path, err)
	}
	if w.sync {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("%w: sync %s: %w", model.ErrIO, w.path, err)
		}
	}
	w.n++
	return nil
}

// Appended returns the number of records written through w.
func (w *Writer) Appended() int {
	return w.n
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", model.ErrIO, w.path, err)
	}
	return nil
}

// Record returns the bytes Append writes for body.
func Record(body []byte) []byte {
	term := TerminatorFor(body)
	record := make([]byte, 0, len(Separator)+len(body)+len(term))
	record = append(record, Separator...)
	record = append(record, body...)
	return append(record, term...)
}

// RecordLen returns len(Record(body)) without building the record.
func RecordLen(body []byte) int {
	return len(Separator) + len(body) + len(TerminatorFor(body))
}

// TerminatorFor returns what has to follow body so that exactly one blank line
// separates it from the next record: one CRLF when the body already ends with
// a line terminator, two otherwise.
func TerminatorFor(body []byte) []byte {
	if endsWithCRLF(body) {
		return crlf
	}
	return []byte("\r\n\r\n")
}

func endsWithCRLF(body []byte) bool {
	if len(body) < len(crlf) {
		return false
	}
	return bytes.Equal(body[len(body)-len(crlf):], crlf)
}
