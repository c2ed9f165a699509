// Package state builds the set of Message-IDs already present in a local
// archive. The set is rebuilt from the archive on every run and never stored
// anywhere else.
package state

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dhcgn/imapfetch/mbox"
	"github.com/dhcgn/imapfetch/model"
)

var messageIDPrefix = []byte("message-id:")

// SeenSet holds Message-IDs exactly as they appear in the archive headers.
type SeenSet struct {
	ids map[string]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{ids: make(map[string]struct{})}
}

func (s *SeenSet) Add(id []byte) {
	if len(id) == 0 {
		return
	}
	s.ids[string(id)] = struct{}{}
}

// Has reports whether id is known. The empty id never matches.
func (s *SeenSet) Has(id string) bool {
	if id == "" || s == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

func (s *SeenSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// Result is the outcome of indexing one archive.
type Result struct {
	Seen    *SeenSet
	Entries int
	// Skipped counts entries with a malformed Message-ID header.
	Skipped int
	Bytes   int
}

// Index scans the archive at path. A missing file is an empty archive.
// The file is unmapped before Index returns.
func Index(path string, logger *slog.Logger) (Result, error) {
	archive, err := mbox.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Result{Seen: NewSeenSet()}, nil
	}
	if err != nil {
		return Result{}, err
	}

	res := Scan(archive.Bytes(), logger)
	res.Bytes = archive.Len()

	if err := archive.Close(); err != nil {
		return Result{}, err
	}
	if logger != nil {
		logger.Debug("archive indexed", "path", path, "entries", res.Entries, "messageIDs", res.Seen.Len(), "skipped", res.Skipped)
	}
	return res, nil
}

// Scan indexes an in-memory archive.
func Scan(buf []byte, logger *slog.Logger) Result {
	res := Result{Seen: NewSeenSet()}
	for i, entry := range mbox.Entries(buf) {
		res.Entries++
		id, err := MessageID(entry)
		if err != nil {
			res.Skipped++
			if logger != nil {
				logger.Debug("skipping archive entry", "entry", i, "err", err)
			}
			continue
		}
		res.Seen.Add(id)
	}
	return res
}

// MessageID returns the value of the first Message-ID header in the header
// block of entry, or nil when there is none. The header name is matched
// case-insensitively; the value is returned untouched apart from surrounding
// whitespace, so angle brackets are kept.
func MessageID(entry []byte) ([]byte, error) {
	rest := entry
	for len(rest) > 0 {
		line, next := cutLine(rest)
		if len(line) == 0 {
			// end of headers
			return nil, nil
		}
		if hasPrefixFold(line, messageIDPrefix) {
			value := bytes.TrimSpace(line[len(messageIDPrefix):])
			if len(value) == 0 {
				// folded onto the continuation line
				if cont, _ := cutLine(next); len(cont) > 0 && (cont[0] == ' ' || cont[0] == '\t') {
					value = bytes.TrimSpace(cont)
				}
			}
			if len(value) == 0 {
				return nil, fmt.Errorf("%w: empty Message-ID header", model.ErrFormat)
			}
			return value, nil
		}
		rest = next
	}
	return nil, nil
}

// cutLine splits buf after the first LF. The returned line carries neither
// the LF nor a preceding CR.
func cutLine(buf []byte) (line, rest []byte) {
	line, rest, found := bytes.Cut(buf, []byte{'\n'})
	if !found {
		rest = nil
	}
	return bytes.TrimSuffix(line, []byte{'\r'}), rest
}

func hasPrefixFold(line, prefix []byte) bool {
	if len(line) < len(prefix) {
		return false
	}
	return bytes.EqualFold(line[:len(prefix)], prefix)
}
