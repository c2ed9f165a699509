// Package mbox reads and appends the local archive format: messages joined
// by "From " separator lines, each separator preceded by a blank line.
package mbox

import (
	"bytes"
	"iter"
)

var (
	boundaryCRLF = []byte("\r\n\r\nFrom ")
	boundaryLF   = []byte("\n\nFrom ")
	fromPrefix   = []byte("From ")
)

// Reader segments a buffer into entries without copying. Entries are
// sub-slices of the buffer and stay valid as long as the buffer does.
// A Reader only moves forward; build a new one for every pass.
type Reader struct {
	buf  []byte
	done bool
}

// NewReader returns a Reader over buf. The buffer is expected to start with a
// separator line; whatever precedes the first line terminator is skipped.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Next returns the next entry. The final entry may be empty. ok is false once
// the buffer is exhausted.
func (r *Reader) Next() (entry []byte, ok bool) {
	for !r.done {
		nl := bytes.IndexByte(r.buf, '\n')
		if nl < 0 {
			r.done = true
			return nil, false
		}
		start := nl + 1

		at, size := findBoundary(r.buf)
		if at < 0 {
			entry = r.buf[start:]
			r.buf = r.buf[len(r.buf):]
			r.done = true
			return entry, true
		}

		// the remaining buffer resumes at the "From " line
		rest := r.buf[at+size-len(fromPrefix):]
		if at < start {
			// separator line followed directly by another one
			r.buf = rest
			continue
		}
		entry = r.buf[start:at]
		r.buf = rest
		return entry, true
	}
	return nil, false
}

// findBoundary returns the offset and length of the earliest blank-line plus
// "From " boundary in buf, or -1.
func findBoundary(buf []byte) (int, int) {
	crlf := indexOf(buf, boundaryCRLF)
	lf := indexOf(buf, boundaryLF)
	switch {
	case crlf < 0 && lf < 0:
		return -1, 0
	case lf < 0 || (crlf >= 0 && crlf < lf):
		return crlf, len(boundaryCRLF)
	default:
		return lf, len(boundaryLF)
	}
}

// indexOf is a plain substring scan. A buffer shorter than the needle is
// simply "not found".
func indexOf(buf, needle []byte) int {
	if len(needle) > len(buf) {
		return -1
	}
	return bytes.Index(buf, needle)
}

// Entries iterates over all entries in buf together with their position.
func Entries(buf []byte) iter.Seq2[int, []byte] {
	return func(yield func(int, []byte) bool) {
		r := NewReader(buf)
		for i := 0; ; i++ {
			entry, ok := r.Next()
			if !ok || !yield(i, entry) {
				return
			}
		}
	}
}

// Count returns the number of entries in buf.
func Count(buf []byte) int {
	n := 0
	for range Entries(buf) {
		n++
	}
	return n
}
