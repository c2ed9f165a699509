package mbox

import (
	"errors"
	"fmt"
	"os"

	"github.com/dhcgn/imapfetch/model"
)

// Archive is a read-only view of an archive file. On unix the file is memory
// mapped, elsewhere it is read into memory.
type Archive struct {
	path  string
	data  []byte
	unmap func([]byte) error
}

// Open maps the archive at path. An empty file yields an Archive with no
// data; a missing file is reported with an error matching os.ErrNotExist.
func Open(path string) (*Archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open archive %s: %w", model.ErrIO, path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat archive %s: %w", model.ErrIO, path, err)
	}

	archive := &Archive{path: path}
	if info.Size() == 0 {
		return archive, nil
	}
	if int64(int(info.Size())) != info.Size() {
		return nil, fmt.Errorf("%w: archive %s too large to map", model.ErrIO, path)
	}

	data, unmap, err := mapFile(file, int(info.Size()))
	if err != nil {
		return nil, fmt.Errorf("%w: map archive %s: %w", model.ErrIO, path, err)
	}
	archive.data = data
	archive.unmap = unmap
	return archive, nil
}

// Path returns the file the archive was opened from.
func (a *Archive) Path() string {
	return a.path
}

// Bytes returns the archive contents. The slice is invalid after Close.
func (a *Archive) Bytes() []byte {
	return a.data
}

// Len returns the archive size in bytes.
func (a *Archive) Len() int {
	return len(a.data)
}

// Reader returns a fresh Reader over the archive.
func (a *Archive) Reader() *Reader {
	return NewReader(a.data)
}

// Close releases the mapping.
func (a *Archive) Close() error {
	data, unmap := a.data, a.unmap
	a.data, a.unmap = nil, nil
	if unmap == nil || data == nil {
		return nil
	}
	if err := unmap(data); err != nil {
		return fmt.Errorf("%w: unmap archive %s: %w", model.ErrIO, a.path, err)
	}
	return nil
}

// Exists reports whether path names a non-empty regular file.
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: stat archive %s: %w", model.ErrIO, path, err)
	}
	return info.Mode().IsRegular() && info.Size() > 0, nil
}
