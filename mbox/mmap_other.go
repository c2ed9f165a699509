//go:build !unix

package mbox

import (
	"io"
	"os"
)

func mapFile(file *os.File, size int) ([]byte, func([]byte) error, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(file, data); err != nil {
		return nil, nil, err
	}
	return data, func([]byte) error { return nil }, nil
}
