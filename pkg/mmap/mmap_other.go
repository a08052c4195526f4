//go:build !unix

package mmap

import (
	"io"
	"os"
)

// Without mmap the file is read into memory once.
func mapFile(f *os.File, size int64) ([]byte, bool, error) {
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, false, err
	}
	return data, false, nil
}

func unmapFile([]byte) error { return nil }

func adviseSequential([]byte) error { return nil }
