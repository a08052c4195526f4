// Package mmap provides read-only memory-mapped access to artifact files.
package mmap

import (
	"fmt"
	"os"
	"sync"
)

// Reader maps a whole file read-only. Slices returned by Bytes and
// ReadRange alias the mapping and are invalid after Close.
type Reader struct {
	file     *os.File
	data     []byte
	mapped   bool
	fileSize int64
	pageSize int

	bytesRead int64

	mu sync.RWMutex
}

// Open maps filename into memory. An empty file yields a reader with no
// data.
func Open(filename string) (*Reader, error) {
	file, err := os.Open(filename) //nolint:gosec // G304: artifact path chosen by the caller
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if stat.IsDir() {
		file.Close()
		return nil, &os.PathError{Op: "mmap", Path: filename, Err: fmt.Errorf("is a directory")}
	}

	r := &Reader{
		file:     file,
		fileSize: stat.Size(),
		pageSize: os.Getpagesize(),
	}
	if r.fileSize == 0 {
		return r, nil
	}

	data, mapped, err := mapFile(file, r.fileSize)
	if err != nil {
		file.Close()
		return nil, &os.PathError{Op: "mmap", Path: filename, Err: err}
	}
	r.data = data
	r.mapped = mapped

	// Chunks are read front to back.
	_ = adviseSequential(r.data)

	return r, nil
}

// Size returns the file size in bytes.
func (r *Reader) Size() int64 { return r.fileSize }

// Bytes returns the entire mapping.
func (r *Reader) Bytes() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data
}

// ReadRange returns length bytes starting at offset. Unlike a plain slice
// expression, a range that does not fit inside the file is an error.
func (r *Reader) ReadRange(offset, length int64) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.data == nil && r.fileSize > 0 {
		return nil, fmt.Errorf("reader is closed")
	}
	if offset < 0 || length < 0 || offset > r.fileSize || length > r.fileSize-offset {
		return nil, fmt.Errorf("range [%d, %d+%d) outside file of %d bytes", offset, offset, length, r.fileSize)
	}

	r.bytesRead += length
	return r.data[offset : offset+length], nil
}

// BytesRead reports the total length of ranges handed out.
func (r *Reader) BytesRead() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bytesRead
}

// Close unmaps the file and closes it
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error

	if r.data != nil {
		if r.mapped {
			err = unmapFile(r.data)
		}
		r.data = nil
	}

	if r.file != nil {
		if closeErr := r.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		r.file = nil
	}

	return err
}
