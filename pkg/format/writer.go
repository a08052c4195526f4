package format

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/ajitpratap0/fls/pkg/columnar"
	"github.com/ajitpratap0/fls/pkg/compression"
	"github.com/ajitpratap0/fls/pkg/flserrors"
	jsonpool "github.com/ajitpratap0/fls/pkg/json"
	"github.com/ajitpratap0/fls/pkg/table"
)

// WriteOptions control how an artifact is written.
type WriteOptions struct {
	InlineFooter bool
	// Compressor compresses every chunk; nil means zstd at the default level
	Compressor *compression.CompressorPool
	// Workers bounds parallel chunk compression within a rowgroup
	Workers int
	// Version and Engine are recorded in the footer
	Version string
	Engine  string
}

// countingWriter tracks the file offset of everything written.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// WriteFile writes t to path and returns the footer it recorded. Partial
// files are left behind on failure.
func WriteFile(path string, t *table.Table, opts WriteOptions) (*Footer, error) {
	pool := opts.Compressor
	if pool == nil {
		var err error
		if pool, err = compression.NewCompressorPool(compression.DefaultConfig()); err != nil {
			return nil, flserrors.Wrap(err, flserrors.ErrorTypeConfig, "failed to create compressor")
		}
	}
	codecID, err := pool.Algorithm().ID()
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeConfig, "unsupported codec")
	}

	f, err := os.Create(path) //nolint:gosec // G304: artifact path chosen by the caller
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to create artifact").WithOp("write artifact", path)
	}

	footer, footerBytes, werr := write(f, t, opts, pool, codecID)
	if cerr := f.Close(); werr == nil && cerr != nil {
		werr = flserrors.Wrap(cerr, flserrors.ErrorTypeIO, "failed to close artifact")
	}
	if werr != nil {
		return nil, flserrors.Annotate(werr, "write artifact", path)
	}

	sidecar := SidecarPath(path)
	if opts.InlineFooter {
		// a sidecar left by an earlier out-of-band write no longer describes path
		if err := os.Remove(sidecar); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to remove stale footer").WithOp("write artifact", sidecar)
		}
		return footer, nil
	}
	if err := os.WriteFile(sidecar, footerBytes, 0o644); err != nil { //nolint:gosec // G306: artifacts are shareable
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to write footer").WithOp("write artifact", sidecar)
	}
	return footer, nil
}

// write emits header, body, inline footer and trailer. It returns the footer
// bytes the trailer hashed so an out-of-band sidecar can be written as is.
func write(f *os.File, t *table.Table, opts WriteOptions, pool *compression.CompressorPool, codecID byte) (*Footer, []byte, error) {
	bw := bufio.NewWriterSize(f, 1<<20)
	cw := &countingWriter{w: bw}

	var flags byte
	if opts.InlineFooter {
		flags |= FlagInlineFooter
	}

	header := make([]byte, HeaderSize)
	copy(header, Magic)
	binary.LittleEndian.PutUint16(header[4:], FormatVersion)
	header[6] = flags
	header[7] = codecID
	if _, err := cw.Write(header); err != nil {
		return nil, nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to write header")
	}

	footer := &Footer{
		Version:       opts.Version,
		FormatVersion: FormatVersion,
		Engine:        opts.Engine,
		Codec:         string(pool.Algorithm()),
		Schema:        t.Schema(),
		Rows:          t.NumRows(),
		Rowgroups:     make([]RowgroupMetadata, 0, t.NumRowgroups()),
	}

	cols := t.Schema().Columns
	for _, rec := range t.Records() {
		chunks := make([]*columnar.Chunk, len(cols))
		raw := make([][]byte, len(cols))
		for i := range cols {
			chunk, err := columnar.Encode(rec.Column(i), cols[i].Type)
			if err != nil {
				return nil, nil, flserrors.Wrap(err, flserrors.ErrorTypeInternal, "failed to encode column "+cols[i].Name)
			}
			chunks[i] = chunk
			raw[i] = chunk.Data
		}

		stored, err := pool.CompressBatch(raw, opts.Workers)
		if err != nil {
			return nil, nil, flserrors.Wrap(err, flserrors.ErrorTypeInternal, "failed to compress rowgroup")
		}

		rg := RowgroupMetadata{Rows: rec.NumRows(), Columns: make([]ChunkMetadata, len(cols))}
		for i, data := range stored {
			rg.Columns[i] = ChunkMetadata{
				Offset:    cw.n,
				Size:      int64(len(data)),
				RawSize:   int64(len(raw[i])),
				Encoding:  chunks[i].Encoding,
				NumValues: chunks[i].NumValues,
				NullCount: chunks[i].NullCount,
				Checksum:  xxhash.Sum64(data),
			}
			if _, err := cw.Write(data); err != nil {
				return nil, nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to write chunk")
			}
		}
		footer.Rowgroups = append(footer.Rowgroups, rg)
	}

	var footerBytes []byte
	var err error
	if opts.InlineFooter {
		footerBytes, err = jsonpool.Marshal(footer)
	} else {
		footerBytes, err = jsonpool.MarshalIndent(footer, "", "  ")
	}
	if err != nil {
		return nil, nil, flserrors.Wrap(err, flserrors.ErrorTypeInternal, "failed to encode footer")
	}
	if opts.InlineFooter {
		if _, err := cw.Write(footerBytes); err != nil {
			return nil, nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to write footer")
		}
	}
	if _, err := cw.Write(trailer(footerBytes, flags)); err != nil {
		return nil, nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to write trailer")
	}
	if err := bw.Flush(); err != nil {
		return nil, nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to flush artifact")
	}
	return footer, footerBytes, nil
}

func trailer(footer []byte, flags byte) []byte {
	b := make([]byte, TrailerSize)
	binary.LittleEndian.PutUint64(b[0:], xxhash.Sum64(footer))
	binary.LittleEndian.PutUint32(b[8:], uint32(len(footer))) //nolint:gosec // G115: footers are far below 4GiB
	b[12] = flags
	copy(b[16:], Magic)
	return b
}
