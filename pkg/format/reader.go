package format

import (
	"encoding/binary"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cespare/xxhash/v2"

	"github.com/ajitpratap0/fls/pkg/columnar"
	"github.com/ajitpratap0/fls/pkg/compression"
	"github.com/ajitpratap0/fls/pkg/flserrors"
	jsonpool "github.com/ajitpratap0/fls/pkg/json"
	"github.com/ajitpratap0/fls/pkg/mmap"
	"github.com/ajitpratap0/fls/pkg/schema"
)

// ReadOptions control how an artifact is opened.
type ReadOptions struct {
	// VerifyChecksums checks every chunk against its footer checksum
	VerifyChecksums bool
	// Workers bounds parallel chunk decompression within a rowgroup
	Workers int
	// Allocator for decoded arrays; nil uses the Go allocator
	Allocator memory.Allocator
}

// File is an opened artifact. Rowgroups are decoded on demand from the
// memory-mapped body.
type File struct {
	path   string
	opts   ReadOptions
	data   *mmap.Reader
	footer *Footer
	flags  byte
	pool   *compression.CompressorPool
	as     *arrow.Schema
}

func formatErr(path, format string, args ...interface{}) error {
	return flserrors.Newf(flserrors.ErrorTypeFormat, format, args...).WithOp("open artifact", path)
}

// Open maps path and validates header, trailer, footer and chunk bounds.
// A missing file or sidecar footer is an io error; anything structurally
// wrong is a format error.
func Open(path string, opts ReadOptions) (*File, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to open artifact").WithOp("open artifact", path)
	}
	f, err := open(path, r, opts)
	if err != nil {
		r.Close()
		return nil, err
	}
	return f, nil
}

func open(path string, r *mmap.Reader, opts ReadOptions) (*File, error) {
	size := r.Size()
	if size < HeaderSize+TrailerSize {
		return nil, formatErr(path, "file of %d bytes is too small to be an artifact", size)
	}

	header, _ := r.ReadRange(0, HeaderSize)
	if string(header[:4]) != Magic {
		return nil, formatErr(path, "bad magic %q", header[:4])
	}
	if v := binary.LittleEndian.Uint16(header[4:]); v != FormatVersion {
		return nil, formatErr(path, "unsupported format version %d", v)
	}
	algo, err := compression.AlgorithmFromID(header[7])
	if err != nil {
		return nil, formatErr(path, "unknown codec id %d", header[7])
	}

	tr, _ := r.ReadRange(size-TrailerSize, TrailerSize)
	if string(tr[16:]) != Magic {
		return nil, formatErr(path, "bad trailer magic %q", tr[16:])
	}
	footerHash := binary.LittleEndian.Uint64(tr[0:])
	footerSize := int64(binary.LittleEndian.Uint32(tr[8:]))
	flags := tr[12]
	if flags != header[6] {
		return nil, formatErr(path, "header flags %#x disagree with trailer flags %#x", header[6], flags)
	}

	bodyEnd := size - TrailerSize
	var footerBytes []byte
	if flags&FlagInlineFooter != 0 {
		if footerSize > bodyEnd-HeaderSize {
			return nil, formatErr(path, "footer size %d exceeds file", footerSize)
		}
		bodyEnd -= footerSize
		footerBytes, _ = r.ReadRange(bodyEnd, footerSize)
	} else {
		sidecar := SidecarPath(path)
		footerBytes, err = os.ReadFile(sidecar) //nolint:gosec // G304: derived from the artifact path
		if err != nil {
			return nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to read footer").WithOp("open artifact", sidecar)
		}
		if int64(len(footerBytes)) != footerSize {
			return nil, formatErr(path, "footer is %d bytes, trailer expects %d", len(footerBytes), footerSize)
		}
	}
	if xxhash.Sum64(footerBytes) != footerHash {
		return nil, formatErr(path, "footer checksum mismatch")
	}

	var footer Footer
	if err := jsonpool.Unmarshal(footerBytes, &footer); err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeFormat, "failed to decode footer").WithOp("open artifact", path)
	}
	if err := validateFooter(&footer, string(algo), bodyEnd); err != nil {
		return nil, flserrors.Annotate(err, "open artifact", path)
	}

	pool, err := compression.NewCompressorPool(&compression.Config{Algorithm: algo, Level: compression.Default})
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeFormat, "unsupported codec").WithOp("open artifact", path)
	}
	if opts.Allocator == nil {
		opts.Allocator = memory.NewGoAllocator()
	}

	return &File{
		path:   path,
		opts:   opts,
		data:   r,
		footer: &footer,
		flags:  flags,
		pool:   pool,
		as:     footer.Schema.ArrowSchema(),
	}, nil
}

func validateFooter(f *Footer, codec string, bodyEnd int64) error {
	if f.FormatVersion != FormatVersion {
		return flserrors.Newf(flserrors.ErrorTypeFormat, "footer format version %d unsupported", f.FormatVersion)
	}
	if f.Codec != codec {
		return flserrors.Newf(flserrors.ErrorTypeFormat, "footer codec %q disagrees with header codec %q", f.Codec, codec)
	}
	if f.Schema == nil || f.Schema.Len() == 0 {
		return flserrors.New(flserrors.ErrorTypeFormat, "footer has no schema")
	}

	var rows int64
	for i, rg := range f.Rowgroups {
		if len(rg.Columns) != f.Schema.Len() {
			return flserrors.Newf(flserrors.ErrorTypeFormat, "rowgroup %d has %d chunks for %d columns", i, len(rg.Columns), f.Schema.Len())
		}
		for j, c := range rg.Columns {
			if c.Offset < HeaderSize || c.Size < 0 || c.Offset > bodyEnd-c.Size {
				return flserrors.Newf(flserrors.ErrorTypeFormat, "chunk %d/%d at [%d,+%d) lies outside the body", i, j, c.Offset, c.Size)
			}
			if int64(c.NumValues) != rg.Rows {
				return flserrors.Newf(flserrors.ErrorTypeFormat, "chunk %d/%d holds %d values for %d rows", i, j, c.NumValues, rg.Rows)
			}
		}
		rows += rg.Rows
	}
	if rows != f.Rows {
		return flserrors.Newf(flserrors.ErrorTypeFormat, "rowgroups hold %d rows, footer says %d", rows, f.Rows)
	}
	return nil
}

// Path returns the artifact path.
func (f *File) Path() string { return f.path }

// Footer returns the decoded footer.
func (f *File) Footer() *Footer { return f.footer }

// Schema returns the table schema.
func (f *File) Schema() *schema.Schema { return f.footer.Schema }

// NumRows returns the total number of rows.
func (f *File) NumRows() int64 { return f.footer.Rows }

// NumRowgroups returns the number of rowgroups.
func (f *File) NumRowgroups() int { return len(f.footer.Rowgroups) }

// InlineFooter reports whether the footer is stored in the artifact.
func (f *File) InlineFooter() bool { return f.flags&FlagInlineFooter != 0 }

// ReadRowgroup decodes rowgroup i. The caller releases the record.
func (f *File) ReadRowgroup(i int) (arrow.Record, error) {
	if i < 0 || i >= len(f.footer.Rowgroups) {
		return nil, flserrors.Newf(flserrors.ErrorTypeValidation, "rowgroup %d out of range", i)
	}
	rg := f.footer.Rowgroups[i]

	stored := make([][]byte, len(rg.Columns))
	for j, c := range rg.Columns {
		data, err := f.data.ReadRange(c.Offset, c.Size)
		if err != nil {
			return nil, f.chunkErr(i, j, err, "failed to read chunk")
		}
		if f.opts.VerifyChecksums && xxhash.Sum64(data) != c.Checksum {
			return nil, f.chunkErr(i, j, nil, "chunk checksum mismatch")
		}
		stored[j] = data
	}

	raw, err := f.pool.DecompressBatch(stored, f.opts.Workers)
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeFormat, "failed to decompress rowgroup").
			WithOp("decode artifact", f.path).WithDetail("rowgroup", i)
	}

	cols := make([]arrow.Array, len(rg.Columns))
	defer func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}()
	for j, c := range rg.Columns {
		arr, err := columnar.Decode(raw[j], c.Encoding, &f.footer.Schema.Columns[j], c.NumValues, f.opts.Allocator)
		if err != nil {
			return nil, f.chunkErr(i, j, err, "failed to decode chunk")
		}
		cols[j] = arr
	}
	return array.NewRecord(f.as, cols, rg.Rows), nil
}

func (f *File) chunkErr(rowgroup, column int, cause error, msg string) error {
	var e *flserrors.Error
	if cause != nil {
		e = flserrors.Wrap(cause, flserrors.ErrorTypeFormat, msg)
	} else {
		e = flserrors.New(flserrors.ErrorTypeFormat, msg)
	}
	return e.WithOp("decode artifact", f.path).
		WithDetail("rowgroup", rowgroup).
		WithDetail("column", f.footer.Schema.Columns[column].Name)
}

// Close unmaps the artifact.
func (f *File) Close() error {
	if f.data == nil {
		return nil
	}
	err := f.data.Close()
	f.data = nil
	return err
}
