// Package native is the default fls engine. It writes the columnar artifact
// layout of package format: per-column encoded and compressed chunks with a
// JSON footer kept either inline or in a sidecar file.
package native

import (
	"io"
	"os"
	"runtime"

	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/zap"

	"github.com/ajitpratap0/fls/pkg/compression"
	"github.com/ajitpratap0/fls/pkg/config"
	"github.com/ajitpratap0/fls/pkg/engine"
	"github.com/ajitpratap0/fls/pkg/engine/registry"
	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/format"
	"github.com/ajitpratap0/fls/pkg/schema"
	"github.com/ajitpratap0/fls/pkg/table"
)

// Name of the engine in the registry.
const Name = "fls"

func init() {
	registry.Register(Name, func(cfg config.EngineConfig) (engine.Engine, error) {
		return New(cfg)
	})
}

// Engine reads and writes native artifacts.
type Engine struct {
	engine.Base
	compressor *compression.CompressorPool
	workers    int
}

// New creates a native engine. The compressor pool is shared by every
// artifact the engine writes.
func New(cfg config.EngineConfig) (*Engine, error) {
	cfg.Name = Name
	base, err := engine.NewBase(Name, cfg)
	if err != nil {
		return nil, err
	}
	cc, err := cfg.CompressionConfig()
	if err != nil {
		return nil, err
	}
	pool, err := compression.NewCompressorPool(cc)
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeConfig, "failed to create compressor")
	}
	workers := cfg.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	return &Engine{Base: base, compressor: pool, workers: workers}, nil
}

// Name returns "fls".
func (e *Engine) Name() string { return Name }

// WriteArtifact writes t to path.
func (e *Engine) WriteArtifact(t *table.Table, path string, opts engine.WriteOptions) error {
	footer, err := format.WriteFile(path, t, format.WriteOptions{
		InlineFooter: opts.InlineFooter,
		Compressor:   e.compressor,
		Workers:      e.workers,
		Version:      engine.Version,
		Engine:       Name,
	})
	if err != nil {
		return err
	}
	e.Logger.Debug("wrote artifact",
		zap.String("path", path),
		zap.Int64("rows", footer.Rows),
		zap.Int("rowgroups", len(footer.Rowgroups)),
		zap.Bool("inline_footer", opts.InlineFooter),
		zap.Float64("compression_ratio", footer.CompressionRatio()))
	return nil
}

// OpenArtifact maps and validates path.
func (e *Engine) OpenArtifact(path string) (engine.Artifact, error) {
	f, err := format.Open(path, format.ReadOptions{
		VerifyChecksums: e.Config.VerifyChecksums,
		Workers:         e.workers,
	})
	if err != nil {
		return nil, err
	}
	return &Artifact{file: f}, nil
}

// DecodeToDirectory decodes every rowgroup of a into path.
func (e *Engine) DecodeToDirectory(a engine.Artifact, path string) error {
	art, ok := a.(*Artifact)
	if !ok {
		return engine.ForeignArtifact(Name, a)
	}
	_, err := e.Materialize(path, art.Schema(), art.Rowgroups())
	return err
}

// Artifact is an opened native artifact.
type Artifact struct {
	file *format.File
}

func (a *Artifact) Path() string           { return a.file.Path() }
func (a *Artifact) Schema() *schema.Schema { return a.file.Schema() }
func (a *Artifact) NumRows() int64         { return a.file.NumRows() }

// Footer returns the decoded footer.
func (a *Artifact) Footer() *format.Footer { return a.file.Footer() }

// Describe reports the footer, including per-column encodings.
func (a *Artifact) Describe() engine.Description {
	footer := a.file.Footer()
	d := engine.Description{
		Engine:           footer.Engine,
		Version:          footer.Version,
		Path:             a.Path(),
		Rows:             footer.Rows,
		Rowgroups:        len(footer.Rowgroups),
		Codec:            footer.Codec,
		InlineFooter:     a.file.InlineFooter(),
		Columns:          engine.DescribeColumns(footer.Schema),
		StoredBytes:      footer.StoredBytes(),
		RawBytes:         footer.RawBytes(),
		CompressionRatio: footer.CompressionRatio(),
	}
	if st, err := os.Stat(a.Path()); err == nil {
		d.FileBytes = st.Size()
	}
	for i := range d.Columns {
		seen := make(map[string]bool)
		for _, rg := range footer.Rowgroups {
			enc := rg.Columns[i].Encoding.String()
			if !seen[enc] {
				seen[enc] = true
				d.Columns[i].Encodings = append(d.Columns[i].Encodings, enc)
			}
		}
	}
	return d
}

// Close unmaps the artifact.
func (a *Artifact) Close() error { return a.file.Close() }

// Rowgroups iterates over the decoded rowgroups.
func (a *Artifact) Rowgroups() *RowgroupReader {
	return &RowgroupReader{file: a.file}
}

// RowgroupReader decodes one rowgroup per Next call.
type RowgroupReader struct {
	file *format.File
	next int
}

// Next returns the next rowgroup, or io.EOF after the last one.
func (r *RowgroupReader) Next() (arrow.Record, error) {
	if r.next >= r.file.NumRowgroups() {
		return nil, io.EOF
	}
	rec, err := r.file.ReadRowgroup(r.next)
	if err != nil {
		return nil, err
	}
	r.next++
	return rec, nil
}
