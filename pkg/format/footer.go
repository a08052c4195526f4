// Package format reads and writes native fls artifacts.
//
// Layout:
//
//	header   "FLS1" | uint16 format version | uint8 flags | uint8 codec id
//	body     compressed column chunks, rowgroup by rowgroup
//	footer   JSON Footer, present only with FlagInlineFooter
//	trailer  uint64 xxhash64(footer) | uint32 footer size | uint8 flags | 3 pad | "FLS1"
//
// Integers are little endian. Without FlagInlineFooter the footer is kept in
// a sidecar file next to the artifact (see SidecarPath); the trailer still
// records its size and hash.
package format

import (
	"github.com/ajitpratap0/fls/pkg/columnar"
	"github.com/ajitpratap0/fls/pkg/schema"
)

const (
	// Magic opens and closes every artifact.
	Magic = "FLS1"
	// FormatVersion is the only layout version this package reads.
	FormatVersion uint16 = 1

	HeaderSize  = 8
	TrailerSize = 20

	// FlagInlineFooter marks an artifact whose footer precedes the trailer.
	FlagInlineFooter byte = 1 << 0

	sidecarSuffix = ".footer.json"
)

// SidecarPath returns where the out-of-band footer of path lives.
func SidecarPath(path string) string {
	return path + sidecarSuffix
}

// Footer describes the content of an artifact.
type Footer struct {
	// Version of the library that wrote the artifact
	Version       string             `json:"version"`
	FormatVersion uint16             `json:"format_version"`
	Engine        string             `json:"engine"`
	Codec         string             `json:"codec"`
	Schema        *schema.Schema     `json:"schema"`
	Rows          int64              `json:"rows"`
	Rowgroups     []RowgroupMetadata `json:"rowgroups"`
}

// RowgroupMetadata locates the chunks of one rowgroup.
type RowgroupMetadata struct {
	Rows    int64           `json:"rows"`
	Columns []ChunkMetadata `json:"columns"`
}

// ChunkMetadata locates one stored column chunk.
type ChunkMetadata struct {
	Offset    int64             `json:"offset"`
	Size      int64             `json:"size"`
	RawSize   int64             `json:"raw_size"`
	Encoding  columnar.Encoding `json:"encoding"`
	NumValues int               `json:"n_values"`
	NullCount int               `json:"null_count"`
	// Checksum is the xxhash64 of the stored (compressed) bytes
	Checksum uint64 `json:"checksum"`
}

// StoredBytes sums the compressed size of all chunks.
func (f *Footer) StoredBytes() int64 {
	var n int64
	for _, rg := range f.Rowgroups {
		for _, c := range rg.Columns {
			n += c.Size
		}
	}
	return n
}

// RawBytes sums the encoded, uncompressed size of all chunks.
func (f *Footer) RawBytes() int64 {
	var n int64
	for _, rg := range f.Rowgroups {
		for _, c := range rg.Columns {
			n += c.RawSize
		}
	}
	return n
}

// CompressionRatio is RawBytes/StoredBytes, 1 for an empty artifact.
func (f *Footer) CompressionRatio() float64 {
	stored := f.StoredBytes()
	if stored == 0 {
		return 1.0
	}
	return float64(f.RawBytes()) / float64(stored)
}
