// Package ingest loads an input directory (a schema.json plus one CSV or
// JSON-lines data file) into an in-memory table.
package ingest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ajitpratap0/fls/pkg/flserrors"
	"github.com/ajitpratap0/fls/pkg/schema"
)

// Format of the data file.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// Source is a discovered input directory.
type Source struct {
	Dir        string
	SchemaPath string
	DataPath   string
	Format     Format
}

// Discover finds the schema and the data file in dir. Entries are matched by
// base name: a name containing "schema.json" is the schema; otherwise the
// first name containing "jsonl" is JSON-lines data, or failing that the
// first containing "csv" is CSV data.
func Discover(dir string) (*Source, error) {
	const op = "ingest"

	st, err := os.Stat(dir)
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "input directory not accessible").WithOp(op, dir)
	}
	if !st.IsDir() {
		return nil, flserrors.New(flserrors.ErrorTypeIO, "input is not a directory").WithOp(op, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, flserrors.Wrap(err, flserrors.ErrorTypeIO, "failed to list input directory").WithOp(op, dir)
	}

	src := &Source{Dir: dir}
	var csvPath, jsonlPath string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		full := filepath.Join(dir, name)
		switch {
		case strings.Contains(name, schema.FileName):
			if src.SchemaPath == "" {
				src.SchemaPath = full
			}
		case strings.Contains(name, "jsonl"):
			if jsonlPath == "" {
				jsonlPath = full
			}
		case strings.Contains(name, "csv"):
			if csvPath == "" {
				csvPath = full
			}
		}
	}

	if src.SchemaPath == "" {
		return nil, flserrors.New(flserrors.ErrorTypeIO, "no "+schema.FileName+" in input directory").WithOp(op, dir)
	}
	switch {
	case jsonlPath != "":
		src.DataPath, src.Format = jsonlPath, FormatJSONL
	case csvPath != "":
		src.DataPath, src.Format = csvPath, FormatCSV
	default:
		return nil, flserrors.New(flserrors.ErrorTypeIO, "no csv or jsonl data file in input directory").WithOp(op, dir)
	}
	return src, nil
}
