// Package fls converts row-oriented tabular input into compressed columnar
// artifacts and back, through a staged session that enforces the order of
// its operations.
//
// # Architecture
//
// A session (pkg/fls) is used through a single live handle. Each stage
// returns the next handle and retires the previous one:
//
//	Created -> Configured -> Ingested -> Emitted
//
// and any live handle can open an artifact, which yields a reader:
//
//	Opened -> Decoded
//
// The encoding work is delegated to a storage engine (pkg/engine). Four are
// registered: the native fls format, Parquet, Arrow IPC and Avro. All of
// them share ingestion of schema.json plus CSV or JSONL input (pkg/ingest)
// and materialization back to delimited text (pkg/materialize).
//
// # Quick Start
//
//	eng, _ := registry.Create(config.DefaultEngineConfig())
//	conn := fls.Connect(eng)
//	defer conn.Close()
//
//	conn, _ = conn.Ingest("input/")
//	conn, _ = conn.Emit("out.fls")
//	r, _ := conn.Open("out.fls")
//	r, _ = r.ToCSV("out.csv")
//
// # Key Packages
//
//	pkg/fls          - Session and table reader state machines
//	pkg/engine       - Storage engine interface, registry and engines
//	pkg/format       - Native artifact layout (header, chunks, footer)
//	pkg/columnar     - Column chunk encodings
//	pkg/compression  - Chunk codecs
//	pkg/ingest       - Input directory discovery and CSV / JSONL parsing
//	pkg/materialize  - Delimited text output
//	pkg/flserrors    - Error kinds: io, schema, format, state
//	pkg/logger       - zap logging
//	pkg/metrics      - Prometheus metrics
//	pkg/observability - OpenTelemetry stage spans
//
// The fls command (cmd/fls) exposes convert, decode, roundtrip, inspect and
// bench on top of these packages.
package fls
