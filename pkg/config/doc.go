// Package config holds the configuration of fls: which storage engine to
// use and how it lays out artifacts, how to log, and what to export for
// tracing and metrics.
//
// Files are YAML with ${VAR_NAME} environment substitution:
//
//	engine:
//	  name: fls
//	  compression: zstd
//	  vectors_per_rowgroup: 64
//	  inline_footer: true
//	logging:
//	  level: ${FLS_LOG_LEVEL}
//
// Load them with LoadFile, which starts from Default and validates.
package config
