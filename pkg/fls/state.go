package fls

// State is the lifecycle state of a Connection. It only moves forward.
type State int32

const (
	// Created is the state of a fresh session.
	Created State = iota
	// Configured follows Configure.
	Configured
	// Ingested follows Ingest; the session buffers a table.
	Ingested
	// Emitted follows Emit and ends the write path.
	Emitted
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Configured:
		return "configured"
	case Ingested:
		return "ingested"
	case Emitted:
		return "emitted"
	default:
		return "unknown"
	}
}

// ReaderState is the lifecycle state of a TableReader.
type ReaderState int32

const (
	// Opened is the state of a reader returned by Open.
	Opened ReaderState = iota
	// Decoded follows ToCSV. No further stage is defined.
	Decoded
)

func (s ReaderState) String() string {
	switch s {
	case Opened:
		return "opened"
	case Decoded:
		return "decoded"
	default:
		return "unknown"
	}
}
