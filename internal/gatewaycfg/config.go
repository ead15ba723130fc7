// Package gatewaycfg holds the compile-time constants and the one
// runtime-variable setting (the listen port) the gateway needs. Timeouts,
// window size, alert thresholds, the DB/table names, and the clear-on-start
// flag are fixed at build time; only the port comes from the command line.
package gatewaycfg

import "time"

const (
	// IdleTimeout is the global silence timeout the connection manager
	// waits on, and the per-entry idle-eviction threshold.
	IdleTimeout = 10 * time.Second

	// WindowSize is the running-average window length.
	WindowSize = 5

	// LowThreshold: emit a LOW alert when the window mean falls below
	// this value.
	LowThreshold = 20.0

	// HighThreshold: emit a HIGH alert when the window mean exceeds this
	// value.
	HighThreshold = 25.0

	// DataManagerPollInterval is the data manager's sleep granularity
	// when the buffer tail is not yet unprocessed.
	DataManagerPollInterval = 50 * time.Millisecond

	// DrainPollInterval is how often the orchestrator checks whether the
	// buffer has drained during shutdown.
	DrainPollInterval = 50 * time.Millisecond

	// StorageRetries is the number of insert attempts before the storage
	// manager treats the connection as lost.
	StorageRetries = 3

	// DBDriverName is the database/sql driver used for the durable sink.
	DBDriverName = "sqlite3"

	// DBPath is the sqlite3 database file the storage manager opens.
	DBPath = "sensorgw.db"

	// TableName is the durable sink's table.
	TableName = "SensorData"

	// ClearUp, when true, drops and recreates TableName at storage-manager
	// startup instead of create-if-not-exists.
	ClearUp = true
)

// Config is the gateway's runtime configuration: everything that isn't a
// compile-time constant above.
type Config struct {
	// Port is the TCP port the connection manager listens on.
	Port int
}
