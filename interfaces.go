package redisserver

import (
	"time"
)

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

// Logger interface for custom logging implementations
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// MetricsCollector interface for metrics collection.
// *metrics.Collector implements it.
type MetricsCollector interface {
	// RecordCommandProcessed records a processed command with its duration
	RecordCommandProcessed(cmd string, duration time.Duration)

	// RecordNetworkBytes records bytes read from clients
	RecordNetworkBytes(bytes int64)

	// RecordClientConnected records an accepted connection
	RecordClientConnected()

	// RecordClientDisconnected records a closed connection
	RecordClientDisconnected()

	// RecordError records an error event
	RecordError(errorType string)

	// RecordSnapshotLoad records how many snapshot entries were loaded or
	// skipped as already expired
	RecordSnapshotLoad(loaded, expired int, duration time.Duration)

	// RecordHandshake records one replica handshake attempt
	RecordHandshake(duration time.Duration, err error)
}

// Stats is a snapshot of server activity
type Stats struct {
	Role             string
	Keys             int64
	ConnectedClients int
	TotalConnections int64
	TotalCommands    int64
	TotalErrors      int64

	// Replicas only
	LinkState string
}
