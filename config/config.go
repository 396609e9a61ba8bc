// Package config holds the server's startup configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is the port used when none is configured
const DefaultPort = 6379

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// ReplicaOf names the primary this server replicates from
type ReplicaOf struct {
	Host string
	Port int
}

// Addr returns host:port for dialing
func (r ReplicaOf) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// ParseReplicaOf parses the "<host> <port>" form used by --replicaof
func ParseReplicaOf(s string) (*ReplicaOf, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return nil, fmt.Errorf("%w: replicaof must be \"<host> <port>\", got %q", ErrInvalid, s)
	}

	port, err := strconv.Atoi(fields[1])
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: replicaof port %q", ErrInvalid, fields[1])
	}

	return &ReplicaOf{Host: fields[0], Port: port}, nil
}

// Config is fixed once the server starts
type Config struct {
	// Snapshot location; either may be empty
	Dir        string
	DBFilename string

	// Listener
	BindHost string
	Port     int

	// Replication; nil means this server is a primary
	ReplicaOf *ReplicaOf

	// IdleTimeout closes connections that send nothing for this long; zero
	// disables it
	IdleTimeout time.Duration

	// ConnectTimeout bounds the dial to the primary
	ConnectTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// MetricsAddr enables the HTTP metrics endpoint when set
	MetricsAddr string
}

// Default returns the configuration used when nothing is specified
func Default() Config {
	return Config{
		BindHost:       "0.0.0.0",
		Port:           DefaultPort,
		ConnectTimeout: 5 * time.Second,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// IsReplica reports whether the server was started with a primary
func (c *Config) IsReplica() bool {
	return c.ReplicaOf != nil
}

// ListenAddr returns the address the listener binds to
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(c.Port))
}

// SnapshotPath returns dir/dbfilename, or "" when either part is unset
func (c *Config) SnapshotPath() string {
	if c.Dir == "" || c.DBFilename == "" {
		return ""
	}
	return filepath.Join(c.Dir, c.DBFilename)
}

// Param returns a parameter readable through CONFIG GET. ok is false for
// parameters the server does not expose; set is false when the parameter
// exists but has no value.
func (c *Config) Param(name string) (value string, set, ok bool) {
	switch strings.ToLower(name) {
	case "dir":
		return c.Dir, c.Dir != "", true
	case "dbfilename":
		return c.DBFilename, c.DBFilename != "", true
	default:
		return "", false, false
	}
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	if c.ReplicaOf != nil {
		if c.ReplicaOf.Host == "" {
			return fmt.Errorf("%w: replicaof host is empty", ErrInvalid)
		}
		if c.ReplicaOf.Port <= 0 || c.ReplicaOf.Port > 65535 {
			return fmt.Errorf("%w: replicaof port %d out of range", ErrInvalid, c.ReplicaOf.Port)
		}
	}
	if c.IdleTimeout < 0 || c.ConnectTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalid)
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(strings.ToUpper(title) + "\n")
	}
	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-18s: %s\n", name, value))
	}
	orUnset := func(s string) string {
		if s == "" {
			return "(unset)"
		}
		return s
	}

	addSection("Server")
	addField("Listen", c.ListenAddr())
	addField("Idle Timeout", durationOrOff(c.IdleTimeout))

	addSection("Snapshot")
	addField("Dir", orUnset(c.Dir))
	addField("DB Filename", orUnset(c.DBFilename))

	addSection("Replication")
	if c.ReplicaOf != nil {
		addField("Role", "replica")
		addField("Primary", c.ReplicaOf.Addr())
		addField("Connect Timeout", durationOrOff(c.ConnectTimeout))
	} else {
		addField("Role", "primary")
	}

	addSection("Logging")
	addField("Level", c.LogLevel)
	addField("Format", c.LogFormat)

	addSection("Metrics")
	addField("Endpoint", orUnset(c.MetricsAddr))

	return sb.String()
}

func durationOrOff(d time.Duration) string {
	if d <= 0 {
		return "off"
	}
	return d.String()
}
