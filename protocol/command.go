package protocol

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"time"
)

// Command is a decoded client request. The set of commands is closed: every
// implementation lives in this file and a type switch over Command in the
// dispatcher is expected to be exhaustive.
type Command interface {
	command()
}

// Ping checks liveness. With a message it is echoed back as a bulk string.
type Ping struct {
	Message    []byte
	HasMessage bool
}

// Echo returns its argument unchanged
type Echo struct {
	Message []byte
}

// Set stores Value under Key. A zero Expiry means the key never expires.
type Set struct {
	Key    string
	Value  []byte
	Expiry time.Duration
}

// Get fetches the value stored under Key
type Get struct {
	Key string
}

// ConfigGet reads one server configuration parameter
type ConfigGet struct {
	Param string
}

// Keys lists keys matching a glob pattern
type Keys struct {
	Pattern string
}

// Info reports server information. An empty Section means the default set.
type Info struct {
	Section string
}

// ReplConf carries replica configuration sent during the handshake
type ReplConf struct {
	Args [][]byte
}

// Psync asks the primary for a (full) resynchronization
type Psync struct {
	ReplicationID string
	Offset        int64
}

// Unrecognized stands for any request that is not understood: an unknown
// name, wrong arity, bad arguments or malformed framing.
type Unrecognized struct {
	Name string
}

func (Ping) command()         {}
func (Echo) command()         {}
func (Set) command()          {}
func (Get) command()          {}
func (ConfigGet) command()    {}
func (Keys) command()         {}
func (Info) command()         {}
func (ReplConf) command()     {}
func (Psync) command()        {}
func (Unrecognized) command() {}

// Name returns the canonical upper-case command name, used for logging and
// metric labels.
func Name(cmd Command) string {
	switch cmd.(type) {
	case Ping:
		return "PING"
	case Echo:
		return "ECHO"
	case Set:
		return "SET"
	case Get:
		return "GET"
	case ConfigGet:
		return "CONFIG"
	case Keys:
		return "KEYS"
	case Info:
		return "INFO"
	case ReplConf:
		return "REPLCONF"
	case Psync:
		return "PSYNC"
	default:
		return "UNKNOWN"
	}
}

// Parse maps a request, already split into arguments, onto a Command.
// The first argument is the command name and is matched case-insensitively.
func Parse(args [][]byte) Command {
	if len(args) == 0 {
		return Unrecognized{}
	}

	name := strings.ToUpper(string(args[0]))
	args = args[1:]

	switch name {
	case "PING":
		switch len(args) {
		case 0:
			return Ping{}
		case 1:
			return Ping{Message: args[0], HasMessage: true}
		}
	case "ECHO":
		if len(args) == 1 {
			return Echo{Message: args[0]}
		}
	case "SET":
		return parseSet(args)
	case "GET":
		if len(args) == 1 {
			return Get{Key: string(args[0])}
		}
	case "CONFIG":
		if len(args) == 2 && bytes.EqualFold(args[0], []byte("GET")) {
			return ConfigGet{Param: string(args[1])}
		}
	case "KEYS":
		if len(args) == 1 {
			return Keys{Pattern: string(args[0])}
		}
	case "INFO":
		switch len(args) {
		case 0:
			return Info{}
		case 1:
			return Info{Section: string(args[0])}
		}
	case "REPLCONF":
		return ReplConf{Args: args}
	case "PSYNC":
		if len(args) == 2 {
			offset, err := strconv.ParseInt(string(args[1]), 10, 64)
			if err == nil {
				return Psync{ReplicationID: string(args[0]), Offset: offset}
			}
		}
	}

	return Unrecognized{Name: name}
}

// parseSet accepts SET key value [PX milliseconds | EX seconds]
func parseSet(args [][]byte) Command {
	switch len(args) {
	case 2:
		return Set{Key: string(args[0]), Value: args[1]}
	case 4:
		n, err := strconv.ParseInt(string(args[3]), 10, 64)
		if err != nil || n <= 0 {
			break
		}

		var unit time.Duration
		switch strings.ToUpper(string(args[2])) {
		case "PX":
			unit = time.Millisecond
		case "EX":
			unit = time.Second
		default:
			return Unrecognized{Name: "SET"}
		}
		if n > math.MaxInt64/int64(unit) {
			break
		}

		return Set{Key: string(args[0]), Value: args[1], Expiry: time.Duration(n) * unit}
	}

	return Unrecognized{Name: "SET"}
}
