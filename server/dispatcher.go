package server

import (
	"strconv"
	"strings"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
	"github.com/raniellyferreira/redis-inmemory-server/replication"
	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

// Params exposes read-only configuration to CONFIG GET
type Params interface {
	Param(name string) (value string, set, ok bool)
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithLinkState reports the state of the link to the primary in INFO
func WithLinkState(state func() replication.State) DispatcherOption {
	return func(d *Dispatcher) {
		d.linkState = state
	}
}

// Dispatcher executes commands against the keyspace. It holds no
// per-connection state and is shared by every connection.
type Dispatcher struct {
	store     storage.Storage
	params    Params
	repl      replication.Info
	linkState func() replication.State
}

// NewDispatcher creates a dispatcher over store. params answers CONFIG GET
// and repl is the replication identity reported by INFO and PSYNC.
func NewDispatcher(store storage.Storage, params Params, repl replication.Info, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:  store,
		params: params,
		repl:   repl,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Replication returns the replication identity
func (d *Dispatcher) Replication() replication.Info {
	return d.repl
}

// Dispatch executes one command and returns its reply
func (d *Dispatcher) Dispatch(cmd protocol.Command) protocol.Response {
	switch c := cmd.(type) {
	case protocol.Ping:
		if c.HasMessage {
			return protocol.Bulk(c.Message)
		}
		return protocol.Pong
	case protocol.Echo:
		return protocol.Bulk(c.Message)
	case protocol.Set:
		return d.set(c)
	case protocol.Get:
		value, ok := d.store.Get(c.Key)
		if !ok {
			return protocol.NullBulk{}
		}
		return protocol.Bulk(value)
	case protocol.ConfigGet:
		return d.configGet(c.Param)
	case protocol.Keys:
		return protocol.StringArray(d.store.Keys(c.Pattern)...)
	case protocol.Info:
		return protocol.BulkString(d.info(c.Section))
	case protocol.ReplConf:
		return protocol.OK
	case protocol.Psync:
		return protocol.SimpleString("FULLRESYNC " + d.repl.ID + " " + strconv.FormatInt(d.repl.Offset, 10))
	default:
		return protocol.UnknownCommand
	}
}

func (d *Dispatcher) set(c protocol.Set) protocol.Response {
	if err := d.store.SetWithTTL(c.Key, c.Value, c.Expiry); err != nil {
		return protocol.Errorf("%v", err)
	}
	return protocol.OK
}

func (d *Dispatcher) configGet(param string) protocol.Response {
	name := strings.ToLower(param)

	value, set, ok := d.params.Param(name)
	if !ok {
		return protocol.Errorf("unknown parameter '%s'", param)
	}
	if !set {
		return protocol.Errorf("%s not configured", name)
	}
	return protocol.StringArray(name, value)
}

// info renders the replication section. Other sections are empty.
func (d *Dispatcher) info(section string) string {
	switch strings.ToLower(section) {
	case "", "replication", "all", "default", "everything":
	default:
		return ""
	}

	var sb strings.Builder
	sb.WriteString("# Replication\r\n")
	sb.WriteString("role:" + string(d.repl.Role) + "\r\n")

	if d.repl.IsReplica() {
		sb.WriteString("master_host:" + d.repl.PrimaryHost + "\r\n")
		sb.WriteString("master_port:" + strconv.Itoa(d.repl.PrimaryPort) + "\r\n")
		if d.linkState != nil {
			status := "down"
			if d.linkState() == replication.StateEstablished {
				status = "up"
			}
			sb.WriteString("master_link_status:" + status + "\r\n")
		}
		return sb.String()
	}

	sb.WriteString("master_replid:" + d.repl.ID + "\r\n")
	sb.WriteString("master_repl_offset:" + strconv.FormatInt(d.repl.Offset, 10) + "\r\n")
	return sb.String()
}
