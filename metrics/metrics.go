// Package metrics exposes server counters in Prometheus text format.
//
// Collector is backed by its own VictoriaMetrics Set so several servers in
// one process (tests, embedding) never share counters.
package metrics

import (
	"fmt"
	"io"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
)

// Collector records server activity
type Collector struct {
	set *vm.Set

	connectionsTotal  *vm.Counter
	connectionsActive *vm.Counter
	networkBytes      *vm.Counter

	keysSet     *vm.Counter
	keysDeleted *vm.Counter
	keysExpired *vm.Counter

	snapshotKeysLoaded  *vm.Counter
	snapshotKeysExpired *vm.Counter
	snapshotDuration    *vm.Histogram

	handshakeSuccess  *vm.Counter
	handshakeFailure  *vm.Counter
	handshakeDuration *vm.Histogram
}

// New creates a collector with all fixed series registered
func New() *Collector {
	s := vm.NewSet()
	return &Collector{
		set:                 s,
		connectionsTotal:    s.NewCounter("redis_connections_total"),
		connectionsActive:   s.NewCounter("redis_connections_active"),
		networkBytes:        s.NewCounter("redis_network_read_bytes_total"),
		keysSet:             s.NewCounter("redis_keys_set_total"),
		keysDeleted:         s.NewCounter("redis_keys_deleted_total"),
		keysExpired:         s.NewCounter("redis_keys_expired_total"),
		snapshotKeysLoaded:  s.NewCounter(`redis_snapshot_keys_total{result="loaded"}`),
		snapshotKeysExpired: s.NewCounter(`redis_snapshot_keys_total{result="expired"}`),
		snapshotDuration:    s.NewHistogram("redis_snapshot_load_duration_seconds"),
		handshakeSuccess:    s.NewCounter(`redis_replica_handshakes_total{result="success"}`),
		handshakeFailure:    s.NewCounter(`redis_replica_handshakes_total{result="failure"}`),
		handshakeDuration:   s.NewHistogram("redis_replica_handshake_duration_seconds"),
	}
}

// TrackKeyCount publishes the current keyspace size, sampled on every scrape
func (c *Collector) TrackKeyCount(count func() int64) {
	c.set.NewGauge("redis_keys", func() float64 {
		return float64(count())
	})
}

// RecordCommandProcessed counts a dispatched command and its latency
func (c *Collector) RecordCommandProcessed(cmd string, duration time.Duration) {
	c.set.GetOrCreateCounter(fmt.Sprintf(`redis_commands_total{command=%q}`, cmd)).Inc()
	c.set.GetOrCreateHistogram(fmt.Sprintf(`redis_command_duration_seconds{command=%q}`, cmd)).Update(duration.Seconds())
}

// RecordNetworkBytes counts bytes read from clients
func (c *Collector) RecordNetworkBytes(n int64) {
	c.networkBytes.Add(int(n))
}

// RecordClientConnected counts an accepted connection
func (c *Collector) RecordClientConnected() {
	c.connectionsTotal.Inc()
	c.connectionsActive.Inc()
}

// RecordClientDisconnected marks a connection as closed
func (c *Collector) RecordClientDisconnected() {
	c.connectionsActive.Dec()
}

// RecordError counts an error by type
func (c *Collector) RecordError(errorType string) {
	c.set.GetOrCreateCounter(fmt.Sprintf(`redis_errors_total{type=%q}`, errorType)).Inc()
}

// RecordSnapshotLoad records the result of seeding the keyspace at startup
func (c *Collector) RecordSnapshotLoad(loaded, expired int, duration time.Duration) {
	c.snapshotKeysLoaded.Add(loaded)
	c.snapshotKeysExpired.Add(expired)
	c.snapshotDuration.Update(duration.Seconds())
}

// RecordHandshake records one replica handshake attempt
func (c *Collector) RecordHandshake(duration time.Duration, err error) {
	if err != nil {
		c.handshakeFailure.Inc()
	} else {
		c.handshakeSuccess.Inc()
	}
	c.handshakeDuration.Update(duration.Seconds())
}

// OnKeySet implements storage.Observer
func (c *Collector) OnKeySet(string) { c.keysSet.Inc() }

// OnKeyDeleted implements storage.Observer
func (c *Collector) OnKeyDeleted(string) { c.keysDeleted.Inc() }

// OnKeyExpired implements storage.Observer
func (c *Collector) OnKeyExpired(string) { c.keysExpired.Inc() }

// WritePrometheus writes every series of this collector to w
func (c *Collector) WritePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
}
