package redisserver

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/config"
	"github.com/raniellyferreira/redis-inmemory-server/metrics"
)

type nopMetrics struct{}

func (nopMetrics) RecordCommandProcessed(string, time.Duration) {}
func (nopMetrics) RecordNetworkBytes(int64)                     {}
func (nopMetrics) RecordClientConnected()                       {}
func (nopMetrics) RecordClientDisconnected()                    {}
func (nopMetrics) RecordError(string)                           {}
func (nopMetrics) RecordSnapshotLoad(int, int, time.Duration)   {}
func (nopMetrics) RecordHandshake(time.Duration, error)         {}

func TestOptionsApply(t *testing.T) {
	o := defaultOptions()
	opts := []Option{
		WithPort(6380),
		WithBindHost("127.0.0.1"),
		WithSnapshot("/data", "dump.rdb"),
		WithReplicaOf("primary.local", 6379),
		WithIdleTimeout(time.Minute),
		WithConnectTimeout(2 * time.Second),
		WithMetricsAddr(":9121"),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			t.Fatalf("option error = %v", err)
		}
	}

	cfg := o.cfg
	if cfg.ListenAddr() != "127.0.0.1:6380" {
		t.Errorf("ListenAddr() = %q", cfg.ListenAddr())
	}
	if cfg.SnapshotPath() != "/data/dump.rdb" {
		t.Errorf("SnapshotPath() = %q", cfg.SnapshotPath())
	}
	if !cfg.IsReplica() || cfg.ReplicaOf.Addr() != "primary.local:6379" {
		t.Errorf("ReplicaOf = %+v", cfg.ReplicaOf)
	}
	if cfg.IdleTimeout != time.Minute || cfg.ConnectTimeout != 2*time.Second {
		t.Errorf("timeouts = %v, %v", cfg.IdleTimeout, cfg.ConnectTimeout)
	}
	if cfg.MetricsAddr != ":9121" {
		t.Errorf("MetricsAddr = %q", cfg.MetricsAddr)
	}
}

func TestInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"negative port", WithPort(-1)},
		{"port too large", WithPort(70000)},
		{"empty primary host", WithReplicaOf("", 6379)},
		{"primary port zero", WithReplicaOf("localhost", 0)},
		{"nil logger", WithLogger(nil)},
		{"negative idle timeout", WithIdleTimeout(-time.Second)},
		{"zero connect timeout", WithConnectTimeout(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestWithConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Port = 7000
	cfg.DBFilename = "snap.rdb"

	o := defaultOptions()
	for _, opt := range []Option{WithConfig(cfg), WithPort(7001)} {
		if err := opt(o); err != nil {
			t.Fatal(err)
		}
	}
	if o.cfg.Port != 7001 || o.cfg.DBFilename != "snap.rdb" {
		t.Errorf("cfg = %+v", o.cfg)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ConnectTimeout = -1
	if _, err := New(WithConfig(cfg)); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New() error = %v", err)
	}
}

func TestMetricsEndpointNeedsCollector(t *testing.T) {
	_, err := New(WithMetrics(nopMetrics{}), WithMetricsAddr("127.0.0.1:0"))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New() error = %v", err)
	}

	srv, err := New(WithMetrics(metrics.New()), WithMetricsAddr("127.0.0.1:0"))
	if err != nil {
		t.Fatalf("New() with *metrics.Collector error = %v", err)
	}
	srv.Close()
}

func TestConvertFields(t *testing.T) {
	fields := convertFields("addr", "127.0.0.1:6379", 42, "skipped", "dangling")
	if len(fields) != 1 || fields[0].Key != "addr" {
		t.Errorf("convertFields() = %+v", fields)
	}
}

func TestFlattenFields(t *testing.T) {
	args := flattenFields([]Field{{Key: "error", Value: errors.New("boom")}, {Key: "n", Value: 3}})
	if len(args) != 4 || args[1] != "boom" || args[3] != 3 {
		t.Errorf("flattenFields() = %v", args)
	}
}

func TestVersionString(t *testing.T) {
	if got := VersionString(); !strings.HasPrefix(got, Version) {
		t.Errorf("VersionString() = %q", got)
	}

	GitCommit, BuildTime = "abc123", "2026-01-01"
	defer func() { GitCommit, BuildTime = "", "" }()
	if got := VersionString(); got != Version+" (commit abc123, built 2026-01-01)" {
		t.Errorf("VersionString() = %q", got)
	}
}
