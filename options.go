package redisserver

import (
	"fmt"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/config"
)

// options holds everything New needs to build a Server
type options struct {
	cfg     config.Config
	logger  Logger
	metrics MetricsCollector
}

// defaultOptions returns the defaults of config.Default and a text logger
func defaultOptions() *options {
	return &options{
		cfg:    config.Default(),
		logger: defaultLogger(),
	}
}

// Option represents a configuration option for a Server
type Option func(*options) error

// WithConfig replaces the whole configuration. Options that follow it
// still apply on top.
//
// Example:
//
//	cfg := config.Default()
//	cfg.Port = 6380
//	WithConfig(cfg)
func WithConfig(cfg config.Config) Option {
	return func(o *options) error {
		o.cfg = cfg
		return nil
	}
}

// WithPort sets the TCP port clients connect to. Port 0 picks a free port.
//
// Example:
//
//	WithPort(6380)
func WithPort(port int) Option {
	return func(o *options) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, port)
		}
		o.cfg.Port = port
		return nil
	}
}

// WithBindHost sets the interface the listener binds to
//
// Example:
//
//	WithBindHost("127.0.0.1")
func WithBindHost(host string) Option {
	return func(o *options) error {
		o.cfg.BindHost = host
		return nil
	}
}

// WithSnapshot sets the directory and file name of the RDB snapshot loaded
// at startup. Both values are also reported by CONFIG GET.
//
// Example:
//
//	WithSnapshot("/var/lib/redis", "dump.rdb")
func WithSnapshot(dir, filename string) Option {
	return func(o *options) error {
		o.cfg.Dir = dir
		o.cfg.DBFilename = filename
		return nil
	}
}

// WithReplicaOf makes the server a replica of host:port
//
// Example:
//
//	WithReplicaOf("localhost", 6379)
func WithReplicaOf(host string, port int) Option {
	return func(o *options) error {
		if host == "" {
			return &ConnectionError{Op: "replicaof", Err: fmt.Errorf("%w: empty host", ErrInvalidConfig)}
		}
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%w: replicaof port %d out of range", ErrInvalidConfig, port)
		}
		o.cfg.ReplicaOf = &config.ReplicaOf{Host: host, Port: port}
		return nil
	}
}

// WithLogger sets a custom logger
//
// Example:
//
//	WithLogger(myLogger)
func WithLogger(logger Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return fmt.Errorf("%w: nil logger", ErrInvalidConfig)
		}
		o.logger = logger
		return nil
	}
}

// WithMetrics sets a metrics collector. The HTTP endpoint enabled by
// WithMetricsAddr requires a *metrics.Collector.
//
// Example:
//
//	WithMetrics(metrics.New())
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *options) error {
		o.metrics = metrics
		return nil
	}
}

// WithMetricsAddr serves /metrics and /healthz over HTTP on addr
//
// Example:
//
//	WithMetricsAddr(":9121")
func WithMetricsAddr(addr string) Option {
	return func(o *options) error {
		o.cfg.MetricsAddr = addr
		return nil
	}
}

// WithIdleTimeout closes client connections idle for longer than timeout.
// Zero disables it.
//
// Example:
//
//	WithIdleTimeout(5 * time.Minute)
func WithIdleTimeout(timeout time.Duration) Option {
	return func(o *options) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		o.cfg.IdleTimeout = timeout
		return nil
	}
}

// WithConnectTimeout sets the dial timeout towards the primary
//
// Example:
//
//	WithConnectTimeout(10 * time.Second)
func WithConnectTimeout(timeout time.Duration) Option {
	return func(o *options) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		o.cfg.ConnectTimeout = timeout
		return nil
	}
}
