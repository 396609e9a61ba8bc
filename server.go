package redisserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/config"
	"github.com/raniellyferreira/redis-inmemory-server/metrics"
	"github.com/raniellyferreira/redis-inmemory-server/rdb"
	"github.com/raniellyferreira/redis-inmemory-server/replication"
	"github.com/raniellyferreira/redis-inmemory-server/server"
	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

const shutdownTimeout = 5 * time.Second

// Server is an in-memory Redis-compatible server: a keyspace seeded from an
// optional RDB snapshot, a RESP listener and, for replicas, the handshake
// with the primary.
type Server struct {
	// Configuration
	cfg     config.Config
	logger  Logger
	metrics MetricsCollector

	// Components
	store      *storage.MemoryStorage
	repl       replication.Info
	dispatcher *server.Dispatcher
	srv        *server.Server
	collector  *metrics.Collector
	httpSrv    *http.Server
	httpAddr   string
	client     *replication.Client

	// State
	mu      sync.Mutex
	started bool
	closed  bool
}

// New creates a Server with the given options
//
// The server is created but not started. Use Start() to load the snapshot
// and begin accepting connections.
//
// Example:
//
//	srv, err := redisserver.New(
//		redisserver.WithPort(6380),
//		redisserver.WithSnapshot("/var/lib/redis", "dump.rdb"),
//		redisserver.WithReplicaOf("localhost", 6379),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
func New(opts ...Option) (*Server, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	if err := o.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	collector, _ := o.metrics.(*metrics.Collector)
	if o.cfg.MetricsAddr != "" {
		switch {
		case o.metrics == nil:
			collector = metrics.New()
			o.metrics = collector
		case collector == nil:
			return nil, fmt.Errorf("%w: metrics endpoint requires a *metrics.Collector", ErrInvalidConfig)
		}
	}

	var storeOpts []storage.MemoryOption
	if observer, ok := o.metrics.(storage.Observer); ok {
		storeOpts = append(storeOpts, storage.WithObserver(observer))
	}
	store := storage.NewMemory(storeOpts...)
	if collector != nil {
		collector.TrackKeyCount(store.KeyCount)
	}

	s := &Server{
		cfg:       o.cfg,
		logger:    o.logger,
		metrics:   o.metrics,
		store:     store,
		collector: collector,
	}

	var dispatchOpts []server.DispatcherOption
	if o.cfg.IsReplica() {
		s.repl = replication.NewReplicaInfo(o.cfg.ReplicaOf.Host, o.cfg.ReplicaOf.Port)
		dispatchOpts = append(dispatchOpts, server.WithLinkState(s.linkState))
	} else {
		s.repl = replication.NewPrimaryInfo()
	}

	s.dispatcher = server.NewDispatcher(store, &s.cfg, s.repl, dispatchOpts...)

	s.srv = server.NewServer(o.cfg.ListenAddr(), s.dispatcher)
	s.srv.SetLogger(&loggerAdapter{logger: o.logger})
	s.srv.SetIdleTimeout(o.cfg.IdleTimeout)
	if o.metrics != nil {
		s.srv.SetMetrics(o.metrics)
	}

	return s, nil
}

// Start loads the snapshot, opens the listener and, for a replica, starts
// the handshake with the primary in the background.
//
// Snapshot and handshake failures are logged and never returned; only a
// listener that cannot bind aborts startup.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}

	s.logger.Debug("Starting server", Field{Key: "config", Value: s.cfg.String()})

	// The keyspace is complete before the first client can connect
	s.loadSnapshot()

	if err := s.srv.Start(); err != nil {
		s.logger.Error("Failed to start server", Field{Key: "error", Value: err}, Field{Key: "addr", Value: s.cfg.ListenAddr()})
		return &ConnectionError{Op: "listen", Addr: s.cfg.ListenAddr(), Err: err}
	}

	if s.cfg.MetricsAddr != "" {
		if err := s.startMetricsServer(); err != nil {
			s.srv.Stop()
			return &ConnectionError{Op: "metrics", Addr: s.cfg.MetricsAddr, Err: err}
		}
	}

	if s.repl.IsReplica() {
		s.startReplication(ctx)
	}

	s.started = true
	s.logger.Info("Server ready",
		Field{Key: "addr", Value: s.srv.Addr()},
		Field{Key: "role", Value: string(s.repl.Role)},
		Field{Key: "keys", Value: s.store.KeyCount()})
	return nil
}

// loadSnapshot seeds the keyspace from dir/dbfilename. A missing or
// unreadable file leaves the keyspace empty; a truncated or corrupt one
// keeps every entry decoded before the damage.
func (s *Server) loadSnapshot() {
	if s.cfg.SnapshotPath() == "" {
		return
	}

	start := time.Now()
	snap, err := rdb.Load(s.cfg.Dir, s.cfg.DBFilename)
	if err != nil {
		s.logger.Error("Snapshot could not be fully read",
			Field{Key: "path", Value: s.cfg.SnapshotPath()},
			Field{Key: "entries", Value: len(snap.Entries)},
			Field{Key: "error", Value: err})
		s.recordError("snapshot")
	}

	loaded, expired, err := rdb.Populate(s.store, snap.Entries, time.Now())
	if err != nil {
		s.logger.Error("Failed to populate keyspace", Field{Key: "error", Value: err})
		s.recordError("snapshot")
	}

	duration := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordSnapshotLoad(loaded, expired, duration)
	}

	s.logger.Info("Snapshot loaded",
		Field{Key: "path", Value: s.cfg.SnapshotPath()},
		Field{Key: "version", Value: snap.Version},
		Field{Key: "loaded", Value: loaded},
		Field{Key: "expired", Value: expired},
		Field{Key: "duration", Value: duration})
}

func (s *Server) startMetricsServer() error {
	ln, err := net.Listen("tcp", s.cfg.MetricsAddr)
	if err != nil {
		return err
	}

	s.httpAddr = ln.Addr().String()
	s.httpSrv = &http.Server{
		Handler:           metrics.NewRouter(s.collector, s.healthStatus),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server stopped", Field{Key: "error", Value: err})
		}
	}()

	s.logger.Info("Metrics endpoint listening", Field{Key: "addr", Value: s.httpAddr})
	return nil
}

func (s *Server) startReplication(ctx context.Context) {
	client := replication.NewClient(s.repl.PrimaryAddr(), s.listenPort())
	client.SetLogger(&loggerAdapter{logger: s.logger})
	client.SetConnectTimeout(s.cfg.ConnectTimeout)
	if s.metrics != nil {
		client.SetMetrics(s.metrics)
	}

	// The link outlives the caller's context; Close ends it
	if err := client.Start(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("Failed to start replica handshake", Field{Key: "error", Value: err})
		return
	}
	s.client = client
}

// listenPort is the bound port announced to the primary
func (s *Server) listenPort() int {
	_, port, err := net.SplitHostPort(s.srv.Addr())
	if err != nil {
		return s.cfg.Port
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return s.cfg.Port
	}
	return n
}

// Close stops the handshake, the listeners and every connection
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	if s.client != nil {
		s.client.Close()
	}

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown failed", Field{Key: "error", Value: err})
		}
	}

	if started {
		s.srv.Stop()
	}

	s.logger.Info("Server stopped")
	return s.store.Close()
}

// Addr returns the address clients connect to
func (s *Server) Addr() string {
	return s.srv.Addr()
}

// MetricsAddr returns the address of the metrics endpoint, or "" when it is
// disabled or not started
func (s *Server) MetricsAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpAddr
}

// Storage returns the keyspace
func (s *Server) Storage() storage.Storage {
	return s.store
}

// Replication returns the replication identity reported by INFO
func (s *Server) Replication() replication.Info {
	return s.repl
}

// HandshakeDone is closed once the handshake with the primary has finished.
// It is nil for a primary or before Start.
func (s *Server) HandshakeDone() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	return s.client.Done()
}

// Stats returns current server statistics
func (s *Server) Stats() Stats {
	srvStats := s.srv.Stats()
	stats := Stats{
		Role:             string(s.repl.Role),
		Keys:             s.store.KeyCount(),
		ConnectedClients: srvStats.ConnectedClients,
		TotalConnections: srvStats.TotalConnections,
		TotalCommands:    srvStats.TotalCommands,
		TotalErrors:      srvStats.TotalErrors,
	}
	if s.repl.IsReplica() {
		stats.LinkState = s.linkState().String()
	}
	return stats
}

func (s *Server) linkState() replication.State {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil {
		return replication.StateInit
	}
	return client.State()
}

func (s *Server) healthStatus() metrics.Status {
	return metrics.Status{Role: string(s.repl.Role), Keys: s.store.KeyCount()}
}

func (s *Server) recordError(errorType string) {
	if s.metrics != nil {
		s.metrics.RecordError(errorType)
	}
}
