package replication

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClientStarted is returned when Start is called twice
var ErrClientStarted = errors.New("replication: client already started")

// Logger interface for replication logging
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// MetricsCollector interface for replication metrics
type MetricsCollector interface {
	RecordHandshake(duration time.Duration, err error)
	RecordError(errorType string)
}

// Client connects to a primary and performs the replica handshake
type Client struct {
	primaryAddr    string
	listeningPort  int
	connectTimeout time.Duration
	capa           string

	logger  Logger
	metrics MetricsCollector

	mu   sync.Mutex
	conn net.Conn
	hs   *Handshake
	err  error

	started atomic.Bool
	closed  atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewClient creates a client for the primary at primaryAddr. listeningPort
// is the port this server accepts clients on, announced with REPLCONF.
func NewClient(primaryAddr string, listeningPort int) *Client {
	return &Client{
		primaryAddr:    primaryAddr,
		listeningPort:  listeningPort,
		connectTimeout: 5 * time.Second,
		capa:           "psync2",
		logger:         &defaultLogger{},
		done:           make(chan struct{}),
	}
}

// SetLogger sets the logger for the client
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = &defaultLogger{}
	}
	c.logger = logger
}

// SetMetrics sets the metrics collector
func (c *Client) SetMetrics(metrics MetricsCollector) {
	c.metrics = metrics
}

// SetConnectTimeout sets the dial timeout. Zero disables it.
func (c *Client) SetConnectTimeout(timeout time.Duration) {
	c.connectTimeout = timeout
}

// SetCapability sets the capability announced with REPLCONF capa
func (c *Client) SetCapability(capa string) {
	c.capa = capa
}

// PrimaryAddr returns the address the client dials
func (c *Client) PrimaryAddr() string {
	return c.primaryAddr
}

// Start launches the handshake in the background and returns at once.
// The outcome is available through Done, Err and State.
func (c *Client) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrClientStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.logger.Info("Starting replica handshake", "primary", c.primaryAddr, "listening_port", c.listeningPort)

	go c.run(ctx)
	return nil
}

// Done is closed when the handshake has finished, successfully or not
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the handshake failure, or nil. Only meaningful after Done.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// State returns the handshake step; StateInit until the primary is dialed
func (c *Client) State() State {
	c.mu.Lock()
	hs := c.hs
	failed := c.err != nil
	c.mu.Unlock()

	if hs != nil {
		return hs.State()
	}
	if failed {
		return StateFailed
	}
	return StateInit
}

// Result returns the replication ID and offset announced by the primary
func (c *Client) Result() (replID string, offset int64) {
	c.mu.Lock()
	hs := c.hs
	c.mu.Unlock()

	if hs == nil {
		return "", -1
	}
	return hs.Result()
}

// Close drops the link to the primary and waits for the background
// goroutine to exit
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if !c.started.Load() {
		return nil
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()

	<-c.done
	return nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	start := time.Now()

	err := c.handshake(ctx)
	duration := time.Since(start)

	if c.metrics != nil {
		c.metrics.RecordHandshake(duration, err)
	}

	if err != nil {
		c.mu.Lock()
		c.err = err
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()

		if c.closed.Load() {
			c.logger.Debug("Replica handshake aborted", "error", err)
			return
		}
		c.logger.Error("Replica handshake failed", "primary", c.primaryAddr, "error", err)
		c.recordMetricError("handshake")
		return
	}

	replID, offset := c.Result()
	c.logger.Info("Replica handshake completed",
		"primary", c.primaryAddr,
		"replid", replID,
		"offset", offset,
		"duration", duration)
}

func (c *Client) handshake(ctx context.Context) error {
	conn, err := c.connect(ctx)
	if err != nil {
		c.recordMetricError("connection")
		return err
	}

	hs := NewHandshake(conn, c.listeningPort, WithCapability(c.capa))

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		conn.Close()
		return net.ErrClosed
	}
	c.conn = conn
	c.hs = hs
	c.mu.Unlock()

	return hs.Run()
}

// connect dials the primary
func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	c.logger.Debug("Connecting to primary", "addr", c.primaryAddr)

	dialer := &net.Dialer{
		Timeout: c.connectTimeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", c.primaryAddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.primaryAddr, err)
	}
	return conn, nil
}

func (c *Client) recordMetricError(errorType string) {
	if c.metrics != nil {
		c.metrics.RecordError(errorType)
	}
}

type defaultLogger struct{}

func (l *defaultLogger) Debug(msg string, fields ...interface{}) {}
func (l *defaultLogger) Info(msg string, fields ...interface{})  {}
func (l *defaultLogger) Error(msg string, fields ...interface{}) {}
