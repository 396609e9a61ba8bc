package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
)

const readChunkSize = 16 * 1024

// ErrServerStarted is returned when Start is called twice
var ErrServerStarted = errors.New("server: already started")

// Logger interface for server logging
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// MetricsCollector interface for connection and command metrics
type MetricsCollector interface {
	RecordCommandProcessed(cmd string, duration time.Duration)
	RecordNetworkBytes(n int64)
	RecordClientConnected()
	RecordClientDisconnected()
	RecordError(errorType string)
}

// Stats is a snapshot of server counters
type Stats struct {
	ConnectedClients int
	TotalConnections int64
	TotalCommands    int64
	TotalErrors      int64
}

// Server accepts RESP connections and hands every decoded command to the
// Dispatcher. Each connection is served by its own goroutine.
type Server struct {
	dispatcher *Dispatcher

	// Server configuration
	addr        string
	idleTimeout time.Duration
	logger      Logger
	metrics     MetricsCollector

	// Connection management
	listener net.Listener
	clients  *xsync.MapOf[uint64, *Client]
	nextID   atomic.Uint64

	// Control
	started atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Counters
	connCount    atomic.Int64
	commandCount atomic.Int64
	errorCount   atomic.Int64
}

// Client represents a connected client
type Client struct {
	id     uint64
	conn   net.Conn
	writer *protocol.Writer
	server *Server

	buf     []byte
	lastCmd time.Time

	closeOnce sync.Once
}

// NewServer creates a server that will listen on addr
func NewServer(addr string, dispatcher *Dispatcher) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		dispatcher: dispatcher,
		addr:       addr,
		logger:     &defaultLogger{},
		clients:    xsync.NewMapOf[uint64, *Client](),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetLogger sets the logger for the server
func (s *Server) SetLogger(logger Logger) {
	if logger == nil {
		logger = &defaultLogger{}
	}
	s.logger = logger
}

// SetMetrics sets the metrics collector
func (s *Server) SetMetrics(metrics MetricsCollector) {
	s.metrics = metrics
}

// SetIdleTimeout closes connections that send nothing for d. Zero disables it.
func (s *Server) SetIdleTimeout(d time.Duration) {
	s.idleTimeout = d
}

// Start binds the listener and begins accepting connections. A bind
// failure is the only error it returns.
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrServerStarted
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.logger.Info("Server listening", "addr", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptConnections()

	return nil
}

// Stop closes the listener and every client connection, then waits for
// their goroutines to exit
func (s *Server) Stop() error {
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.clients.Range(func(_ uint64, client *Client) bool {
		client.Close()
		return true
	})

	s.wg.Wait()
	return nil
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stats returns server statistics
func (s *Server) Stats() Stats {
	return Stats{
		ConnectedClients: s.clients.Size(),
		TotalConnections: s.connCount.Load(),
		TotalCommands:    s.commandCount.Load(),
		TotalErrors:      s.errorCount.Load(),
	}
}

// acceptConnections accepts new client connections
func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return // Server is shutting down
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Accept failed", "error", err)
			s.recordError("accept")
			continue
		}

		s.handleNewClient(conn)
	}
}

// handleNewClient registers a connection and starts serving it
func (s *Server) handleNewClient(conn net.Conn) {
	s.connCount.Add(1)
	if s.metrics != nil {
		s.metrics.RecordClientConnected()
	}

	client := &Client{
		id:      s.nextID.Add(1),
		conn:    conn,
		writer:  protocol.NewWriter(conn),
		server:  s,
		lastCmd: time.Now(),
	}

	s.clients.Store(client.id, client)
	if s.ctx.Err() != nil {
		client.Close()
		return
	}
	s.logger.Debug("Client connected", "id", client.id, "remote", conn.RemoteAddr().String())

	s.wg.Add(1)
	go client.handle()
}

func (s *Server) recordError(errorType string) {
	s.errorCount.Add(1)
	if s.metrics != nil {
		s.metrics.RecordError(errorType)
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
		c.server.clients.Delete(c.id)
		if c.server.metrics != nil {
			c.server.metrics.RecordClientDisconnected()
		}
	})
}

// handle reads from the connection, decodes every complete request in the
// buffer and writes the replies. Pipelined requests are answered in order
// with a single flush per read.
func (c *Client) handle() {
	defer c.server.wg.Done()
	defer c.Close()

	chunk := make([]byte, readChunkSize)
	for {
		if c.server.idleTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.server.idleTimeout))
		}

		n, readErr := c.conn.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
			if c.server.metrics != nil {
				c.server.metrics.RecordNetworkBytes(int64(n))
			}

			if err := c.processBuffer(); err != nil {
				c.server.logger.Debug("Write failed", "id", c.id, "error", err)
				return
			}
		}

		if readErr != nil {
			c.logReadError(readErr)
			return
		}
	}
}

// processBuffer executes every complete request at the front of c.buf and
// keeps the unconsumed tail for the next read
func (c *Client) processBuffer() error {
	consumed := 0
	for consumed < len(c.buf) {
		cmd, n, err := protocol.Decode(c.buf[consumed:])
		consumed += n
		if err != nil {
			break // ErrIncomplete: wait for more bytes
		}

		c.lastCmd = time.Now()
		if err := c.writer.WriteResponse(c.executeCommand(cmd)); err != nil {
			return err
		}
	}

	// shift the partial frame to the front so the buffer does not grow
	remaining := copy(c.buf, c.buf[consumed:])
	c.buf = c.buf[:remaining]

	if c.writer.Buffered() > 0 {
		return c.writer.Flush()
	}
	return nil
}

// executeCommand runs one command through the dispatcher
func (c *Client) executeCommand(cmd protocol.Command) protocol.Response {
	c.server.commandCount.Add(1)
	start := time.Now()

	resp := c.server.dispatcher.Dispatch(cmd)

	name := protocol.Name(cmd)
	if c.server.metrics != nil {
		c.server.metrics.RecordCommandProcessed(name, time.Since(start))
	}
	if unknown, ok := cmd.(protocol.Unrecognized); ok {
		c.server.logger.Debug("Unrecognized command", "id", c.id, "name", unknown.Name)
		c.server.recordError("unknown_command")
	}

	return resp
}

func (c *Client) logReadError(err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		c.server.logger.Debug("Client disconnected", "id", c.id)
	case errors.As(err, &netErr) && netErr.Timeout():
		c.server.logger.Debug("Client idle timeout", "id", c.id, "idle", time.Since(c.lastCmd))
	case c.server.ctx.Err() != nil, errors.Is(err, net.ErrClosed):
		// server shutting down
	default:
		c.server.logger.Error("Read failed", "id", c.id, "error", err)
		c.server.recordError("read")
	}
}

type defaultLogger struct{}

func (l *defaultLogger) Debug(msg string, fields ...interface{}) {}
func (l *defaultLogger) Info(msg string, fields ...interface{})  {}
func (l *defaultLogger) Error(msg string, fields ...interface{}) {}
