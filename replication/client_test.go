package replication

import (
	"context"
	"errors"
	"net"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
)

type recordingMetrics struct {
	mu         sync.Mutex
	handshakes []error
	errors     []string
}

func (m *recordingMetrics) RecordHandshake(_ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handshakes = append(m.handshakes, err)
}

func (m *recordingMetrics) RecordError(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, errorType)
}

// startFakePrimary accepts one connection and answers each command it reads
// with the next reply from replies. It stops answering when replies run out.
func startFakePrimary(t *testing.T, replies ...string) (addr string, received <-chan []string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	ch := make(chan []string, 1)
	go func() {
		var got []string
		defer func() { ch <- got }()

		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := protocol.NewReader(conn)
		for _, reply := range replies {
			v, err := r.ReadNext()
			if err != nil {
				return
			}
			if len(v.Array) > 0 {
				got = append(got, v.Array[0].Text())
			}
			if _, err := conn.Write([]byte(reply)); err != nil {
				return
			}
		}
		// hold the link open until the replica closes it
		r.ReadNext()
	}()

	return ln.Addr().String(), ch
}

func waitDone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("handshake did not finish")
	}
}

func TestClientHandshake(t *testing.T) {
	addr, received := startFakePrimary(t, "+PONG\r\n", "+OK\r\n", "+OK\r\n", fullResync)

	metrics := &recordingMetrics{}
	c := NewClient(addr, 6380)
	c.SetMetrics(metrics)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, c)

	if err := c.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if c.State() != StateEstablished {
		t.Errorf("State() = %v", c.State())
	}
	if id, _ := c.Result(); id != "8371b4fb1155b71f4a04d3e1bc3e18c4a990aeeb" {
		t.Errorf("Result() id = %q", id)
	}
	if len(metrics.handshakes) != 1 || metrics.handshakes[0] != nil {
		t.Errorf("handshakes recorded = %v", metrics.handshakes)
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	got := <-received
	want := []string{"PING", "REPLCONF", "REPLCONF", "PSYNC"}
	if len(got) != len(want) {
		t.Fatalf("primary received %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestClientHandshakeRejected(t *testing.T) {
	addr, received := startFakePrimary(t, "+PONG\r\n", "-ERR denied\r\n")

	metrics := &recordingMetrics{}
	c := NewClient(addr, 6380)
	c.SetMetrics(metrics)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, c)

	var herr *HandshakeError
	if !errors.As(c.Err(), &herr) || herr.State != StateAwaitReplconfPortAck {
		t.Fatalf("Err() = %v", c.Err())
	}
	if c.State() != StateFailed {
		t.Errorf("State() = %v", c.State())
	}
	if len(metrics.errors) != 1 || metrics.errors[0] != "handshake" {
		t.Errorf("errors recorded = %v", metrics.errors)
	}
	c.Close()

	if got := <-received; len(got) != 2 {
		t.Errorf("primary received %v after rejection", got)
	}
}

func TestClientDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	metrics := &recordingMetrics{}
	c := NewClient(addr, 6380)
	c.SetMetrics(metrics)
	c.SetConnectTimeout(time.Second)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitDone(t, c)

	if c.Err() == nil {
		t.Fatal("Err() = nil for unreachable primary")
	}
	if c.State() != StateFailed {
		t.Errorf("State() = %v", c.State())
	}
	if len(metrics.errors) == 0 || metrics.errors[0] != "connection" {
		t.Errorf("errors recorded = %v", metrics.errors)
	}
}

func TestClientStartTwice(t *testing.T) {
	addr, _ := startFakePrimary(t)
	c := NewClient(addr, 1)
	defer c.Close()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrClientStarted) {
		t.Errorf("second Start() error = %v", err)
	}
}

func TestCloseUnstarted(t *testing.T) {
	if err := NewClient("127.0.0.1:1", 1).Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewID(t *testing.T) {
	hexID := regexp.MustCompile(`^[0-9a-f]{40}$`)
	a, b := NewID(), NewID()
	if !hexID.MatchString(a) {
		t.Errorf("NewID() = %q", a)
	}
	if a == b {
		t.Error("NewID() returned the same ID twice")
	}
}

func TestInfo(t *testing.T) {
	primary := NewPrimaryInfo()
	if primary.IsReplica() || primary.PrimaryAddr() != "" || len(primary.ID) != IDLength {
		t.Errorf("primary info = %+v", primary)
	}

	replica := NewReplicaInfo("localhost", 6379)
	if !replica.IsReplica() || replica.PrimaryAddr() != "localhost:6379" {
		t.Errorf("replica info = %+v", replica)
	}
	if replica.Role != "slave" {
		t.Errorf("Role = %q", replica.Role)
	}

	if addr := NewReplicaInfo("::1", 6379).PrimaryAddr(); addr != "[::1]:6379" {
		t.Errorf("IPv6 PrimaryAddr() = %q, want [::1]:6379", addr)
	}
}
