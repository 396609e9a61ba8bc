package replication

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
)

var (
	// ErrUnexpectedReply is returned when the primary answers a handshake
	// step with something other than the expected reply.
	ErrUnexpectedReply = errors.New("replication: unexpected reply")

	// ErrHandshakeStarted is returned when Run is called more than once
	ErrHandshakeStarted = errors.New("replication: handshake already started")
)

// State is a step of the replica handshake
type State int32

const (
	StateInit State = iota
	StateAwaitPong
	StateAwaitReplconfPortAck
	StateAwaitReplconfCapaAck
	StateAwaitFullResync
	StateEstablished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitPong:
		return "await-pong"
	case StateAwaitReplconfPortAck:
		return "await-replconf-port-ack"
	case StateAwaitReplconfCapaAck:
		return "await-replconf-capa-ack"
	case StateAwaitFullResync:
		return "await-fullresync"
	case StateEstablished:
		return "established"
	case StateFailed:
		return "failed"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// HandshakeError reports the step a handshake failed in
type HandshakeError struct {
	State State
	Reply string // raw reply text, empty when nothing was read
	Err   error
}

func (e *HandshakeError) Error() string {
	if e.Reply != "" {
		return fmt.Sprintf("replication: handshake failed in %s (reply %q): %v", e.State, e.Reply, e.Err)
	}
	return fmt.Sprintf("replication: handshake failed in %s: %v", e.State, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// HandshakeOption configures a Handshake
type HandshakeOption func(*Handshake)

// WithCapability sets the capability announced with REPLCONF capa
func WithCapability(capa string) HandshakeOption {
	return func(h *Handshake) {
		h.capa = capa
	}
}

// Handshake drives the replica side of the handshake over a connected
// stream. It is used once; Run blocks until the handshake is established
// or has failed.
type Handshake struct {
	reader *protocol.Reader
	writer *protocol.Writer
	port   int
	capa   string

	state atomic.Int32

	mu     sync.Mutex
	replID string
	offset int64
}

// NewHandshake prepares a handshake announcing listeningPort to the primary
func NewHandshake(rw io.ReadWriter, listeningPort int, opts ...HandshakeOption) *Handshake {
	h := &Handshake{
		reader: protocol.NewReader(rw),
		writer: protocol.NewWriter(rw),
		port:   listeningPort,
		capa:   "psync2",
		offset: -1,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// State returns the current step. Safe to call from any goroutine.
func (h *Handshake) State() State {
	return State(h.state.Load())
}

// Result returns the replication ID and offset announced by FULLRESYNC.
// Before the handshake is established it returns "", -1.
func (h *Handshake) Result() (replID string, offset int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.replID, h.offset
}

type handshakeStep struct {
	state State
	args  []string
	check func(protocol.Value) error
}

// Run performs every step in order. The first failed step moves the
// handshake to StateFailed and nothing else is sent.
func (h *Handshake) Run() error {
	if !h.state.CompareAndSwap(int32(StateInit), int32(StateAwaitPong)) {
		return ErrHandshakeStarted
	}

	steps := []handshakeStep{
		{StateAwaitPong, []string{"PING"}, expectSimple("PONG")},
		{StateAwaitReplconfPortAck, []string{"REPLCONF", "listening-port", strconv.Itoa(h.port)}, expectSimple("OK")},
		{StateAwaitReplconfCapaAck, []string{"REPLCONF", "capa", h.capa}, expectSimple("OK")},
		{StateAwaitFullResync, []string{"PSYNC", "?", "-1"}, h.acceptFullResync},
	}

	for _, step := range steps {
		h.state.Store(int32(step.state))

		if err := h.send(step.args); err != nil {
			return h.fail(step.state, "", err)
		}

		reply, err := h.reader.ReadNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return h.fail(step.state, "", err)
		}

		if err := step.check(reply); err != nil {
			return h.fail(step.state, reply.String(), err)
		}
	}

	h.state.Store(int32(StateEstablished))
	return nil
}

func (h *Handshake) send(args []string) error {
	if err := h.writer.WriteCommand(args[0], args[1:]...); err != nil {
		return err
	}
	return h.writer.Flush()
}

func (h *Handshake) fail(state State, reply string, err error) error {
	h.state.Store(int32(StateFailed))
	return &HandshakeError{State: state, Reply: reply, Err: err}
}

// acceptFullResync takes any simple string starting with FULLRESYNC. The
// replication ID and offset that normally follow are recorded when present.
func (h *Handshake) acceptFullResync(v protocol.Value) error {
	if v.Type != protocol.TypeSimpleString || !strings.HasPrefix(v.Text(), "FULLRESYNC") {
		return ErrUnexpectedReply
	}

	parts := strings.Fields(strings.TrimPrefix(v.Text(), "FULLRESYNC"))

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(parts) > 0 {
		h.replID = parts[0]
	}
	if len(parts) > 1 {
		if offset, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
			h.offset = offset
		}
	}
	return nil
}

func expectSimple(want string) func(protocol.Value) error {
	return func(v protocol.Value) error {
		if v.Type != protocol.TypeSimpleString || v.Text() != want {
			return ErrUnexpectedReply
		}
		return nil
	}
}
