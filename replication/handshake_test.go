package replication

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/raniellyferreira/redis-inmemory-server/protocol"
)

// scriptedPrimary replays canned replies and records what the replica sent
type scriptedPrimary struct {
	replies *strings.Reader
	sent    bytes.Buffer
}

func newScriptedPrimary(replies string) *scriptedPrimary {
	return &scriptedPrimary{replies: strings.NewReader(replies)}
}

func (p *scriptedPrimary) Read(b []byte) (int, error)  { return p.replies.Read(b) }
func (p *scriptedPrimary) Write(b []byte) (int, error) { return p.sent.Write(b) }

// commands decodes everything the replica sent
func (p *scriptedPrimary) commands(t *testing.T) []string {
	t.Helper()

	var out []string
	buf := p.sent.Bytes()
	for len(buf) > 0 {
		args, n, err := protocol.ReadArray(buf)
		if err != nil {
			t.Fatalf("replica sent malformed data %q: %v", buf, err)
		}
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = string(a)
		}
		out = append(out, strings.Join(parts, " "))
		buf = buf[n:]
	}
	return out
}

const fullResync = "+FULLRESYNC 8371b4fb1155b71f4a04d3e1bc3e18c4a990aeeb 0\r\n"

func TestHandshakeEstablished(t *testing.T) {
	primary := newScriptedPrimary("+PONG\r\n+OK\r\n+OK\r\n" + fullResync)
	hs := NewHandshake(primary, 6380)

	if got := hs.State(); got != StateInit {
		t.Fatalf("initial state = %v", got)
	}

	if err := hs.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := hs.State(); got != StateEstablished {
		t.Errorf("State() = %v, want %v", got, StateEstablished)
	}

	id, offset := hs.Result()
	if id != "8371b4fb1155b71f4a04d3e1bc3e18c4a990aeeb" || offset != 0 {
		t.Errorf("Result() = %q, %d", id, offset)
	}

	want := []string{
		"PING",
		"REPLCONF listening-port 6380",
		"REPLCONF capa psync2",
		"PSYNC ? -1",
	}
	got := primary.commands(t)
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("sent %q, want %q", got, want)
	}
}

func TestHandshakeFailures(t *testing.T) {
	tests := []struct {
		name      string
		replies   string
		state     State
		sent      int
		wantReply bool
		wantErr   error
	}{
		{"error to ping", "-ERR no\r\n", StateAwaitPong, 1, true, ErrUnexpectedReply},
		{"wrong ping reply", "+PANG\r\n", StateAwaitPong, 1, true, ErrUnexpectedReply},
		{"bulk pong", "$4\r\nPONG\r\n", StateAwaitPong, 1, true, ErrUnexpectedReply},
		{"eof before pong", "", StateAwaitPong, 1, false, io.ErrUnexpectedEOF},
		{"port rejected", "+PONG\r\n-ERR bad port\r\n", StateAwaitReplconfPortAck, 2, true, ErrUnexpectedReply},
		{"capa rejected", "+PONG\r\n+OK\r\n+NOPE\r\n", StateAwaitReplconfCapaAck, 3, true, ErrUnexpectedReply},
		{"eof before fullresync", "+PONG\r\n+OK\r\n+OK\r\n", StateAwaitFullResync, 4, false, io.ErrUnexpectedEOF},
		{"continue instead of fullresync", "+PONG\r\n+OK\r\n+OK\r\n+CONTINUE\r\n", StateAwaitFullResync, 4, true, ErrUnexpectedReply},
		{"lower case pong", "+pong\r\n", StateAwaitPong, 1, true, ErrUnexpectedReply},
		{"lower case ok", "+PONG\r\n+ok\r\n", StateAwaitReplconfPortAck, 2, true, ErrUnexpectedReply},
		{"lower case fullresync", "+PONG\r\n+OK\r\n+OK\r\n+fullresync abc 0\r\n", StateAwaitFullResync, 4, true, ErrUnexpectedReply},
		{"error to psync", "+PONG\r\n+OK\r\n+OK\r\n-FULLRESYNC abc 0\r\n", StateAwaitFullResync, 4, true, ErrUnexpectedReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := newScriptedPrimary(tt.replies)
			hs := NewHandshake(primary, 6380)

			err := hs.Run()
			if err == nil {
				t.Fatal("Run() expected error")
			}

			var herr *HandshakeError
			if !errors.As(err, &herr) {
				t.Fatalf("error %T is not *HandshakeError", err)
			}
			if herr.State != tt.state {
				t.Errorf("HandshakeError.State = %v, want %v", herr.State, tt.state)
			}
			if (herr.Reply != "") != tt.wantReply {
				t.Errorf("HandshakeError.Reply = %q", herr.Reply)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if hs.State() != StateFailed {
				t.Errorf("State() = %v, want %v", hs.State(), StateFailed)
			}
			if got := len(primary.commands(t)); got != tt.sent {
				t.Errorf("sent %d commands, want %d", got, tt.sent)
			}
		})
	}
}

func TestHandshakeFullResyncFields(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		id     string
		offset int64
	}{
		{"id and offset", "+FULLRESYNC abc 42\r\n", "abc", 42},
		{"no fields", "+FULLRESYNC\r\n", "", -1},
		{"missing offset", "+FULLRESYNC abc\r\n", "abc", -1},
		{"bad offset", "+FULLRESYNC abc x\r\n", "abc", -1},
		{"extra fields", "+FULLRESYNC abc 7 trailing\r\n", "abc", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := NewHandshake(newScriptedPrimary("+PONG\r\n+OK\r\n+OK\r\n"+tt.reply), 6380)
			if err := hs.Run(); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if hs.State() != StateEstablished {
				t.Errorf("State() = %v, want %v", hs.State(), StateEstablished)
			}
			if id, offset := hs.Result(); id != tt.id || offset != tt.offset {
				t.Errorf("Result() = %q, %d, want %q, %d", id, offset, tt.id, tt.offset)
			}
		})
	}
}

func TestHandshakeRunTwice(t *testing.T) {
	hs := NewHandshake(newScriptedPrimary("+PONG\r\n+OK\r\n+OK\r\n"+fullResync), 1)
	if err := hs.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := hs.Run(); !errors.Is(err, ErrHandshakeStarted) {
		t.Errorf("second Run() error = %v", err)
	}
}

func TestHandshakeCapability(t *testing.T) {
	primary := newScriptedPrimary("+PONG\r\n+OK\r\n+OK\r\n" + fullResync)
	if err := NewHandshake(primary, 7000, WithCapability("eof")).Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := primary.commands(t)[2]; got != "REPLCONF capa eof" {
		t.Errorf("capa command = %q", got)
	}
}

func TestResultBeforeRun(t *testing.T) {
	id, offset := NewHandshake(newScriptedPrimary(""), 1).Result()
	if id != "" || offset != -1 {
		t.Errorf("Result() = %q, %d", id, offset)
	}
}

func TestStateString(t *testing.T) {
	if StateAwaitReplconfCapaAck.String() != "await-replconf-capa-ack" {
		t.Errorf("String() = %q", StateAwaitReplconfCapaAck.String())
	}
	if State(42).String() != "state(42)" {
		t.Errorf("String() = %q", State(42).String())
	}
}
