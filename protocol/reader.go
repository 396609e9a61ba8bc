package protocol

import (
	"bufio"
	"fmt"
	"io"
)

// Reader reads RESP replies from a stream, blocking until a whole value has
// arrived. The server side uses Decode instead; Reader serves the replica
// link and tests that act as clients.
type Reader struct {
	br *bufio.Reader
}

// NewReader creates a streaming RESP reader
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// ReadNext reads the next RESP value from the stream. A clean end of stream
// before the first byte is returned as io.EOF.
func (r *Reader) ReadNext() (Value, error) {
	kind, line, err := r.header()
	if err != nil {
		return Value{}, err
	}

	v := Value{Type: kind}
	switch kind {
	case TypeSimpleString, TypeError:
		v.Data = line

	case TypeInteger:
		if v.Integer, err = parseInt64(line); err != nil {
			return Value{}, fmt.Errorf("%w: invalid integer %q", ErrProtocol, line)
		}

	case TypeBulkString:
		size, err := length(line, MaxBulkLen)
		if err != nil {
			return Value{}, err
		}
		if size < 0 {
			v.IsNull = true
			break
		}
		if v.Data, err = r.payload(size); err != nil {
			return Value{}, err
		}

	case TypeArray:
		count, err := length(line, MaxArrayLen)
		if err != nil {
			return Value{}, err
		}
		if count < 0 {
			v.IsNull = true
			break
		}
		v.Array = make([]Value, count)
		for i := range v.Array {
			if v.Array[i], err = r.ReadNext(); err != nil {
				return Value{}, unexpectedEOF(err)
			}
		}
	}

	return v, nil
}

// header reads the type byte and the rest of its CRLF terminated line
func (r *Reader) header() (ValueType, []byte, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return 0, nil, err
	}

	kind := ValueType(b)
	switch kind {
	case TypeSimpleString, TypeError, TypeInteger, TypeBulkString, TypeArray:
	default:
		return 0, nil, fmt.Errorf("%w: unknown type byte %q", ErrProtocol, b)
	}

	line, err := r.br.ReadBytes('\n')
	if err != nil {
		return 0, nil, fmt.Errorf("read %c line: %w", b, unexpectedEOF(err))
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return 0, nil, fmt.Errorf("%w: line not terminated by CRLF", ErrProtocol)
	}
	return kind, line[: len(line)-2 : len(line)-2], nil
}

// payload reads a bulk body of size bytes plus its trailing CRLF
func (r *Reader) payload(size int64) ([]byte, error) {
	data := make([]byte, size+2)
	if _, err := io.ReadFull(r.br, data); err != nil {
		return nil, fmt.Errorf("read bulk body: %w", unexpectedEOF(err))
	}
	if data[size] != '\r' || data[size+1] != '\n' {
		return nil, fmt.Errorf("%w: bulk string not terminated by CRLF", ErrProtocol)
	}
	return data[:size:size], nil
}

// length parses a bulk or array header. -1 is the null marker and is
// returned as is; any other negative value is rejected.
func length(line []byte, limit int64) (int64, error) {
	n, err := parseInt64(line)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid length %q", ErrProtocol, line)
	}
	if n < -1 || n > limit {
		return 0, fmt.Errorf("%w: length %d out of range", ErrProtocol, n)
	}
	return n, nil
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
