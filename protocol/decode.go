package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// MaxInlineLen bounds a telnet-style request line
const MaxInlineLen = 64 * 1024

var (
	// ErrIncomplete means the buffer holds the start of a valid frame but not
	// all of it. The caller should read more bytes and decode again.
	ErrIncomplete = errors.New("protocol: incomplete frame")

	// ErrProtocol marks framing that can never become valid
	ErrProtocol = errors.New("protocol: malformed frame")
)

// Decode parses one request from the front of buf and reports how many bytes
// it consumed.
//
// Blank lines in front of a request are skipped and counted in n. An
// incomplete frame yields ErrIncomplete, with n covering only the skipped
// blank lines; the caller drops those bytes and keeps the rest. Malformed
// framing yields Unrecognized and consumes the whole buffer, since the frame
// boundary can no longer be trusted; the connection itself stays usable.
// Arguments in the returned Command never alias buf.
func Decode(buf []byte) (cmd Command, n int, err error) {
	skipped := skipBlankLines(buf)
	cmd, n, err = decodeFrame(buf[skipped:])
	return cmd, skipped + n, err
}

func decodeFrame(buf []byte) (Command, int, error) {
	if len(buf) == 0 {
		return nil, 0, ErrIncomplete
	}

	if buf[0] != byte(TypeArray) {
		return decodeInline(buf)
	}

	args, n, err := ReadArray(buf)
	switch {
	case errors.Is(err, ErrIncomplete):
		return nil, 0, ErrIncomplete
	case err != nil:
		return Unrecognized{}, len(buf), nil
	}

	return Parse(args), n, nil
}

// ReadArray splits a RESP array of bulk strings at the front of buf into its
// elements. Errors wrap either ErrIncomplete or ErrProtocol.
func ReadArray(buf []byte) ([][]byte, int, error) {
	if len(buf) == 0 {
		return nil, 0, ErrIncomplete
	}
	if buf[0] != byte(TypeArray) {
		return nil, 0, fmt.Errorf("%w: expected '*', got %q", ErrProtocol, buf[0])
	}

	count, pos, err := scanInt(buf, 1)
	if err != nil {
		return nil, 0, err
	}
	if count <= 0 {
		// empty and null arrays carry no command
		return nil, pos, nil
	}
	if count > MaxArrayLen {
		return nil, 0, fmt.Errorf("%w: array length %d exceeds limit", ErrProtocol, count)
	}

	args := make([][]byte, 0, min(count, 16))
	for i := int64(0); i < count; i++ {
		if pos >= len(buf) {
			return nil, 0, ErrIncomplete
		}
		if buf[pos] != byte(TypeBulkString) {
			return nil, 0, fmt.Errorf("%w: expected '$' at offset %d, got %q", ErrProtocol, pos, buf[pos])
		}

		size, next, err := scanInt(buf, pos+1)
		if err != nil {
			return nil, 0, err
		}
		if size < 0 || size > MaxBulkLen {
			return nil, 0, fmt.Errorf("%w: invalid bulk length %d", ErrProtocol, size)
		}

		end := next + int(size)
		if end+2 > len(buf) {
			return nil, 0, ErrIncomplete
		}
		if buf[end] != '\r' || buf[end+1] != '\n' {
			return nil, 0, fmt.Errorf("%w: bulk string not terminated by CRLF", ErrProtocol)
		}

		args = append(args, bytes.Clone(buf[next:end]))
		pos = end + 2
	}

	return args, pos, nil
}

// scanInt reads a CRLF terminated decimal starting at pos and returns the
// offset just past the terminator. Partial lines that could still turn into a
// valid integer report ErrIncomplete.
func scanInt(buf []byte, pos int) (int64, int, error) {
	i := bytes.IndexByte(buf[pos:], '\n')
	if i < 0 {
		partial := buf[pos:]
		if len(partial) > 21 || !isIntPrefix(bytes.TrimSuffix(partial, []byte{'\r'})) {
			return 0, 0, fmt.Errorf("%w: invalid length line %q", ErrProtocol, partial)
		}
		return 0, 0, ErrIncomplete
	}

	line := buf[pos : pos+i]
	if len(line) == 0 || line[len(line)-1] != '\r' {
		return 0, 0, fmt.Errorf("%w: length line not terminated by CRLF", ErrProtocol)
	}

	n, err := parseInt64(line[:len(line)-1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid length %q", ErrProtocol, line[:len(line)-1])
	}

	return n, pos + i + 1, nil
}

// parseInt64 parses a signed decimal without allocating
func parseInt64(b []byte) (int64, error) {
	neg := len(b) > 0 && b[0] == '-'
	if neg {
		b = b[1:]
	}
	if len(b) == 0 {
		return 0, strconv.ErrSyntax
	}

	var n int64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, strconv.ErrSyntax
		}
		d := int64(c - '0')
		if n > (1<<63-1-d)/10 {
			return 0, strconv.ErrRange
		}
		n = n*10 + d
	}

	if neg {
		return -n, nil
	}
	return n, nil
}

func isIntPrefix(b []byte) bool {
	for i, c := range b {
		if c == '-' && i == 0 {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// skipBlankLines returns the length of the run of complete whitespace-only
// lines at the front of buf
func skipBlankLines(buf []byte) int {
	pos := 0
	for pos < len(buf) && buf[pos] != byte(TypeArray) {
		i := bytes.IndexByte(buf[pos:], '\n')
		if i < 0 || len(bytes.TrimSpace(buf[pos:pos+i])) > 0 {
			break
		}
		pos += i + 1
	}
	return pos
}

// decodeInline handles the telnet form: one line of whitespace separated
// arguments. Lines longer than MaxInlineLen are dropped as Unrecognized.
func decodeInline(buf []byte) (Command, int, error) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		if len(buf) > MaxInlineLen {
			return Unrecognized{}, len(buf), nil
		}
		return nil, 0, ErrIncomplete
	}

	fields := bytes.Fields(buf[:i])
	args := make([][]byte, len(fields))
	for j, f := range fields {
		args[j] = bytes.Clone(f)
	}

	return Parse(args), i + 1, nil
}
