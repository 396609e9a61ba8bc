package protocol

import (
	"strconv"
	"strings"
)

const (
	// CRLF is the RESP line terminator
	CRLF = "\r\n"

	// MaxBulkLen is the largest bulk string accepted from a peer (512MB)
	MaxBulkLen = 512 * 1024 * 1024

	// MaxArrayLen is the largest element count accepted in one array
	MaxArrayLen = 1024 * 1024
)

// ValueType is the leading byte of a RESP2 value
type ValueType byte

const (
	TypeSimpleString ValueType = '+'
	TypeError        ValueType = '-'
	TypeInteger      ValueType = ':'
	TypeBulkString   ValueType = '$'
	TypeArray        ValueType = '*'
)

// Value is a reply read back from a peer by Reader. Requests never take
// this form: Decode turns them into a Command.
type Value struct {
	Type    ValueType
	Data    []byte
	Integer int64
	Array   []Value
	IsNull  bool
}

// IsError reports whether the peer answered with an error reply
func (v Value) IsError() bool {
	return v.Type == TypeError
}

// Text returns the payload of a simple string, error or bulk string
func (v Value) Text() string {
	return string(v.Data)
}

// String renders the value for logs and error messages. Arrays print as
// [a, b, c] and nulls as (nil).
func (v Value) String() string {
	var sb strings.Builder
	v.render(&sb)
	return sb.String()
}

func (v Value) render(sb *strings.Builder) {
	if v.IsNull {
		sb.WriteString("(nil)")
		return
	}

	switch v.Type {
	case TypeInteger:
		sb.WriteString(strconv.FormatInt(v.Integer, 10))
	case TypeArray:
		sb.WriteByte('[')
		for i, item := range v.Array {
			if i > 0 {
				sb.WriteString(", ")
			}
			item.render(sb)
		}
		sb.WriteByte(']')
	default:
		sb.Write(v.Data)
	}
}
