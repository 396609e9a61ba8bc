package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Response is a reply produced by the dispatcher. Like Command the set of
// variants is closed.
type Response interface {
	response()
}

// SimpleString is written as +<text>
type SimpleString string

// Bulk is a binary-safe string; a nil Bulk is still an empty string, use
// NullBulk for the absent value.
type Bulk []byte

// NullBulk is the absent value, $-1
type NullBulk struct{}

// Array is a flat array of bulk strings
type Array [][]byte

// Error is written as -<Kind> <Message>
type Error struct {
	Kind    string
	Message string
}

func (SimpleString) response() {}
func (Bulk) response()         {}
func (NullBulk) response()     {}
func (Array) response()        {}
func (Error) response()        {}

// Well known replies
var (
	OK             Response = SimpleString("OK")
	Pong           Response = SimpleString("PONG")
	UnknownCommand Response = Error{Kind: "ERR", Message: "unknown command"}
)

// Errorf builds a generic ERR reply
func Errorf(format string, args ...any) Error {
	return Error{Kind: "ERR", Message: fmt.Sprintf(format, args...)}
}

func (e Error) String() string {
	if e.Kind == "" {
		return e.Message
	}
	return e.Kind + " " + e.Message
}

// BulkString is a convenience for string payloads
func BulkString(s string) Bulk {
	return Bulk(s)
}

// StringArray builds an Array from strings
func StringArray(items ...string) Array {
	arr := make(Array, len(items))
	for i, s := range items {
		arr[i] = []byte(s)
	}
	return arr
}

// Encode returns the wire form of r
func Encode(r Response) []byte {
	return AppendResponse(nil, r)
}

// AppendResponse appends the wire form of r to dst. Length headers count
// bytes, never characters.
func AppendResponse(dst []byte, r Response) []byte {
	switch v := r.(type) {
	case SimpleString:
		dst = append(dst, byte(TypeSimpleString))
		dst = appendLine(dst, string(v))
	case Error:
		dst = append(dst, byte(TypeError))
		dst = appendLine(dst, v.String())
	case Bulk:
		dst = appendBulk(dst, v)
	case NullBulk:
		dst = append(dst, "$-1\r\n"...)
	case Array:
		dst = append(dst, byte(TypeArray))
		dst = strconv.AppendInt(dst, int64(len(v)), 10)
		dst = append(dst, CRLF...)
		for _, item := range v {
			dst = appendBulk(dst, item)
		}
	}
	return dst
}

func appendBulk(dst, data []byte) []byte {
	dst = append(dst, byte(TypeBulkString))
	dst = strconv.AppendInt(dst, int64(len(data)), 10)
	dst = append(dst, CRLF...)
	dst = append(dst, data...)
	return append(dst, CRLF...)
}

// appendLine writes a single-line payload; embedded line breaks would end
// the frame early so they are flattened to spaces.
func appendLine(dst []byte, s string) []byte {
	if strings.ContainsAny(s, "\r\n") {
		s = strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
	}
	dst = append(dst, s...)
	return append(dst, CRLF...)
}
