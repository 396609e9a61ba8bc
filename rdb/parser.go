package rdb

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// RDB opcodes and value types
const (
	OpcodeAux      = 0xFA
	OpcodeResizeDB = 0xFB
	OpcodeExpiryMs = 0xFC
	OpcodeExpiry   = 0xFD
	OpcodeSelectDB = 0xFE
	OpcodeEOF      = 0xFF

	TypeString = 0
)

// string encodings flagged by the top two bits of a length byte
const (
	encInt8 = iota
	encInt16
	encInt32
	encLZF
)

const (
	headerLen = 9
	magic     = "REDIS"

	// maxStringLen bounds a single string so a corrupt length cannot
	// trigger a huge allocation
	maxStringLen = 512 * 1024 * 1024
)

var (
	// ErrInvalidHeader means the data does not start with REDIS<4 digits>
	ErrInvalidHeader = errors.New("rdb: invalid header")

	// ErrUnsupportedType is returned for value types other than string
	ErrUnsupportedType = errors.New("rdb: unsupported value type")

	// ErrUnsupportedEncoding is returned for unknown special string encodings
	ErrUnsupportedEncoding = errors.New("rdb: unsupported string encoding")

	// ErrMissingEOF means the data ended without the 0xFF marker
	ErrMissingEOF = errors.New("rdb: missing EOF marker")
)

// DecodeError records where decoding stopped and why
type DecodeError struct {
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("rdb: decoding stopped at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Handler receives the records of an RDB stream as they are decoded. OnKey
// is only called for complete records.
type Handler interface {
	OnDatabase(index int) error
	OnAux(key, value []byte) error
	OnKey(db int, key, value []byte, expiry *time.Time) error
	OnEnd() error
}

// Parser decodes an RDB stream record by record
type Parser struct {
	br      *bufio.Reader
	handler Handler
	offset  int64
	version int
}

// NewParser creates a streaming parser feeding handler
func NewParser(r io.Reader, handler Handler) *Parser {
	return &Parser{
		br:      bufio.NewReader(r),
		handler: handler,
	}
}

// Version returns the format version read from the header
func (p *Parser) Version() int {
	return p.version
}

// Parse reads the whole stream. Handler errors are returned as is; format
// problems are wrapped in a *DecodeError carrying the offending offset.
func (p *Parser) Parse() error {
	if err := p.readHeader(); err != nil {
		return err
	}

	db := 0
	seenDB := false
	var expiry *time.Time

	for {
		start := p.offset
		opcode, err := p.readByte()
		if err != nil {
			return p.fail(start, ErrMissingEOF)
		}

		switch opcode {
		case OpcodeEOF:
			// the checksum is optional in old versions and not verified
			p.skip(8)
			return p.handler.OnEnd()

		case OpcodeSelectDB:
			index, err := p.readLength()
			if err != nil {
				return p.fail(start, fmt.Errorf("database selector: %w", err))
			}
			db = int(index)
			seenDB = true
			if err := p.handler.OnDatabase(db); err != nil {
				return err
			}

		case OpcodeResizeDB:
			if _, err := p.readLength(); err != nil {
				return p.fail(start, fmt.Errorf("resize hint: %w", err))
			}
			if _, err := p.readLength(); err != nil {
				return p.fail(start, fmt.Errorf("resize hint: %w", err))
			}

		case OpcodeAux:
			key, err := p.readString()
			if err != nil {
				return p.fail(start, fmt.Errorf("aux key: %w", err))
			}
			value, err := p.readString()
			if err != nil {
				return p.fail(start, fmt.Errorf("aux value for %q: %w", key, err))
			}
			if err := p.handler.OnAux(key, value); err != nil {
				return err
			}

		case OpcodeExpiryMs:
			var buf [8]byte
			if err := p.readFull(buf[:]); err != nil {
				return p.fail(start, fmt.Errorf("millisecond expiry: %w", err))
			}
			t := time.UnixMilli(int64(binary.LittleEndian.Uint64(buf[:])))
			expiry = &t

		case OpcodeExpiry:
			var buf [4]byte
			if err := p.readFull(buf[:]); err != nil {
				return p.fail(start, fmt.Errorf("second expiry: %w", err))
			}
			t := time.Unix(int64(binary.LittleEndian.Uint32(buf[:])), 0)
			expiry = &t

		case TypeString:
			key, err := p.readString()
			if err != nil {
				return p.fail(start, fmt.Errorf("key: %w", err))
			}
			value, err := p.readString()
			if err != nil {
				return p.fail(start, fmt.Errorf("value for key %q: %w", key, err))
			}
			if err := p.handler.OnKey(db, key, value, expiry); err != nil {
				return err
			}
			expiry = nil

		default:
			if seenDB {
				return p.fail(start, fmt.Errorf("%w: 0x%02x", ErrUnsupportedType, opcode))
			}
			// newer metadata records (functions, module aux) sit before the
			// first database and are skipped wholesale
			if err := p.skipToSelector(); err != nil {
				return p.fail(start, fmt.Errorf("%w: 0x%02x with no database selector after it", ErrUnsupportedType, opcode))
			}
		}
	}
}

// skipToSelector discards input up to, not including, the next 0xFE
func (p *Parser) skipToSelector() error {
	for {
		b, err := p.readByte()
		if err != nil {
			return err
		}
		if b == OpcodeSelectDB {
			p.offset--
			return p.br.UnreadByte()
		}
	}
}

func (p *Parser) readHeader() error {
	var header [headerLen]byte
	if err := p.readFull(header[:]); err != nil {
		return ErrInvalidHeader
	}
	if string(header[:len(magic)]) != magic {
		return ErrInvalidHeader
	}
	for _, c := range header[len(magic):] {
		if c < '0' || c > '9' {
			return ErrInvalidHeader
		}
	}
	p.version, _ = strconv.Atoi(string(header[len(magic):]))
	return nil
}

func (p *Parser) fail(offset int64, err error) error {
	return &DecodeError{Offset: offset, Err: err}
}

func (p *Parser) readByte() (byte, error) {
	b, err := p.br.ReadByte()
	if err != nil {
		return 0, err
	}
	p.offset++
	return b, nil
}

func (p *Parser) readFull(buf []byte) error {
	n, err := io.ReadFull(p.br, buf)
	p.offset += int64(n)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

func (p *Parser) skip(n int) {
	skipped, _ := p.br.Discard(n)
	p.offset += int64(skipped)
}

// readLength reads a size-encoded integer: 6, 14, 32 or 64 bits wide
// depending on the first byte.
func (p *Parser) readLength() (uint64, error) {
	length, special, err := p.readLengthOrEncoding()
	if err != nil {
		return 0, err
	}
	if special {
		return 0, fmt.Errorf("%w: 0x%02x where a length was expected", ErrUnsupportedEncoding, 0xC0|length)
	}
	return length, nil
}

// readLengthOrEncoding returns either a length or, when the top two bits are
// both set, the special encoding number held in the low six bits.
func (p *Parser) readLengthOrEncoding() (uint64, bool, error) {
	b, err := p.readByte()
	if err != nil {
		return 0, false, io.ErrUnexpectedEOF
	}

	switch b >> 6 {
	case 0:
		return uint64(b & 0x3F), false, nil
	case 1:
		next, err := p.readByte()
		if err != nil {
			return 0, false, io.ErrUnexpectedEOF
		}
		return uint64(b&0x3F)<<8 | uint64(next), false, nil
	case 2:
		switch b {
		case 0x80:
			var buf [4]byte
			if err := p.readFull(buf[:]); err != nil {
				return 0, false, err
			}
			return uint64(binary.BigEndian.Uint32(buf[:])), false, nil
		case 0x81:
			var buf [8]byte
			if err := p.readFull(buf[:]); err != nil {
				return 0, false, err
			}
			return binary.BigEndian.Uint64(buf[:]), false, nil
		default:
			return 0, false, fmt.Errorf("%w: length byte 0x%02x", ErrUnsupportedEncoding, b)
		}
	default:
		return uint64(b & 0x3F), true, nil
	}
}

// readString reads a length-prefixed string, an integer stored as a string
// or an LZF compressed string
func (p *Parser) readString() ([]byte, error) {
	length, special, err := p.readLengthOrEncoding()
	if err != nil {
		return nil, err
	}

	if !special {
		return p.readBytes(length)
	}

	switch length {
	case encInt8:
		b, err := p.readByte()
		if err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		return strconv.AppendInt(nil, int64(int8(b)), 10), nil
	case encInt16:
		var buf [2]byte
		if err := p.readFull(buf[:]); err != nil {
			return nil, err
		}
		return strconv.AppendInt(nil, int64(int16(binary.LittleEndian.Uint16(buf[:]))), 10), nil
	case encInt32:
		var buf [4]byte
		if err := p.readFull(buf[:]); err != nil {
			return nil, err
		}
		return strconv.AppendInt(nil, int64(int32(binary.LittleEndian.Uint32(buf[:]))), 10), nil
	case encLZF:
		compressedLen, err := p.readLength()
		if err != nil {
			return nil, err
		}
		rawLen, err := p.readLength()
		if err != nil {
			return nil, err
		}
		if rawLen > maxStringLen {
			return nil, fmt.Errorf("compressed string expands to %d bytes", rawLen)
		}
		if rawLen > compressedLen*maxLZFRatio {
			return nil, fmt.Errorf("%w: %d compressed bytes cannot expand to %d", errLZF, compressedLen, rawLen)
		}
		compressed, err := p.readBytes(compressedLen)
		if err != nil {
			return nil, err
		}
		return lzfDecompress(compressed, int(rawLen))
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedEncoding, 0xC0|length)
	}
}

// readBytes reads exactly n bytes. The buffer grows with the data actually
// present so a corrupt length fails at end of input rather than up front.
func (p *Parser) readBytes(n uint64) ([]byte, error) {
	if n > maxStringLen {
		return nil, fmt.Errorf("string length %d exceeds limit", n)
	}

	var buf bytes.Buffer
	buf.Grow(int(min(n, 64*1024)))
	copied, err := io.CopyN(&buf, p.br, int64(n))
	p.offset += copied
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf.Bytes(), nil
}
