package protocol

import (
	"bufio"
	"io"
	"strconv"
)

// Writer buffers RESP output for one connection
type Writer struct {
	bw      *bufio.Writer
	scratch []byte
}

// NewWriter creates a new RESP protocol writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		bw:      bufio.NewWriter(w),
		scratch: make([]byte, 0, 512),
	}
}

// WriteResponse encodes a server reply
func (w *Writer) WriteResponse(r Response) error {
	w.scratch = AppendResponse(w.scratch[:0], r)
	_, err := w.bw.Write(w.scratch)
	return err
}

// WriteCommand writes a command as a RESP array of bulk strings
func (w *Writer) WriteCommand(cmd string, args ...string) error {
	if _, err := w.bw.WriteString("*" + strconv.Itoa(1+len(args)) + CRLF); err != nil {
		return err
	}
	if err := w.writeBulkString(cmd); err != nil {
		return err
	}
	for _, arg := range args {
		if err := w.writeBulkString(arg); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeBulkString(s string) error {
	if _, err := w.bw.WriteString("$" + strconv.Itoa(len(s)) + CRLF); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(s); err != nil {
		return err
	}
	_, err := w.bw.WriteString(CRLF)
	return err
}

// Buffered returns the number of bytes waiting for Flush
func (w *Writer) Buffered() int {
	return w.bw.Buffered()
}

// Flush flushes any buffered data to the underlying writer
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// Reset discards buffered output and switches to a new underlying writer
func (w *Writer) Reset(writer io.Writer) {
	w.bw.Reset(writer)
}
