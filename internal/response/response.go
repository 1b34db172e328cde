package response

import (
	"errors"
	"fmt"
	"io"
)

// Protocol is the version written on every status line. Bodies are
// terminated by closing the connection, which is HTTP/1.0 framing.
const Protocol = "HTTP/1.0"

var (
	ErrStatusWritten    = errors.New("status line already written")
	ErrStatusNotWritten = errors.New("must write status line before body")
)

// writerState tracks what's been written so far
type writerState int

const (
	stateStart writerState = iota
	stateStatusWritten
	stateBodyWritten
)

// Writer writes HTTP responses to an io.Writer.
//
// The status line is followed directly by the empty line ending the header
// block; no headers are sent. The body may then be written in any number
// of pieces, each going straight to the underlying writer.
type Writer struct {
	w          io.Writer
	state      writerState
	statusCode StatusCode
	written    int64
	hadError   bool
}

// NewWriter creates a new response writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:     w,
		state: stateStart,
	}
}

func statusLine(code StatusCode) string {
	return fmt.Sprintf("%s %d %s\r\n\r\n", Protocol, code, StatusText(code))
}

// WriteStatusLine writes the status line and the empty header block.
func (w *Writer) WriteStatusLine(code StatusCode) error {
	if w.state != stateStart {
		return ErrStatusWritten
	}

	w.statusCode = code
	w.state = stateStatusWritten
	return w.write([]byte(statusLine(code)))
}

// WriteBody writes a piece of the body.
func (w *Writer) WriteBody(data []byte) error {
	if w.state == stateStart {
		return ErrStatusNotWritten
	}

	w.state = stateBodyWritten
	if len(data) == 0 {
		return nil
	}
	return w.write(data)
}

// WriteString is WriteBody for strings.
func (w *Writer) WriteString(s string) error {
	return w.WriteBody([]byte(s))
}

// Write implements io.Writer on top of WriteBody.
func (w *Writer) Write(p []byte) (int, error) {
	if err := w.WriteBody(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// writeWhole sends status line and body in a single write.
func (w *Writer) writeWhole(code StatusCode, body string) error {
	if w.state != stateStart {
		return ErrStatusWritten
	}

	w.statusCode = code
	w.state = stateBodyWritten
	return w.write([]byte(statusLine(code) + body))
}

func (w *Writer) write(p []byte) error {
	n, err := w.w.Write(p)
	w.written += int64(n)
	if err != nil {
		w.hadError = true
		return err
	}
	return nil
}

// State tracking methods for logging and recovery

func (w *Writer) HadError() bool {
	return w.hadError
}

// Started reports whether any part of the response has been written.
func (w *Writer) Started() bool {
	return w.state != stateStart
}

func (w *Writer) StatusCode() StatusCode {
	return w.statusCode
}

// BytesWritten counts every byte handed to the underlying writer,
// status line included.
func (w *Writer) BytesWritten() int64 {
	return w.written
}
