package request

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Size limits
const (
	DefaultMaxLineLength  = 8192 // request line and each header line
	DefaultMaxHeaderLines = 100
)

var (
	ErrLineTooLong    = errors.New("line too long")
	ErrTooManyHeaders = errors.New("too many header lines")
)

// Limits bounds what Parse is willing to read from a client.
type Limits struct {
	MaxLineLength  int
	MaxHeaderLines int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxLineLength:  DefaultMaxLineLength,
		MaxHeaderLines: DefaultMaxHeaderLines,
	}
}

func (l Limits) withDefaults() Limits {
	if l.MaxLineLength <= 0 {
		l.MaxLineLength = DefaultMaxLineLength
	}
	if l.MaxHeaderLines <= 0 {
		l.MaxHeaderLines = DefaultMaxHeaderLines
	}
	return l
}

// Parse reads a request line and the header block from r.
//
// A short request line never fails: missing tokens become Absent and the
// request is marked Malformed. A stream that ends (or fails) before the
// blank line yields an Incomplete request and a nil error. The only errors
// returned are limit violations; the partially parsed request is returned
// alongside them so it can still be logged.
func Parse(r *bufio.Reader, limits Limits) (*Request, error) {
	limits = limits.withDefaults()
	req := newRequest()

	line, err := readLine(r, limits.MaxLineLength)
	if errors.Is(err, ErrLineTooLong) {
		req.Malformed = true
		return req, fmt.Errorf("request line: %w", err)
	}
	req.setRequestLine(line)
	if err != nil {
		req.Incomplete = true
		req.readErr = err
		return req, nil
	}

	for {
		line, err := readLine(r, limits.MaxLineLength)
		if errors.Is(err, ErrLineTooLong) {
			return req, fmt.Errorf("header line: %w", err)
		}
		if err != nil {
			req.Incomplete = true
			req.readErr = err
			return req, nil
		}

		line = trimEOL(line)
		if line == "" {
			return req, nil
		}

		if req.Headers.Len() >= limits.MaxHeaderLines {
			return req, ErrTooManyHeaders
		}
		// Header contents are not used for routing; bad lines are tolerated.
		_ = req.Headers.ParseLine(line)
	}
}

// readLine reads up to and including the next '\n'. It returns the bytes
// read so far together with the read error when the stream ends first, and
// ErrLineTooLong once more than max bytes are buffered without a newline.
func readLine(r *bufio.Reader, max int) (string, error) {
	var line []byte
	for {
		frag, err := r.ReadSlice('\n')
		if len(line)+len(frag) > max {
			return "", ErrLineTooLong
		}
		line = append(line, frag...)

		switch {
		case err == nil:
			return string(line), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			return string(line), io.EOF
		default:
			return string(line), fmt.Errorf("read: %w", err)
		}
	}
}

func trimEOL(line string) string {
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
		if n > 0 && line[n-1] == '\r' {
			n--
		}
	}
	return line[:n]
}
