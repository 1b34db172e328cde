package request

import (
	"strings"

	"github.com/Brownie44l1/mdb-httpd/internal/headers"
)

// Absent stands in for a request-line token the client did not send.
const Absent = "(null)"

// Request is a parsed request line plus the (unused) header block.
type Request struct {
	Method  string
	URI     string // as sent by the client
	Version string

	// Path is the routable URI. Validate appends index.html to it when
	// URI ends with a slash; URI itself is left untouched.
	Path string

	// RawLine is the request line with its terminator removed.
	RawLine string
	Headers *headers.Headers

	// Malformed is set when any of the three tokens was absent.
	Malformed bool
	// Incomplete is set when the stream ended before the blank line
	// terminating the header block.
	Incomplete bool

	readErr error
}

func newRequest() *Request {
	return &Request{
		Method:  Absent,
		URI:     Absent,
		Version: Absent,
		Path:    Absent,
		Headers: headers.NewHeaders(),
	}
}

// RequestLine renders "<method> <uri> <version>" for the access log.
func (r *Request) RequestLine() string {
	return r.Method + " " + r.URI + " " + r.Version
}

// ReadError returns the error that cut the request short, if any.
// It is io.EOF for a client that closed its side early.
func (r *Request) ReadError() error {
	return r.readErr
}

// IsHTTP10 reports whether the client spoke HTTP/1.0.
func (r *Request) IsHTTP10() bool {
	return r.Version == "HTTP/1.0"
}

// IsHTTP11 reports whether the client spoke HTTP/1.1.
func (r *Request) IsHTTP11() bool {
	return r.Version == "HTTP/1.1"
}

// setRequestLine splits line on whitespace into method, URI and version.
// Extra tokens are ignored.
func (r *Request) setRequestLine(line string) {
	r.RawLine = strings.TrimRight(line, "\r\n")

	tokens := strings.FieldsFunc(line, isTokenSeparator)
	fields := []*string{&r.Method, &r.URI, &r.Version}
	for i, f := range fields {
		if i < len(tokens) {
			*f = tokens[i]
			continue
		}
		*f = Absent
		r.Malformed = true
	}
	r.Path = r.URI
}

func isTokenSeparator(c rune) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
