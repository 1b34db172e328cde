package logger

import (
	"fmt"
	"io"
	"sync"
)

// AccessLog writes one line per handled request:
//
//	<clientIP> "<method> <uri> <version>" <code> <reason>
//
// Lookup queries are prefixed with "looking up [<key>]: ".
type AccessLog struct {
	mu  sync.Mutex
	out io.Writer
}

// NewAccessLog creates an access log writing to out.
func NewAccessLog(out io.Writer) *AccessLog {
	return &AccessLog{out: out}
}

// Entry is a single access log record.
type Entry struct {
	ClientIP    string
	RequestLine string
	StatusCode  int
	Reason      string
	LookupKey   string
	IsLookup    bool
}

// Format renders the entry without a trailing newline.
func (e Entry) Format() string {
	line := fmt.Sprintf("%s \"%s\" %d %s", e.ClientIP, e.RequestLine, e.StatusCode, e.Reason)
	if e.IsLookup {
		return fmt.Sprintf("looking up [%s]: %s", e.LookupKey, line)
	}
	return line
}

// Record writes the entry. Write errors are ignored.
func (a *AccessLog) Record(e Entry) {
	if a == nil || a.out == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	io.WriteString(a.out, e.Format()+"\n")
}
