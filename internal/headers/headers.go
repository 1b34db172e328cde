package headers

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoColon     = errors.New("malformed header: no colon")
	ErrNameSpace   = errors.New("malformed header: whitespace in name")
	ErrLineFolding = errors.New("obsolete line folding not supported")
	ErrInvalidName = errors.New("invalid character in header name")
)

// Headers holds the request header block keyed by lower-cased name.
// The server never routes on header values; they are kept for diagnostics.
type Headers struct {
	headers map[string][]string
	lines   int
}

func NewHeaders() *Headers {
	return &Headers{
		headers: make(map[string][]string),
	}
}

// Get returns the first value for a header
func (h *Headers) Get(key string) (string, bool) {
	values := h.headers[strings.ToLower(key)]
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// GetAll returns all values for a header
func (h *Headers) GetAll(key string) []string {
	return h.headers[strings.ToLower(key)]
}

// Add appends a value to a header
func (h *Headers) Add(key, value string) {
	key = strings.ToLower(key)
	h.headers[key] = append(h.headers[key], value)
}

// Len returns the number of header lines seen, including rejected ones.
func (h *Headers) Len() int {
	return h.lines
}

// ParseLine parses a single header line with its terminator already removed.
// The line is counted even when it is rejected.
func (h *Headers) ParseLine(line string) error {
	h.lines++

	if line == "" {
		return fmt.Errorf("%w: empty line", ErrNoColon)
	}
	if line[0] == ' ' || line[0] == '\t' {
		return ErrLineFolding
	}

	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return ErrNoColon
	}
	if strings.ContainsAny(name, " \t") {
		return ErrNameSpace
	}
	for i := 0; i < len(name); i++ {
		if !isValidHeaderChar(name[i]) {
			return fmt.Errorf("%w: %q", ErrInvalidName, name[i])
		}
	}

	h.Add(name, strings.TrimSpace(value))
	return nil
}

func isValidHeaderChar(b byte) bool {
	return (b >= 'A' && b <= 'Z') ||
		(b >= 'a' && b <= 'z') ||
		(b >= '0' && b <= '9') ||
		b == '!' || b == '#' || b == '$' || b == '%' || b == '&' ||
		b == '\'' || b == '*' || b == '+' || b == '-' || b == '.' ||
		b == '^' || b == '_' || b == '`' || b == '|' || b == '~'
}
