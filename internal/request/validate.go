package request

import (
	"errors"
	"strings"
)

var (
	ErrIncompleteRequest    = errors.New("incomplete request")
	ErrUnsupportedMethod    = errors.New("unsupported method")
	ErrUnsupportedVersion   = errors.New("unsupported HTTP version")
	ErrInvalidPath          = errors.New("invalid request path")
	ErrMalformedRequestLine = errors.New("malformed request line")
)

const indexFile = "index.html"

// Validate applies the protocol and path checks in order and returns the
// first failure. On success it rewrites Path for directory URIs.
func Validate(req *Request) error {
	if req.Incomplete {
		return ErrIncompleteRequest
	}

	if req.Method != "GET" {
		return ErrUnsupportedMethod
	}

	if !isValidVersion(req.Version) {
		return ErrUnsupportedVersion
	}

	if !isValidPath(req.URI) {
		return ErrInvalidPath
	}

	if req.Malformed {
		return ErrMalformedRequestLine
	}

	req.Path = req.URI
	if strings.HasSuffix(req.Path, "/") {
		req.Path += indexFile
	}
	return nil
}

// isValidVersion checks if HTTP version is supported
func isValidVersion(version string) bool {
	return version == "HTTP/1.0" || version == "HTTP/1.1"
}

// isValidPath rejects anything outside origin-form and any parent
// directory segment that could climb out of the web root.
func isValidPath(uri string) bool {
	if !strings.HasPrefix(uri, "/") {
		return false
	}
	if strings.Contains(uri, "/../") || strings.HasSuffix(uri, "/..") {
		return false
	}
	return true
}
