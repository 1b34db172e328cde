package server

import (
	"context"

	"github.com/Brownie44l1/mdb-httpd/internal/logger"
	"github.com/Brownie44l1/mdb-httpd/internal/request"
	"github.com/Brownie44l1/mdb-httpd/internal/response"
)

// Context carries one request and its response writer through the
// handler chain.
type Context struct {
	Request  *request.Request
	Response *response.Writer
	ClientIP string
	Logger   logger.Logger

	ctx       context.Context
	lookupKey string
	isLookup  bool
}

// NewContext creates a context outside the server loop, mainly for tests.
func NewContext(req *request.Request, resp *response.Writer) *Context {
	return &Context{
		Request:  req,
		Response: resp,
		ClientIP: "-",
		Logger:   logger.NullLogger{},
		ctx:      context.Background(),
	}
}

// Context is cancelled when the server is forced to stop.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Method returns the HTTP method
func (c *Context) Method() string {
	return c.Request.Method
}

// Path returns the routable path (index.html already appended).
func (c *Context) Path() string {
	return c.Request.Path
}

// URI returns the URI exactly as the client sent it.
func (c *Context) URI() string {
	return c.Request.URI
}

// SetLookupKey marks the request as a backend lookup for the access log.
func (c *Context) SetLookupKey(key string) {
	c.lookupKey = key
	c.isLookup = true
}

func (c *Context) LookupKey() (string, bool) {
	return c.lookupKey, c.isLookup
}

// Response helpers

// HTML sends a complete HTML page in one write.
func (c *Context) HTML(code response.StatusCode, fragment string) error {
	return c.Response.HTMLResponse(code, fragment)
}

// Error sends the standard error page for code.
func (c *Context) Error(code response.StatusCode) error {
	return c.Response.ErrorResponse(code)
}

// Status starts a streamed response.
func (c *Context) Status(code response.StatusCode) error {
	return c.Response.WriteStatusLine(code)
}

// WriteString streams a piece of the body.
func (c *Context) WriteString(s string) error {
	return c.Response.WriteString(s)
}
