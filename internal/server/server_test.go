package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/mdb-httpd/internal/logger"
	"github.com/Brownie44l1/mdb-httpd/internal/request"
	"github.com/Brownie44l1/mdb-httpd/internal/response"
)

// syncBuffer is a bytes.Buffer safe to read while the server writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Lines() []string {
	s := strings.TrimSuffix(b.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ReadTimeout = 2 * time.Second
	return cfg
}

// startServer serves handler on a loopback port until the test ends.
func startServer(t *testing.T, cfg Config, handler Handler, mws ...Middleware) (*Server, *syncBuffer) {
	t.Helper()
	access := &syncBuffer{}
	srv := New(cfg, handler, WithAccessLog(logger.NewAccessLog(access)))
	for _, mw := range mws {
		srv.Use(mw)
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		assert.ErrorIs(t, <-done, ErrServerClosed)
	})

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 5*time.Millisecond)
	return srv, access
}

// roundTrip sends raw and returns everything the server writes before
// closing the connection.
func roundTrip(t *testing.T, srv *Server, raw string) string {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(raw))
	require.NoError(t, err)

	out, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(out)
}

var hello = HandlerFunc(func(ctx *Context) {
	ctx.HTML(response.StatusOK, "hello "+ctx.Path())
})

func errorPage(code response.StatusCode) string {
	return fmt.Sprintf("HTTP/1.0 %d %s\r\n\r\n", code, code.Reason()) + response.ErrorBody(code)
}

func TestServeValidRequest(t *testing.T) {
	srv, access := startServer(t, testConfig(), hello)

	out := roundTrip(t, srv, "GET /a HTTP/1.1\r\nHost: x\r\n\r\n")

	assert.Equal(t, "HTTP/1.0 200 OK\r\n\r\n<html><body>hello /a</body></html>\r\n", out)
	require.Eventually(t, func() bool { return len(access.Lines()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, `127.0.0.1 "GET /a HTTP/1.1" 200 OK`, access.Lines()[0])
}

func TestRejectedRequests(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		code response.StatusCode
		log  string
	}{
		{"post", "POST / HTTP/1.0\r\n\r\n", response.StatusNotImplemented, `"POST / HTTP/1.0" 501 Not Implemented`},
		{"lowercase get", "get / HTTP/1.0\r\n\r\n", response.StatusNotImplemented, `"get / HTTP/1.0" 501 Not Implemented`},
		{"http2", "GET / HTTP/2.0\r\n\r\n", response.StatusNotImplemented, `"GET / HTTP/2.0" 501 Not Implemented`},
		{"missing version", "GET /\r\n\r\n", response.StatusNotImplemented, `"GET / (null)" 501 Not Implemented`},
		{"relative uri", "GET foo HTTP/1.0\r\n\r\n", response.StatusBadRequest, `"GET foo HTTP/1.0" 400 Bad Request`},
		{"dot dot", "GET /a/../b HTTP/1.0\r\n\r\n", response.StatusBadRequest, `"GET /a/../b HTTP/1.0" 400 Bad Request`},
		{"trailing dot dot", "GET /a/.. HTTP/1.0\r\n\r\n", response.StatusBadRequest, `"GET /a/.. HTTP/1.0" 400 Bad Request`},
		{"no blank line", "GET / HTTP/1.0\r\nHost: x\r\n", response.StatusBadRequest, `"GET / HTTP/1.0" 400 Bad Request`},
		{"empty", "", response.StatusBadRequest, `"(null) (null) (null)" 400 Bad Request`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			h := HandlerFunc(func(ctx *Context) {
				called = true
				hello(ctx)
			})
			srv, access := startServer(t, testConfig(), h)

			conn, err := net.Dial("tcp", srv.Addr().String())
			require.NoError(t, err)
			defer conn.Close()
			_, err = conn.Write([]byte(tt.raw))
			require.NoError(t, err)
			// Half-close so an unterminated request reads as EOF.
			require.NoError(t, conn.(*net.TCPConn).CloseWrite())

			out, err := io.ReadAll(conn)
			require.NoError(t, err)

			assert.Equal(t, errorPage(tt.code), string(out))
			assert.False(t, called)
			require.Eventually(t, func() bool { return len(access.Lines()) == 1 }, time.Second, 5*time.Millisecond)
			assert.Equal(t, "127.0.0.1 "+tt.log, access.Lines()[0])
		})
	}
}

func TestLineTooLong(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLineLength = 64
	srv, _ := startServer(t, cfg, hello)

	out := roundTrip(t, srv, "GET /"+strings.Repeat("a", 100)+" HTTP/1.0\r\n\r\n")

	assert.Equal(t, errorPage(response.StatusBadRequest), out)
}

func TestTooManyHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.MaxHeaderLines = 2
	srv, _ := startServer(t, cfg, hello)

	out := roundTrip(t, srv, "GET / HTTP/1.0\r\nA: 1\r\nB: 2\r\nC: 3\r\n\r\n")

	assert.Equal(t, errorPage(response.StatusBadRequest), out)
}

func TestReadTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ReadTimeout = 50 * time.Millisecond
	srv, _ := startServer(t, cfg, hello)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("GET / HTTP/1.0\r\n"))
	require.NoError(t, err)

	out, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, errorPage(response.StatusBadRequest), string(out))
}

func TestIndexAppendedForRouting(t *testing.T) {
	srv, access := startServer(t, testConfig(), hello)

	out := roundTrip(t, srv, "GET /docs/ HTTP/1.0\r\n\r\n")

	assert.Contains(t, out, "hello /docs/index.html")
	require.Eventually(t, func() bool { return len(access.Lines()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, `127.0.0.1 "GET /docs/ HTTP/1.0" 200 OK`, access.Lines()[0], "log keeps the original URI")
}

func TestHandlerWithoutResponse(t *testing.T) {
	srv, _ := startServer(t, testConfig(), HandlerFunc(func(*Context) {}))

	out := roundTrip(t, srv, "GET / HTTP/1.0\r\n\r\n")

	assert.Equal(t, errorPage(response.StatusInternalServerError), out)
}

func TestRecoveryMiddleware(t *testing.T) {
	panicky := HandlerFunc(func(ctx *Context) {
		panic("boom")
	})
	srv, access := startServer(t, testConfig(), panicky, RecoveryMiddleware(logger.NullLogger{}))

	out := roundTrip(t, srv, "GET / HTTP/1.0\r\n\r\n")

	assert.Equal(t, errorPage(response.StatusInternalServerError), out)
	require.Eventually(t, func() bool { return len(access.Lines()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, `127.0.0.1 "GET / HTTP/1.0" 500 Internal Server Error`, access.Lines()[0])
}

func TestRecoveryAfterResponseStarted(t *testing.T) {
	panicky := HandlerFunc(func(ctx *Context) {
		ctx.Status(response.StatusOK)
		ctx.WriteString("partial")
		panic("boom")
	})
	srv, _ := startServer(t, testConfig(), panicky, RecoveryMiddleware(logger.NullLogger{}))

	out := roundTrip(t, srv, "GET / HTTP/1.0\r\n\r\n")

	assert.Equal(t, "HTTP/1.0 200 OK\r\n\r\npartial", out)
}

func TestLoggingMiddleware(t *testing.T) {
	var diag syncBuffer
	l := logger.NewDefaultLogger(&diag, logger.LevelDebug)
	h := HandlerFunc(func(ctx *Context) {
		ctx.SetLookupKey("foo")
		hello(ctx)
	})
	srv, access := startServer(t, testConfig(), h, LoggingMiddleware(l))

	roundTrip(t, srv, "GET /mdb-lookup?key=foo HTTP/1.0\r\n\r\n")

	require.Eventually(t, func() bool { return len(access.Lines()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, `looking up [foo]: 127.0.0.1 "GET /mdb-lookup?key=foo HTTP/1.0" 200 OK`, access.Lines()[0])
	assert.Contains(t, diag.String(), "DEBUG: request handled")
	assert.Contains(t, diag.String(), "key=foo")
}

func TestMiddlewareOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return HandlerFunc(func(ctx *Context) {
				mu.Lock()
				order = append(order, name)
				mu.Unlock()
				next.ServeHTTP(ctx)
			})
		}
	}
	srv, _ := startServer(t, testConfig(), hello, mark("first"), mark("second"))

	roundTrip(t, srv, "GET / HTTP/1.0\r\n\r\n")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestSequentialWhenMaxConnectionsIsOne(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1

	release := make(chan struct{})
	var mu sync.Mutex
	active, peak := 0, 0
	h := HandlerFunc(func(ctx *Context) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		<-release
		mu.Lock()
		active--
		mu.Unlock()
		hello(ctx)
	})
	srv, _ := startServer(t, cfg, h)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			roundTrip(t, srv, "GET / HTTP/1.0\r\n\r\n")
		}()
	}
	for i := 0; i < 3; i++ {
		release <- struct{}{}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, peak)
}

func TestStats(t *testing.T) {
	srv, _ := startServer(t, testConfig(), hello)

	roundTrip(t, srv, "GET / HTTP/1.0\r\n\r\n")
	roundTrip(t, srv, "POST / HTTP/1.0\r\n\r\n")
	roundTrip(t, srv, "GET foo HTTP/1.0\r\n\r\n")

	require.Eventually(t, func() bool { return srv.Stats().RequestsTotal == 3 }, time.Second, 5*time.Millisecond)
	stats := srv.Stats()
	assert.Equal(t, int64(1), stats.Errors4xx)
	assert.Equal(t, int64(1), stats.Errors5xx)
	assert.Equal(t, int64(2), stats.ErrorsTotal)
	assert.Equal(t, int64(1), stats.Success)
	assert.Equal(t, int64(3), stats.Connections)
	assert.Greater(t, stats.BytesSent, int64(0))
	assert.Zero(t, stats.Lookups)
}

func TestShutdownWaitsForInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	h := HandlerFunc(func(ctx *Context) {
		close(started)
		<-release
		hello(ctx)
	})

	srv := New(testConfig(), h)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	result := make(chan string, 1)
	go func() {
		conn, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			result <- err.Error()
			return
		}
		defer conn.Close()
		conn.Write([]byte("GET /x HTTP/1.0\r\n\r\n"))
		out, _ := io.ReadAll(conn)
		result <- string(out)
	}()
	<-started

	shut := make(chan error, 1)
	go func() { shut <- srv.Shutdown(context.Background()) }()

	assert.ErrorIs(t, <-done, ErrServerClosed)
	close(release)
	assert.NoError(t, <-shut)
	assert.Contains(t, <-result, "hello /x")
}

func TestShutdownDeadlineClosesConnections(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	h := HandlerFunc(func(ctx *Context) {
		select {
		case <-block:
		case <-ctx.Context().Done():
		}
	})

	srv := New(testConfig(), h)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	conn.Write([]byte("GET / HTTP/1.0\r\n\r\n"))
	require.Eventually(t, func() bool { return srv.Stats().ActiveConnections == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, srv.Shutdown(ctx), context.DeadlineExceeded)
	assert.Equal(t, int64(0), srv.Stats().ActiveConnections)
}

func TestServeAfterClose(t *testing.T) {
	srv := New(testConfig(), hello)
	require.NoError(t, srv.Close())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, srv.Serve(ln), ErrServerClosed)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want response.StatusCode
	}{
		{request.ErrIncompleteRequest, response.StatusBadRequest},
		{request.ErrInvalidPath, response.StatusBadRequest},
		{request.ErrLineTooLong, response.StatusBadRequest},
		{request.ErrTooManyHeaders, response.StatusBadRequest},
		{request.ErrUnsupportedMethod, response.StatusNotImplemented},
		{request.ErrUnsupportedVersion, response.StatusNotImplemented},
		{request.ErrMalformedRequestLine, response.StatusNotImplemented},
		{errors.New("anything else"), response.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusForError(tt.err))
		})
	}
}

func TestClientIP(t *testing.T) {
	assert.Equal(t, "10.0.0.7", clientIP(&net.TCPAddr{IP: net.ParseIP("10.0.0.7"), Port: 5555}))
	assert.Equal(t, "::1", clientIP(&net.TCPAddr{IP: net.ParseIP("::1"), Port: 1}))
	assert.Equal(t, "-", clientIP(nil))
}

func TestBufferPool(t *testing.T) {
	buf := GetBuffer(4096)
	assert.Len(t, buf, 4096)
	PutBuffer(buf)

	buf = GetBuffer(100)
	assert.Len(t, buf, 100)
	assert.Equal(t, smallBufferSize, cap(buf))
	PutBuffer(buf)

	buf = GetBuffer(10000)
	assert.Len(t, buf, 10000)
	assert.Equal(t, largeBufferSize, cap(buf))
	PutBuffer(buf)

	buf = GetBuffer(1 << 20)
	assert.Len(t, buf, 1<<20)
	PutBuffer(buf) // not pooled, must not panic

	assert.Nil(t, GetBuffer(0))
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.connOpened()
	m.connOpened()
	m.connClosed()
	m.RecordRequest(200, 100, 10*time.Millisecond)
	m.RecordRequest(404, 50, 20*time.Millisecond)
	m.RecordRequest(502, 50, 30*time.Millisecond)
	m.RecordRequest(999, 0, 0)
	m.RecordLookup(false)
	m.RecordLookup(true)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Connections)
	assert.Equal(t, int64(1), snap.ActiveConnections)
	assert.Equal(t, int64(4), snap.RequestsTotal)
	assert.Equal(t, int64(1), snap.Success)
	assert.Equal(t, int64(1), snap.Errors4xx)
	assert.Equal(t, int64(1), snap.Errors5xx)
	assert.Equal(t, int64(2), snap.ErrorsTotal)
	assert.Equal(t, int64(200), snap.BytesSent)
	assert.Equal(t, 15*time.Millisecond, snap.AverageLatency)
	assert.Equal(t, int64(2), snap.Lookups)
	assert.Equal(t, int64(1), snap.LookupFailures)
}

func TestMetricsEmpty(t *testing.T) {
	snap := NewMetrics().Snapshot()
	assert.Zero(t, snap.RequestsTotal)
	assert.Zero(t, snap.AverageLatency)
}
