package mdb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/Brownie44l1/mdb-httpd/internal/logger"
)

const DefaultMaxRowLength = 64 << 10

var (
	ErrClosed        = errors.New("mdb client closed")
	ErrNotConnected  = errors.New("mdb connection lost and no dialer configured")
	ErrUnavailable   = errors.New("mdb backend unavailable")
	ErrInvalidKey    = errors.New("lookup key contains a line terminator")
	ErrRowTooLong    = errors.New("mdb row too long")
	ErrBackendClosed = errors.New("mdb backend closed the connection mid-result")

	errExchangeCancelled = errors.New("exchange cancelled")
)

// Dialer opens a fresh connection to the backend.
type Dialer func(ctx context.Context) (net.Conn, error)

// Backoff controls how a broken backend connection is re-established.
type Backoff struct {
	Initial  time.Duration
	Max      time.Duration
	Attempts int
}

// DefaultBackoff returns the reconnect policy used when none is given.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:  100 * time.Millisecond,
		Max:      5 * time.Second,
		Attempts: 5,
	}
}

// Client owns the single persistent connection to the lookup backend.
//
// The wire protocol has no request IDs: a key goes out as one line and the
// matching rows come back on the same stream, ended by a blank line. mu is
// therefore held from the moment a key is written until its sentinel has
// been read (see Rows), so concurrent Lookups are served strictly one after
// the other.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader

	dial    Dialer
	backoff Backoff
	timeout time.Duration
	maxRow  int
	log     logger.Logger
	closed  bool
}

// Option configures a Client.
type Option func(*Client)

// WithDialer enables reconnecting after the connection breaks.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

func WithBackoff(b Backoff) Option {
	return func(c *Client) { c.backoff = b }
}

// WithExchangeTimeout bounds each key/result exchange. Zero means no limit.
func WithExchangeTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithMaxRowLength(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRow = n
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func newClient(opts []Option) *Client {
	c := &Client{
		backoff: DefaultBackoff(),
		maxRow:  DefaultMaxRowLength,
		log:     logger.NullLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClient wraps an already connected backend stream. Unless WithDialer
// is given, the client cannot recover once that stream breaks.
func NewClient(conn net.Conn, opts ...Option) *Client {
	c := newClient(opts)
	c.setConn(conn)
	return c
}

// Dial connects to the backend at addr. The first connection attempt is
// not retried; later failures are redialed with backoff.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var d net.Dialer
	dial := func(ctx context.Context) (net.Conn, error) {
		return d.DialContext(ctx, "tcp", addr)
	}

	c := newClient(append([]Option{WithDialer(dial)}, opts...))
	conn, err := dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to mdb at %s: %w", addr, err)
	}
	c.setConn(conn)
	c.log.Info("mdb connected", logger.F("addr", conn.RemoteAddr().String()))
	return c, nil
}

func (c *Client) setConn(conn net.Conn) {
	c.conn = conn
	c.rd = bufio.NewReader(conn)
}

// Lookup sends key to the backend and returns its result rows. The first
// row (or the end of the result) has already arrived when Lookup returns,
// so a dead backend is reported here rather than mid-iteration. The caller
// must Close the returned Rows; until then every other Lookup blocks.
func (c *Client) Lookup(ctx context.Context, key string) (*Rows, error) {
	if strings.ContainsAny(key, "\r\n") {
		return nil, ErrInvalidKey
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	first, stop, err := c.exchange(ctx, key+"\n")
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	return &Rows{c: c, stop: stop, first: first, primed: true}, nil
}

// exchange writes line and reads the first result row. A connection that
// fails before answering is replaced and the key resent once; the stream
// carries nothing else at that point, so pairing is kept. c.mu must be
// held.
func (c *Client) exchange(ctx context.Context, line string) (string, func() bool, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := c.ensureConn(ctx); err != nil {
			return "", nil, err
		}

		conn := c.conn
		if c.timeout > 0 {
			conn.SetDeadline(time.Now().Add(c.timeout))
		}
		stop := context.AfterFunc(ctx, func() {
			// Unblock a pending read; the exchange is abandoned and the
			// connection gets replaced.
			conn.SetDeadline(time.Unix(1, 0))
		})

		row, err := c.roundTrip(line)
		if err == nil {
			return row, stop, nil
		}
		stop()
		lastErr = err
		c.breakConn(err)

		if ctx.Err() != nil {
			return "", nil, fmt.Errorf("mdb lookup: %w", ctx.Err())
		}
		if errors.Is(err, ErrRowTooLong) || c.dial == nil {
			break
		}
	}
	return "", nil, fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

// roundTrip writes line and reads one row back. c.mu must be held.
func (c *Client) roundTrip(line string) (string, error) {
	if _, err := io.WriteString(c.conn, line); err != nil {
		return "", fmt.Errorf("send key: %w", err)
	}
	return c.readRow()
}

// ensureConn redials a broken connection with backoff. c.mu must be held.
func (c *Client) ensureConn(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	if c.dial == nil {
		return ErrNotConnected
	}

	attempts := c.backoff.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := c.backoff.Initial

	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, err := c.dial(ctx)
		if err == nil {
			c.setConn(conn)
			c.log.Info("mdb reconnected", logger.F("attempt", i+1))
			return nil
		}
		lastErr = err
		c.log.Warn("mdb reconnect failed",
			logger.F("attempt", i+1),
			logger.F("error", err),
		)

		if i == attempts-1 {
			break
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		delay *= 2
		if c.backoff.Max > 0 && delay > c.backoff.Max {
			delay = c.backoff.Max
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// breakConn drops the current connection. c.mu must be held.
func (c *Client) breakConn(cause error) {
	if c.conn == nil {
		return
	}
	c.log.Warn("mdb connection broken", logger.F("error", cause))
	c.conn.Close()
	c.conn = nil
	c.rd = nil
}

// readRow reads one result line. c.mu must be held.
func (c *Client) readRow() (string, error) {
	return readLine(c.rd, c.maxRow)
}

// readLine reads one line with its terminator removed. A blank line comes
// back as "" and marks the end of a result set.
func readLine(rd *bufio.Reader, max int) (string, error) {
	var line []byte
	for {
		frag, err := rd.ReadSlice('\n')
		if len(line)+len(frag) > max {
			return "", ErrRowTooLong
		}
		line = append(line, frag...)

		switch {
		case err == nil:
			return strings.TrimRight(string(line), "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			return "", ErrBackendClosed
		default:
			return "", fmt.Errorf("read row: %w", err)
		}
	}
}

// Close closes the backend connection, waiting for an in-flight exchange.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.rd = nil
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
