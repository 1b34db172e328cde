package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Brownie44l1/mdb-httpd/internal/logger"
	"github.com/Brownie44l1/mdb-httpd/internal/request"
)

var ErrServerClosed = errors.New("server closed")

// Config holds the listener-level settings.
type Config struct {
	Addr string

	// ReadTimeout bounds reading the request line and headers.
	// WriteTimeout bounds writing the whole response. Zero disables either.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	MaxLineLength  int
	MaxHeaderLines int

	// MaxConnections caps connections handled at once. 1 reproduces a
	// strictly sequential server; 0 means no cap.
	MaxConnections int
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		ReadTimeout:    30 * time.Second,
		MaxLineLength:  request.DefaultMaxLineLength,
		MaxHeaderLines: request.DefaultMaxHeaderLines,
		MaxConnections: 256,
	}
}

// Handler responds to a validated request.
type Handler interface {
	ServeHTTP(ctx *Context)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx *Context)

func (f HandlerFunc) ServeHTTP(ctx *Context) {
	f(ctx)
}

// Middleware wraps a Handler.
type Middleware func(next Handler) Handler

// Server accepts client connections and runs each through
// parse -> validate -> handler -> access log -> close.
type Server struct {
	cfg        Config
	handler    Handler
	middleware []Middleware

	Logger logger.Logger
	Access *logger.AccessLog

	metrics *Metrics
	sem     chan struct{}

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.Logger = l
		}
	}
}

func WithAccessLog(a *logger.AccessLog) Option {
	return func(s *Server) { s.Access = a }
}

// New creates a server dispatching valid requests to handler.
func New(cfg Config, handler Handler, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		handler: handler,
		Logger:  logger.NullLogger{},
		metrics: NewMetrics(),
		baseCtx: ctx,
		cancel:  cancel,
		conns:   make(map[net.Conn]struct{}),
	}
	if cfg.MaxConnections > 0 {
		s.sem = make(chan struct{}, cfg.MaxConnections)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Use adds middleware. It must be called before Serve.
func (s *Server) Use(mw Middleware) {
	s.middleware = append(s.middleware, mw)
}

func (s *Server) chain() Handler {
	h := s.handler
	for i := len(s.middleware) - 1; i >= 0; i-- {
		h = s.middleware[i](h)
	}
	return h
}

// ListenAndServe listens on cfg.Addr and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown or Close. It always
// returns a non-nil error; ErrServerClosed after a clean stop.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	handler := s.chain()
	s.Logger.Info("listening", logger.F("addr", ln.Addr().String()))

	var backoff time.Duration
	for {
		if s.sem != nil {
			s.sem <- struct{}{}
		}

		conn, err := ln.Accept()
		if err != nil {
			if s.sem != nil {
				<-s.sem
			}
			if s.closed.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			s.Logger.Error("accept failed", logger.F("error", err), logger.F("retry_in", backoff))
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.track(conn, true)
		s.wg.Add(1)
		go s.serveConn(conn, handler)
	}
}

// Addr returns the listener address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// Shutdown stops accepting and waits for in-flight responses to finish.
// If ctx expires first the remaining connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopListening()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.closeConns()
		<-done
		return ctx.Err()
	}
}

// Close stops the server immediately, dropping in-flight connections.
func (s *Server) Close() error {
	err := s.stopListening()
	s.closeConns()
	s.wg.Wait()
	return err
}

func (s *Server) stopListening() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed.Store(true)
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) closeConns() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

// Stats returns a snapshot of the server metrics.
func (s *Server) Stats() MetricsSnapshot {
	return s.metrics.Snapshot()
}
