package server

import (
	"bufio"
	"errors"
	"net"
	"time"

	"github.com/Brownie44l1/mdb-httpd/internal/logger"
	"github.com/Brownie44l1/mdb-httpd/internal/request"
	"github.com/Brownie44l1/mdb-httpd/internal/response"
)

// serveConn handles the single request on a connection and closes it.
func (s *Server) serveConn(conn net.Conn, handler Handler) {
	start := time.Now()
	s.metrics.connOpened()

	defer func() {
		conn.Close()
		s.track(conn, false)
		s.metrics.connClosed()
		if s.sem != nil {
			<-s.sem
		}
		s.wg.Done()
	}()

	if s.cfg.ReadTimeout > 0 {
		conn.SetReadDeadline(start.Add(s.cfg.ReadTimeout))
	}

	w := response.NewWriter(conn)
	limits := request.Limits{
		MaxLineLength:  s.cfg.MaxLineLength,
		MaxHeaderLines: s.cfg.MaxHeaderLines,
	}

	req, err := request.Parse(bufio.NewReader(conn), limits)
	if err == nil {
		err = request.Validate(req)
	}

	ctx := &Context{
		Request:  req,
		Response: w,
		ClientIP: clientIP(conn.RemoteAddr()),
		Logger:   s.Logger,
		ctx:      s.baseCtx,
	}

	if s.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}

	if err != nil {
		s.reject(ctx, err)
	} else {
		handler.ServeHTTP(ctx)
		if !w.Started() {
			s.Logger.Warn("handler wrote no response", logger.F("path", req.Path))
			w.ErrorResponse(response.StatusInternalServerError)
		}
	}

	if w.HadError() {
		s.Logger.Debug("response aborted", logger.F("client_ip", ctx.ClientIP), logger.F("path", req.Path))
	}

	s.logAccess(ctx)
	s.metrics.RecordRequest(int(w.StatusCode()), w.BytesWritten(), time.Since(start))
	if _, ok := ctx.LookupKey(); ok {
		s.metrics.RecordLookup(w.StatusCode().IsServerError() || w.HadError())
	}
}

// reject answers a request that failed parsing or validation.
func (s *Server) reject(ctx *Context, err error) {
	code := statusForError(err)
	fields := []logger.Field{
		logger.F("client_ip", ctx.ClientIP),
		logger.F("request", ctx.Request.RawLine),
		logger.F("status", int(code)),
		logger.F("error", err),
	}
	if readErr := ctx.Request.ReadError(); readErr != nil {
		fields = append(fields, logger.F("read_error", readErr))
	}
	s.Logger.Debug("request rejected", fields...)

	ctx.Error(code)
}

// statusForError maps parse and validation failures to a status code.
func statusForError(err error) response.StatusCode {
	switch {
	case errors.Is(err, request.ErrUnsupportedMethod),
		errors.Is(err, request.ErrUnsupportedVersion),
		errors.Is(err, request.ErrMalformedRequestLine):
		return response.StatusNotImplemented
	case errors.Is(err, request.ErrIncompleteRequest),
		errors.Is(err, request.ErrInvalidPath),
		errors.Is(err, request.ErrLineTooLong),
		errors.Is(err, request.ErrTooManyHeaders):
		return response.StatusBadRequest
	default:
		return response.StatusBadRequest
	}
}

func (s *Server) logAccess(ctx *Context) {
	code := ctx.Response.StatusCode()
	key, isLookup := ctx.LookupKey()
	s.Access.Record(logger.Entry{
		ClientIP:    ctx.ClientIP,
		RequestLine: ctx.Request.RequestLine(),
		StatusCode:  int(code),
		Reason:      response.StatusText(code),
		LookupKey:   key,
		IsLookup:    isLookup,
	})
}

func clientIP(addr net.Addr) string {
	if addr == nil {
		return "-"
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
