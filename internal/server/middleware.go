package server

import (
	"runtime/debug"
	"time"

	"github.com/Brownie44l1/mdb-httpd/internal/logger"
	"github.com/Brownie44l1/mdb-httpd/internal/response"
)

// LoggingMiddleware logs each handled request at debug level.
func LoggingMiddleware(l logger.Logger) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) {
			start := time.Now()

			next.ServeHTTP(ctx)

			fields := []logger.Field{
				logger.F("method", ctx.Method()),
				logger.F("path", ctx.Path()),
				logger.F("status", int(ctx.Response.StatusCode())),
				logger.F("bytes", ctx.Response.BytesWritten()),
				logger.F("duration_ms", time.Since(start).Milliseconds()),
				logger.F("client_ip", ctx.ClientIP),
			}
			if key, ok := ctx.LookupKey(); ok {
				fields = append(fields, logger.F("key", key))
			}
			l.Debug("request handled", fields...)
		})
	}
}

// RecoveryMiddleware recovers from panics. A 500 is sent only if nothing
// has been written yet; otherwise the connection is simply closed.
func RecoveryMiddleware(l logger.Logger) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) {
			defer func() {
				if err := recover(); err != nil {
					l.Error("panic recovered",
						logger.F("error", err),
						logger.F("stack", string(debug.Stack())),
						logger.F("path", ctx.Path()),
					)

					if !ctx.Response.Started() {
						ctx.Error(response.StatusInternalServerError)
					}
				}
			}()

			next.ServeHTTP(ctx)
		})
	}
}
