package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Brownie44l1/mdb-httpd/internal/config"
	"github.com/Brownie44l1/mdb-httpd/internal/logger"
	"github.com/Brownie44l1/mdb-httpd/internal/lookup"
	"github.com/Brownie44l1/mdb-httpd/internal/mdb"
	"github.com/Brownie44l1/mdb-httpd/internal/router"
	"github.com/Brownie44l1/mdb-httpd/internal/server"
	"github.com/Brownie44l1/mdb-httpd/internal/static"
)

func main() {
	cfg, err := config.FromArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, config.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	// Diagnostics go to stderr so stdout carries only the access log.
	log := logger.NewDefaultLogger(os.Stderr, cfg.LogLevel())
	access := logger.NewAccessLog(os.Stdout)

	// A client hanging up mid-response must not kill the process.
	signal.Ignore(syscall.SIGPIPE)

	dialCtx, cancelDial := context.WithTimeout(context.Background(), cfg.MDB.DialTimeout)
	client, err := mdb.Dial(dialCtx, cfg.MDBAddr(), cfg.MDBOptions(log)...)
	cancelDial()
	if err != nil {
		log.Error("cannot reach mdb-lookup server", logger.F("error", err))
		os.Exit(1)
	}
	defer client.Close()

	r := router.New()
	r.Exact("/mdb-lookup", lookup.Form())
	r.Prefix("/mdb-lookup?key=", lookup.Query(client))
	r.Fallback(static.New(cfg.Static.Root, cfg.Static.ChunkSize))

	srv := server.New(cfg.Listener(), r,
		server.WithLogger(log),
		server.WithAccessLog(access),
	)
	srv.Use(server.RecoveryMiddleware(log))
	srv.Use(server.LoggingMiddleware(log))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, server.ErrServerClosed) {
			log.Error("server failed", logger.F("error", err))
			os.Exit(1)
		}
	case sig := <-sigChan:
		log.Info("shutting down", logger.F("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("shutdown incomplete", logger.F("error", err))
		}
	}

	stats := srv.Stats()
	log.Info("server stopped",
		logger.F("requests", stats.RequestsTotal),
		logger.F("lookups", stats.Lookups),
		logger.F("lookup_failures", stats.LookupFailures),
		logger.F("errors_4xx", stats.Errors4xx),
		logger.F("errors_5xx", stats.Errors5xx),
		logger.F("bytes_sent", stats.BytesSent),
		logger.F("avg_latency", stats.AverageLatency.String()),
	)
}
