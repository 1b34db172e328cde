package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/Brownie44l1/mdb-httpd/internal/logger"
	"github.com/Brownie44l1/mdb-httpd/internal/mdb"
)

func main() {
	addr := flag.String("addr", ":9999", "address to listen on")
	dbPath := flag.String("db", "", "record file, one record per line")
	level := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: mdb-lookup-server -db <file> [-addr :9999]")
		os.Exit(2)
	}

	log := logger.NewDefaultLogger(os.Stderr, logger.ParseLevel(*level))

	db, err := mdb.OpenDatabase(*dbPath)
	if err != nil {
		log.Error("cannot load records", logger.F("error", err))
		os.Exit(1)
	}

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Error("listen failed", logger.F("error", err))
		os.Exit(1)
	}
	log.Info("mdb-lookup-server listening",
		logger.F("addr", listener.Addr().String()),
		logger.F("records", db.Len()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &mdb.Server{DB: db, Logger: log}
	if err := srv.Serve(ctx, listener); err != nil {
		log.Error("serve failed", logger.F("error", err))
		os.Exit(1)
	}
}
