package mdb

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"

	"github.com/Brownie44l1/mdb-httpd/internal/logger"
)

// Server answers the lookup protocol from a Database: each key line gets
// the matching records, one per line, followed by a blank line.
type Server struct {
	DB           *Database
	Logger       logger.Logger
	MaxKeyLength int
}

// Serve accepts backend connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log := s.Logger
	if log == nil {
		log = logger.NullLogger{}
	}

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.Error("accept failed", logger.F("error", err))
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(ctx, conn, log)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn, log logger.Logger) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	maxKey := s.MaxKeyLength
	if maxKey <= 0 {
		maxKey = DefaultMaxRowLength
	}

	remote := conn.RemoteAddr().String()
	log.Info("mdb client connected", logger.F("remote", remote))

	rd := bufio.NewReader(conn)
	wr := bufio.NewWriter(conn)

	for {
		key, err := readLine(rd, maxKey)
		if err != nil {
			// ErrBackendClosed here just means the client hung up.
			if !errors.Is(err, ErrBackendClosed) {
				log.Warn("mdb read failed", logger.F("remote", remote), logger.F("error", err))
			}
			return
		}

		rows := s.DB.Lookup(key)
		log.Debug("mdb lookup", logger.F("key", key), logger.F("rows", len(rows)))
		for _, row := range rows {
			wr.WriteString(row)
			wr.WriteByte('\n')
		}
		wr.WriteByte('\n')
		if err := wr.Flush(); err != nil {
			log.Warn("mdb write failed", logger.F("remote", remote), logger.F("error", err))
			return
		}
	}
}
