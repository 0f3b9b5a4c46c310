package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"lobby-lab/errors"
	"lobby-lab/gateway"
	"lobby-lab/protocol"
)

// Server exposes the store over the same length-prefixed JSON framing as
// the lobby. Clients dial per request, so each connection carries one or
// a few frames and is cheap to handle inline.
type Server struct {
	log      *slog.Logger
	addr     string
	store    *Store
	listener net.Listener
	wg       sync.WaitGroup
}

func NewServer(log *slog.Logger, addr string, store *Store) *Server {
	return &Server{log: log, addr: addr, store: store}
}

func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	return nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve accepts connections until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	s.log.Info("Database server listening", "address", s.Addr())
	for {
		sock, err := s.listener.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Info("Database server stopped")
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(sock)
		}()
	}
}

func (s *Server) handle(sock net.Conn) {
	defer func() { _ = sock.Close() }()

	for {
		raw, err := protocol.Read(sock)
		if err != nil {
			return
		}

		var req gateway.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			_ = protocol.Write(sock, badRequest("unreadable request envelope"))
			return
		}

		if writeErr := protocol.Write(sock, s.store.Handle(req)); writeErr != nil {
			s.log.Warn("Response write failed", "error", writeErr)
			return
		}
	}
}
