package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"lobby-lab/errors"
)

// Server accepts lobby connections and hands each to the dispatcher in
// its own goroutine. Shutdown closes the listener and waits for in-flight
// connections to drain.
type Server struct {
	log        *slog.Logger
	addr       string
	dispatcher *Dispatcher
	listener   net.Listener
	wg         sync.WaitGroup
}

func New(log *slog.Logger, addr string, dispatcher *Dispatcher) *Server {
	return &Server{log: log, addr: addr, dispatcher: dispatcher}
}

// Listen binds the TCP address. Split from Serve so callers learn the
// effective address before any client connects, which matters with
// port 0.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	return nil
}

// Addr returns the bound address. Only valid after Listen.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve runs the accept loop until ctx is canceled.
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

	s.log.Info("Lobby server listening", "address", s.Addr())
	for {
		sock, err := s.listener.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Info("Lobby server stopped")
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.dispatcher.HandleConn(ctx, sock)
		}()
	}
}
