package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"github.com/classcord/classcord-server/internal/core"
)

// Server accepts client connections and runs one session handler per
// connection.
type Server struct {
	addr   string
	engine *core.Engine
	reg    *core.Registry
	log    *zerolog.Logger
	ln     net.Listener
}

// NewServer builds the client-facing listener.
func NewServer(addr string, engine *core.Engine, reg *core.Registry, logger *zerolog.Logger) *Server {
	return &Server{
		addr:   addr,
		engine: engine,
		reg:    reg,
		log:    logger,
	}
}

// Listen binds the listener. Must be called before Serve.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.ln = ln
	s.log.Info().Str("addr", ln.Addr().String()).Msg("client listener started")
	return nil
}

// Addr returns the bound address; useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until the context is cancelled or the listener
// fails. Each accepted connection gets its own goroutine.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error().Err(err).Msg("accept error")
			continue
		}
		go s.handle(ctx, conn)
	}
}
