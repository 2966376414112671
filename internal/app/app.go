package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/classcord/classcord-server/internal/auth"
	"github.com/classcord/classcord-server/internal/config"
	"github.com/classcord/classcord-server/internal/core"
	"github.com/classcord/classcord-server/internal/proto"
	"github.com/classcord/classcord-server/internal/store"
	"github.com/classcord/classcord-server/internal/store/sqlite"
	"github.com/classcord/classcord-server/internal/transport/tcp"
)

// AdminTokenTTL bounds how long a minted control-port token stays valid.
const AdminTokenTTL = 24 * time.Hour

const adminTokenIssuer = "classcord"

// App wires the store, the presence engine, and both listeners together.
type App struct {
	server   *tcp.Server
	control  *tcp.ControlServer
	store    store.Store
	reg      *core.Registry
	bcast    *core.Broadcaster
	drainFor time.Duration
	log      *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	authSvc := auth.NewService(st)
	reg := core.NewRegistry()
	bcast := core.NewBroadcaster(reg, logger)
	history := core.NewHistory(st, cfg.HistoryLimit)
	engine := core.NewEngine(st, authSvc, reg, bcast, history, logger)

	tokens := AdminTokens(cfg)

	a := &App{
		store:    st,
		reg:      reg,
		bcast:    bcast,
		drainFor: cfg.ShutdownTimeout,
		log:      logger,
	}
	a.server = tcp.NewServer(cfg.Addr, engine, reg, logger)
	a.control = tcp.NewControlServer(cfg.ControlAddr, engine, reg, bcast, tokens, a.exit, logger)

	return a, nil
}

// AdminTokens builds the control-port token config from the admin secret.
func AdminTokens(cfg *config.Config) *auth.AdminTokenConfig {
	return &auth.AdminTokenConfig{
		Secret: []byte(cfg.AdminSecret),
		Issuer: adminTokenIssuer,
		TTL:    AdminTokenTTL,
	}
}

// Run starts both listeners and blocks until context cancellation or a
// listener failure.
func (a *App) Run(ctx context.Context) error {
	if err := a.server.Listen(); err != nil {
		a.cleanup()
		return err
	}
	if err := a.control.Listen(); err != nil {
		a.cleanup()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Serve(gctx) })
	g.Go(func() error { return a.control.Serve(gctx) })

	err := g.Wait()
	a.drain()
	a.cleanup()
	return err
}

// drain notifies connected clients that the server is going away and waits up
// to the configured shutdown timeout for them to hang up before forcing the
// remaining connections closed.
func (a *App) drain() {
	if a.reg.Len() == 0 {
		return
	}

	a.bcast.BroadcastTo("", &proto.Frame{
		Type:    proto.TypeShutdown,
		Message: "server shutting down",
	}, nil)

	deadline := time.Now().Add(a.drainFor)
	for a.reg.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	for _, e := range a.reg.Snapshot() {
		_ = e.Peer.Close()
	}
}

// exit implements the control-port shutdown command: immediate and
// unconditional, no drain of in-flight deliveries.
func (a *App) exit() {
	a.log.Warn().Msg("server shutting down")
	a.cleanup()
	os.Exit(0)
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
