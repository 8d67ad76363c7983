// Package daemon composes the session daemon from its parts and owns the
// process lifecycle.
package daemon

import (
	"context"
	"errors"

	"github.com/pedrogbi/palaver/internal/bus"
	"github.com/pedrogbi/palaver/internal/lock"
	"github.com/pedrogbi/palaver/internal/logging"
	"github.com/pedrogbi/palaver/internal/model"
	"github.com/pedrogbi/palaver/internal/remote"
	"github.com/pedrogbi/palaver/internal/session"
	"github.com/pedrogbi/palaver/internal/state"
	"github.com/pedrogbi/palaver/internal/store"
	intsync "github.com/pedrogbi/palaver/internal/sync"
	"github.com/pedrogbi/palaver/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	ServerURL   string
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStateDB,
			provideStore,
			provideRemote,
			provideTransport,
			provideEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStateDB(p Params, logger *zap.Logger) (*state.DB, error) {
	dbPath := session.StateDBPath(p.SessionName)
	db, err := state.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("state db initialized", zap.String("path", dbPath))
	return db, nil
}

func provideStore() *store.Store {
	return store.New()
}

func provideRemote(p Params) *remote.Client {
	return remote.NewClient(p.ServerURL)
}

func provideTransport(p Params, b *bus.Bus, logger *zap.Logger) *transport.Transport {
	return transport.New(p.ServerURL, b, logger, transport.Options{})
}

func provideEngine(s *store.Store, db *state.DB, client *remote.Client, tr *transport.Transport, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.New(s, db, client, tr, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *state.DB, tr *transport.Transport, engine *intsync.Engine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			engine.Start()

			// Restore the previous session in the background; a cold
			// daemon with no saved user just waits for a login.
			go func() {
				err := engine.Initialize(context.Background())
				switch {
				case err == nil:
					logger.Info("session restored")
				case errors.Is(err, model.ErrNotFound):
					logger.Info("no saved session, login required")
				default:
					logger.Error("session restore failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			engine.Stop()
			if err := tr.Disconnect(); err != nil {
				logger.Warn("error disconnecting session channel", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing state db", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
