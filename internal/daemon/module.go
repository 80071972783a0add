// Package daemon composes pigeond from its components with fx and drives
// the startup and shutdown lifecycle.
package daemon

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/pigeon-chat/pigeon/internal/backend"
	"github.com/pigeon-chat/pigeon/internal/backend/sqlite"
	"github.com/pigeon-chat/pigeon/internal/bus"
	"github.com/pigeon-chat/pigeon/internal/config"
	"github.com/pigeon-chat/pigeon/internal/httpapi"
	"github.com/pigeon-chat/pigeon/internal/lock"
	"github.com/pigeon-chat/pigeon/internal/logging"
	"github.com/pigeon-chat/pigeon/internal/objstore"
	"github.com/pigeon-chat/pigeon/internal/outbox"
	"github.com/pigeon-chat/pigeon/internal/profile"
	"github.com/pigeon-chat/pigeon/internal/seed"
	"github.com/pigeon-chat/pigeon/internal/status"
	intsync "github.com/pigeon-chat/pigeon/internal/sync"
	"github.com/pigeon-chat/pigeon/internal/unread"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	ListenAddr  string // optional override; empty = use config
	UserID      string // optional override; empty = use config
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideObjectStore,
			provideBackend,
			provideTracker,
			provideSynchronizer,
			provideSender,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		return nil, err
	}
	if p.ListenAddr != "" {
		cfg.Daemon.ListenAddr = p.ListenAddr
	}
	if p.UserID != "" {
		cfg.UserID = p.UserID
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideObjectStore(cfg *config.Config, logger *zap.Logger) (objstore.Store, error) {
	if cfg.Storage.Endpoint == "" {
		logger.Info("no object storage endpoint configured, uploads disabled")
		return nil, nil
	}
	store, err := objstore.NewMinio(objstore.MinioConfig{
		Endpoint:      cfg.Storage.Endpoint,
		AccessKey:     cfg.Storage.AccessKey,
		SecretKey:     cfg.Storage.SecretKey,
		UseSSL:        cfg.Storage.UseSSL,
		PublicBaseURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("object storage initialized", zap.String("endpoint", cfg.Storage.Endpoint))
	return store, nil
}

func provideBackend(p Params, store objstore.Store, logger *zap.Logger) (*sqlite.Backend, error) {
	dbPath := profile.DBPath(p.ProfileName)
	be, err := sqlite.Open(dbPath, store)
	if err != nil {
		return nil, err
	}
	logger.Info("backend opened", zap.String("path", dbPath))
	return be, nil
}

func provideTracker(be *sqlite.Backend, logger *zap.Logger) *unread.Tracker {
	return unread.NewTracker(be, logger)
}

func provideSynchronizer(be *sqlite.Backend, b *bus.Bus, tracker *unread.Tracker, cfg *config.Config, logger *zap.Logger) *intsync.Synchronizer {
	return intsync.New(be, b, tracker, cfg.UserID, logger, intsync.Options{
		SuppressionWindow: cfg.Daemon.Suppression(),
		RefreshInterval:   cfg.Daemon.Refresh(),
	})
}

func provideSender(be *sqlite.Backend, s *intsync.Synchronizer, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(be, s, b, logger)
}

func provideServer(cfg *config.Config, be *sqlite.Backend, s *intsync.Synchronizer, sender *outbox.Sender, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *httpapi.Server {
	return httpapi.New(cfg, be, s, sender, b, machine, logger)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, be *sqlite.Backend, srv *httpapi.Server, lk *lock.Lock, syn *intsync.Synchronizer, sender *outbox.Sender, tracker *unread.Tracker, machine *status.Machine, b *bus.Bus, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			ctx := context.Background()

			_ = machine.Transition(status.Migrating)
			result, err := be.Migrate()
			if err != nil {
				_ = machine.Transition(status.Error)
				return err
			}
			if result.Changed {
				logger.Info("migrations applied", zap.Uint("version", result.Version))
			} else {
				logger.Info("migrations up to date", zap.Uint("version", result.Version))
			}

			if err := ensureSelfUser(ctx, be, cfg.UserID); err != nil {
				_ = machine.Transition(status.Error)
				return err
			}

			if cfg.Daemon.SeedDemoData {
				if err := seed.Run(ctx, be, logger, seed.Options{SelfID: cfg.UserID}); err != nil {
					logger.Warn("demo seed failed", zap.Error(err))
				}
			}

			// Once the watermark column turns out absent, the daemon stays
			// degraded for the rest of the session.
			tracker.OnDisable(func() {
				b.Publish(bus.Event{Kind: bus.KindSyncDegraded, Timestamp: time.Now()})
				_ = machine.Transition(status.Degraded)
			})

			_ = machine.Transition(status.Syncing)
			syn.ProbeLabelSchema(ctx)
			if err := syn.Refresh(ctx); err != nil {
				logger.Error("initial refresh failed", zap.Error(err))
				_ = machine.Transition(status.Degraded)
			} else if machine.Current() == status.Syncing {
				_ = machine.Transition(status.Ready)
			}

			if err := syn.Run(ctx); err != nil {
				return err
			}
			sender.Start(ctx)

			go func() {
				if err := srv.Listen(cfg.Daemon.ListenAddr); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			logger.Info("daemon started", zap.String("addr", cfg.Daemon.ListenAddr))
			return nil
		},
		OnStop: func(_ context.Context) error {
			sender.Stop()
			syn.Stop()
			if err := srv.Shutdown(); err != nil {
				logger.Warn("http shutdown error", zap.Error(err))
			}
			if err := be.Close(); err != nil {
				logger.Warn("backend close error", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// ensureSelfUser makes sure the daemon's own user row exists.
func ensureSelfUser(ctx context.Context, be *sqlite.Backend, userID string) error {
	rows, err := be.Query(ctx, backend.CollUsers, backend.Filter{"id": userID}, nil)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		return nil
	}
	return be.Insert(ctx, backend.CollUsers, backend.Record{"id": userID, "name": "You"})
}
