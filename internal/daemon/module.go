package daemon

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/workbook/internal/api"
	"github.com/matheus3301/workbook/internal/bus"
	"github.com/matheus3301/workbook/internal/config"
	"github.com/matheus3301/workbook/internal/lock"
	"github.com/matheus3301/workbook/internal/logging"
	"github.com/matheus3301/workbook/internal/profile"
	"github.com/matheus3301/workbook/internal/relay"
	"github.com/matheus3301/workbook/internal/store"
	intsync "github.com/matheus3301/workbook/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const programName = "workbookd"

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	SocketPath string         // optional override for testing; empty = use default
	Config     *config.Config // optional; nil = load ~/.workbook/config.toml
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideSyncEngine,
			provideHub,
			provideAPI,
			NewHTTPServer,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	return config.LoadOrDefault(profile.ConfigPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile, programName), logging.Options{
		Profile: p.Profile,
		Program: programName,
		Console: true,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile), programName)
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is never opened by two daemons.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate(logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("store initialized", zap.String("path", db.Path()), zap.Uint("schema", result.Version))
	return db, nil
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger)
}

func provideHub(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *relay.Hub {
	hub := relay.NewHub(b, relay.Options{Key: cfg.Relay.Key}, logger)
	if !hub.Enabled() {
		logger.Info("relay disabled, no relay key configured")
	}
	return hub
}

func provideAPI(p Params, cfg *config.Config, db *store.DB, engine *intsync.Engine, hub *relay.Hub, logger *zap.Logger) *api.Server {
	uploadDir := cfg.Daemon.UploadDir
	if uploadDir == "" {
		uploadDir = profile.UploadDir(p.Profile)
	}
	publicURL := cfg.Daemon.PublicURL
	if publicURL == "" {
		publicURL = strings.TrimRight(cfg.API.BaseURL, "/")
	}
	return api.NewServer(db, engine, api.Options{
		Checkpoints: cfg.Progress.Checkpoints,
		UploadDir:   uploadDir,
		PublicURL:   publicURL,
		Relay:       hub,
	}, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, httpSrv *HTTPServer, hub *relay.Hub, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start health server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC health server error", zap.Error(err))
				}
			}()

			go func() {
				if err := httpSrv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			srv.SetServing(true, hub.Enabled())
			logger.Info("daemon started", zap.String("addr", httpSrv.Addr()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.SetServing(false, false)
			hub.Close()
			if err := httpSrv.Stop(ctx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// Describe renders the effective daemon settings for --print-config.
func Describe(p Params, cfg *config.Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "profile:     %s\n", p.Profile)
	fmt.Fprintf(&b, "listen:      %s\n", cfg.Daemon.Listen)
	fmt.Fprintf(&b, "database:    %s\n", profile.DBPath(p.Profile))
	fmt.Fprintf(&b, "relay:       %v\n", cfg.Relay.Key != "")
	fmt.Fprintf(&b, "checkpoints: %v\n", cfg.Progress.Checkpoints)
	return b.String()
}
