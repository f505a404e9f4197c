package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"deskbridge/internal/config"
	"deskbridge/internal/routes"
	"deskbridge/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// App wires the services behind the command and event channels
type App struct {
	Config     *config.Config
	Dispatcher *services.Dispatcher
	Hub        *services.WebSocketHub
	Monitor    *services.ProcessMonitor
	Auth       *services.AuthService
	Router     *gin.Engine

	facts  *services.FactsCache
	logger *zap.Logger
}

// Options lets callers swap OS-facing pieces, mainly in tests
type Options struct {
	Probe services.HostProbe
	Now   func() time.Time
}

func New(cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	auth, err := services.NewAuthService(services.AuthOptions{
		Secret:      cfg.Auth.Secret,
		SecretFile:  cfg.Auth.SecretFile,
		TokenExpiry: cfg.Auth.TokenExpiry,
		Now:         opts.Now,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	facts, err := services.NewFactsCache(cfg.Hardware.StaticTTL)
	if err != nil {
		return nil, err
	}

	hub := services.NewWebSocketHub(logger)
	monitor := services.NewProcessMonitor(hub, services.MonitorOptions{
		Iterations: cfg.Monitor.Iterations,
		Interval:   cfg.Monitor.Interval,
		Now:        opts.Now,
	}, logger)

	dispatcher := services.NewDispatcher(logger)
	commands := &services.Commands{
		DB:         services.NewDatabase(),
		Hardware:   services.NewHardwareService(opts.Probe, facts, logger),
		Calculator: services.NewCalculator(opts.Now),
		Monitor:    monitor,
		Now:        opts.Now,
	}
	commands.Register(dispatcher)

	a := &App{
		Config:     cfg,
		Dispatcher: dispatcher,
		Hub:        hub,
		Monitor:    monitor,
		Auth:       auth,
		facts:      facts,
		logger:     logger,
	}
	a.Router = routes.NewRouter(routes.Dependencies{
		Config:     cfg,
		Dispatcher: dispatcher,
		Hub:        hub,
		Monitor:    monitor,
		Auth:       auth,
		Logger:     logger,
	})
	return a, nil
}

// Run serves HTTP until ctx is cancelled, then shuts everything down
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		return errors.Join(err, a.Shutdown(shutdownCtx))
	})

	return g.Wait()
}

// Shutdown stops running monitors, disconnects views and frees caches
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Monitor.Shutdown(ctx)
	a.Hub.Shutdown()
	a.facts.Close()
	return err
}
