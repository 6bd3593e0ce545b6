package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/handler/ws"
	"MarketPulse/internal/usecase"
	pkgch "MarketPulse/pkg/clickhouse"
	"MarketPulse/pkg/config"
	xhttp "MarketPulse/pkg/http"
	applogger "MarketPulse/pkg/logger"
)

// App encapsulates the entire application lifecycle: per-source stream
// managers, the WebSocket hub, and the HTTP API.
type App struct {
	cfg      *config.Config
	l        *applogger.Logger
	managers map[models.Source]*usecase.StreamManager
	hub      *ws.Hub
	router   xhttp.Handler
	sink     drepo.TickSink
	chClient *pkgch.Client

	resultCache interface{}
	httpServer  *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	managers map[models.Source]*usecase.StreamManager,
	hub *ws.Hub,
	router xhttp.Handler,
	sink drepo.TickSink,
	chClient *pkgch.Client,
	resultCache interface{},
) *App {
	return &App{
		cfg:         cfg,
		l:           l,
		managers:    managers,
		hub:         hub,
		router:      router,
		sink:        sink,
		chClient:    chClient,
		resultCache: resultCache,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.router,
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(a.cfg.Server.CORS),
	)

	if a.hub != nil {
		go a.hub.Run(ctx)
	}

	if p, ok := a.sink.(interface{ Start(context.Context) }); ok {
		p.Start(ctx)
	}

	a.startSources(ctx)

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("marketpulse up",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(cancel)
}

// startSources starts a stream manager for every enabled source. A source
// that fails to start does not prevent the rest from running.
func (a *App) startSources(ctx context.Context) {
	type startup struct {
		source  models.Source
		enabled bool
		symbols []string
	}
	for _, s := range []startup{
		{models.SourceCrypto, a.cfg.Sources.Crypto.Enabled, a.cfg.Sources.Crypto.Symbols},
		{models.SourceEquity, a.cfg.Sources.Equity.Enabled, a.cfg.Sources.Equity.Symbols},
		{models.SourceCarbon, a.cfg.Sources.Carbon.Enabled, a.cfg.Sources.Carbon.Symbols},
	} {
		if !s.enabled {
			continue
		}
		m, ok := a.managers[s.source]
		if !ok {
			continue
		}
		if err := m.Start(ctx, s.symbols); err != nil {
			a.l.Error("source start failed",
				applogger.String("source", string(s.source)),
				applogger.Error(err))
			continue
		}
		a.l.Info("source started",
			applogger.String("source", string(s.source)),
			applogger.Strings("symbols", s.symbols))
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown(cancel context.CancelFunc) error {
	for src, m := range a.managers {
		if err := m.Stop(); err != nil {
			a.l.Warn("source stop error",
				applogger.String("source", string(src)),
				applogger.Error(err))
		}
	}

	// stops the hub and any remaining goroutines bound to the app context
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.l.Warn("sink close error", applogger.Error(err))
		}
	}
	if c, ok := a.resultCache.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.l.Warn("result cache close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
