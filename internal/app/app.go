package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"wavesight/internal/analysis"
	"wavesight/internal/config"
	apierrors "wavesight/internal/errors"
	"wavesight/internal/infrastructure"
	custommw "wavesight/internal/middleware"
	"wavesight/internal/services"
	transporthttp "wavesight/internal/transport/http"
	ws "wavesight/internal/websocket"
	"wavesight/internal/workbook"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Application owns every long-lived component of the web server.
type Application struct {
	Config *config.Config
	Logger *slog.Logger
	Router chi.Router
	Server *http.Server

	OTelProviders *infrastructure.OTelProviders
	Hub           *ws.Hub
	Uploads       *services.UploadStore
	Analysis      *services.AnalysisService
	Health        *services.HealthService

	errorHandler *apierrors.ErrorHandler
}

// NewApplication loads configuration and wires all services and routes.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := infrastructure.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(logger)

	providers, err := infrastructure.InitializeOTel(infrastructure.OTelConfig{
		ServiceVersion: Version,
		Environment:    cfg.Telemetry.Environment,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		errorHandler:  apierrors.NewErrorHandler(logger, cfg.Telemetry.Environment == "development"),
	}

	if err := app.initializeServices(); err != nil {
		return nil, err
	}
	app.setupRouter()
	app.createServer()
	return app, nil
}

func (a *Application) initializeServices() error {
	a.Hub = ws.NewHub(a.Logger)

	metrics, err := infrastructure.NewRunMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("create run metrics: %w", err)
	}

	a.Uploads = services.NewUploadStore(a.Config.Upload.MaxSizeBytes, a.Config.Upload.TTL, a.Logger)

	broadcaster := ws.NewProgressBroadcaster(a.Hub)
	stageSpans := infrastructure.NewStageSpanSink(a.OTelProviders.Tracer)
	analyzer := analysis.NewAnalyzer(
		analysis.Config{PartialCLDArea: a.Config.Analysis.PartialCLDArea},
		a.Logger,
		analysis.MultiSink{broadcaster, metrics, stageSpans},
	)

	a.Analysis = services.NewAnalysisService(services.AnalysisServiceDeps{
		Uploads:  a.Uploads,
		Parser:   workbook.NewParserForSheet(a.Logger, a.Config.Analysis.InventorySheet),
		Analyzer: analyzer,
		Logger:   a.Logger,
		Tracer:   a.OTelProviders.Tracer,
		Metrics:  metrics,
		Notifier: broadcaster,
	})

	a.Health = services.NewHealthService(Version, a.Hub, a.Uploads, a.Logger)
	return nil
}

func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// RequestID and RealIP only; the websocket route must not sit behind
	// middleware that wraps the ResponseWriter.
	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)

	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		ws.ServeWS(a.Hub, a.Logger, w, req)
	})

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(custommw.StructuredLogger(a.Logger))
		r.Use(custommw.Recoverer(a.Logger))
		r.Use(custommw.SecurityHeaders)
		r.Use(custommw.Compress(5))
		r.Use(custommw.Timeout(60*time.Second, a.Logger))

		if a.Config.Security.EnableCORS {
			r.Use(custommw.CORS(custommw.CORSConfig{
				AllowedOrigins: a.Config.Security.AllowedOrigins,
				Logger:         a.Logger,
			}))
		}
		if a.Config.Security.RateLimit.Enabled {
			r.Use(custommw.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		analysisHandler := transporthttp.NewAnalysisHandler(a.Uploads, a.Analysis, a.Logger, a.errorHandler)
		healthHandler := transporthttp.NewHealthHandler(a.Health, a.Logger)

		r.Route("/api", func(r chi.Router) {
			r.Mount("/health", healthHandler.Routes())
			r.Mount("/", analysisHandler.Routes())
		})
	})

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully. Blocks.
func (a *Application) Run(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "starting application",
		slog.String("version", Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level),
	)

	a.Hub.Start()
	go a.sweepUploads(ctx)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return a.Stop(context.Background())
	})

	return g.Wait()
}

// Stop shuts the server, the hub and the telemetry providers down within
// the configured shutdown timeout.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "server shutdown failed", slog.String("error", err.Error()))
	}
	a.Hub.Stop()

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "telemetry shutdown failed", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "application stopped")
	return nil
}

// sweepUploads periodically drops expired uploads.
func (a *Application) sweepUploads(ctx context.Context) {
	if a.Config.Upload.TTL <= 0 {
		return
	}
	ticker := time.NewTicker(a.Config.Upload.TTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Uploads.Sweep()
		}
	}
}
