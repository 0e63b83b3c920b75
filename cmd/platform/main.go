package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-sql/civil"
	"github.com/vetcore/platform/internal/adapters/legacy"
	"github.com/vetcore/platform/internal/auth"
	"github.com/vetcore/platform/internal/inventory"
	"github.com/vetcore/platform/internal/notification"
	"github.com/vetcore/platform/internal/owner"
	"github.com/vetcore/platform/internal/reports"
	sharedauth "github.com/vetcore/platform/internal/shared/auth"
	"github.com/vetcore/platform/internal/shared/config"
	"github.com/vetcore/platform/internal/shared/database"
	"github.com/vetcore/platform/internal/shared/events"
	"github.com/vetcore/platform/internal/shared/logging"
	"github.com/vetcore/platform/internal/shared/metrics"
	secmiddleware "github.com/vetcore/platform/internal/shared/middleware"
	"github.com/vetcore/platform/internal/shared/resilience"
	"github.com/vetcore/platform/internal/staff"
)

// App holds all application dependencies
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	DB      *database.DB
	Bus     events.EventBus
	Monitor *inventory.Monitor
	Alerts  *notification.AlertSink
	Legacy  *legacy.Source
	// Executor guards outbound notification delivery.
	Executor *resilience.Executor
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New("vetcore-api", cfg.Log.Level)
	slog.SetDefault(logger)

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Executor: resilience.NewExecutor(resilience.FromSettings(cfg.Resilience), logger),
	}

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logger.Error("database not available", "error", err)
		os.Exit(1)
	}
	app.DB = db
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool, logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// Event bus is optional; handlers skip publishing without one.
	bus, err := events.NewEventBus(cfg.Events, cfg.KurrentDB, logger)
	if err != nil {
		logger.Warn("event bus not available, running without events", "driver", cfg.Events.Driver, "error", err)
	} else if bus != nil {
		app.Bus = bus
		defer bus.Close()
		logger.Info("event bus initialized", "driver", cfg.Events.Driver)
	}

	inventoryRepo := inventory.NewRepository(db.Pool)
	if cfg.Alerts.Enabled {
		app.Alerts = notification.NewAlertSink(cfg.Alerts.FeedSize, logger)
		app.Monitor = inventory.NewMonitor(inventoryRepo.Snapshot(), app.Alerts, logger)
		go app.Monitor.Run(ctx, cfg.Alerts.RefreshInterval)

		if app.Bus != nil {
			invalidate := func(ctx context.Context, event events.Event) error {
				app.Monitor.Invalidate()
				return nil
			}
			if err := app.Bus.Subscribe(ctx, "inventory.*", "", invalidate); err != nil {
				logger.Warn("failed to subscribe to inventory events", "error", err)
			}
		}
	}

	if cfg.Legacy.Enabled {
		src, err := legacy.Open(ctx, cfg.Legacy)
		if err != nil {
			logger.Warn("legacy inventory not available", "error", err)
		} else {
			app.Legacy = src
			defer src.Close()
			go reportLegacyAlerts(ctx, src, logger)
		}
	}

	limiter := secmiddleware.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go sweepLimiter(ctx, limiter)

	r := chi.NewRouter()

	// Global middleware
	r.Use(secmiddleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(secmiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.CORS(secmiddleware.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	r.Use(secmiddleware.InputSanitizer)
	r.Use(metrics.Middleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	// API info
	r.Get("/", infoHandler)

	staffRepo := staff.NewRepository(db.Pool)
	staffHandler := staff.NewHandler(staffRepo, app.Bus, logger)
	ownerHandler := owner.NewHandler(owner.NewRepository(db.Pool), app.Bus, logger)
	reportsHandler := reports.NewHandler(inventoryRepo.Snapshot(), staffRepo, nil)
	inventoryHandler := inventory.NewHandler(inventoryRepo, app.Bus, app.Monitor, logger)
	notificationService := notification.NewService(
		notification.NewRepository(db.Pool),
		notification.DefaultProviders(logger),
		app.Executor,
		logger,
	)
	notificationHandler := notification.NewHandler(notificationService, app.Alerts)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Use(sharedauth.Middleware(cfg.Auth))

		authRouter := auth.NewHandler().Routes()
		authRouter.Get("/me", staffHandler.Me)
		r.Mount("/auth", authRouter)

		r.Mount("/staff", staffHandler.Routes())
		r.Mount("/inventory", inventoryHandler.Routes())
		r.Mount("/notifications", notificationHandler.Routes())
		r.Mount("/owners", ownerHandler.Routes())
		r.Mount("/reports", reportsHandler.Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
		close(done)
	}()

	logger.Info("vetcore api starting",
		"env", cfg.Server.Env,
		"addr", srv.Addr,
		"events", cfg.Events.Driver,
		"alerts", cfg.Alerts.Enabled,
		"legacy", app.Legacy != nil,
	)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	<-done
	logger.Info("server stopped")
}

// reportLegacyAlerts classifies the legacy stock once at startup so
// operators can see what would alert before importing it.
func reportLegacyAlerts(ctx context.Context, src *legacy.Source, logger *slog.Logger) {
	items, err := src.ListItems(ctx)
	if err != nil {
		logger.Warn("failed to read legacy inventory", "error", err)
		return
	}

	s := inventory.Summarize(items, civil.DateOf(time.Now()))
	logger.Info("legacy inventory classified",
		"items", len(items),
		"expired", len(s.Expired),
		"critical", len(s.Critical),
		"warning", len(s.Warning),
		"upcoming", len(s.Upcoming),
	)
}

func sweepLimiter(ctx context.Context, limiter *secmiddleware.IPRateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "VetCore Clinic API",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if err := app.DB.Health(r.Context()); err != nil {
			checks["database"] = "not ready: " + err.Error()
		} else {
			checks["database"] = "ready"
		}

		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["events"] = "not ready: " + err.Error()
			} else {
				checks["events"] = "ready"
			}
		} else {
			checks["events"] = "not configured"
		}

		if app.Monitor != nil {
			switch app.Monitor.Last().Status {
			case inventory.SnapshotReady:
				checks["inventory_snapshot"] = "ready"
			case inventory.SnapshotUnavailable:
				checks["inventory_snapshot"] = "degraded"
			default:
				checks["inventory_snapshot"] = "pending"
			}
		}

		allReady := true
		for name, status := range checks {
			if name == "inventory_snapshot" {
				continue
			}
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		acquired, total := app.DB.InUse()
		json.NewEncoder(w).Encode(map[string]any{
			"status":   map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks":   checks,
			"breakers": app.Executor.States(),
			"database_connections": map[string]int32{
				"acquired": acquired,
				"total":    total,
			},
		})
	}
}
