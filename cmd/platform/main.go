package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/campovivo/platform/internal/adapters/herdbook"
	"github.com/campovivo/platform/internal/admin"
	"github.com/campovivo/platform/internal/auth"
	"github.com/campovivo/platform/internal/identity"
	"github.com/campovivo/platform/internal/livestock"
	"github.com/campovivo/platform/internal/shared/config"
	"github.com/campovivo/platform/internal/shared/database"
	"github.com/campovivo/platform/internal/shared/events"
	"github.com/campovivo/platform/internal/shared/metrics"
	secmiddleware "github.com/campovivo/platform/internal/shared/middleware"
)

// App holds the application dependencies
type App struct {
	Config   *config.Config
	DB       *database.DB
	Bus      *events.Bus
	Herdbook *herdbook.Adapter
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Server.Env)
	log := logrus.WithField("component", "main")

	app := &App{Config: cfg}

	// The identity store lives in postgres; without it nothing can
	// authenticate, so this one is not optional.
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("database not available")
	}
	app.DB = db
	defer db.Close()

	if err := database.Migrate(ctx, db.Pool); err != nil {
		log.WithError(err).Fatal("migration failed")
	}

	// Legacy herd-book fallback (optional - older deployments only)
	var legacy auth.LegacyRoleSource
	if cfg.LegacyDB.Enabled {
		hb, err := herdbook.New(ctx, cfg.LegacyDB)
		if err != nil {
			log.WithError(err).Warn("herd-book database not available, running without legacy role fallback")
		} else {
			app.Herdbook = hb
			legacy = hb
			defer hb.Close()
			log.Info("herd-book legacy role fallback enabled")
		}
	}

	// Event bus (optional - skip if not available)
	if cfg.EventStore.Enabled {
		bus, err := events.NewBus(ctx, cfg.EventStore)
		if err != nil {
			log.WithError(err).Warn("event store not available, running without event streaming")
		} else {
			app.Bus = bus
			defer bus.Close()
			log.Info("event bus initialized")
		}
	}

	// Authorization core
	store := identity.NewStore(db.Pool, cfg.Auth)
	resolver := auth.NewResolver(store, legacy, 5*time.Minute)
	visibility := auth.NewVisibility(store, resolver)
	guard := auth.NewGuard(store, resolver, cfg.Auth)

	authHandler := auth.NewHandler(store, resolver, visibility, app.Bus)

	var publisher admin.Publisher
	if app.Bus != nil {
		publisher = app.Bus
	}
	adminHandler := admin.NewHandler(store, resolver, visibility, publisher, cfg.Auth)

	livestockRepo := livestock.NewRepository(db.Pool)
	livestockHandler := livestock.NewHandler(livestockRepo, visibility)

	// Audit trail: every auth, role and grant event ends up in the log
	if app.Bus != nil {
		startAuditSubscriber(ctx, app.Bus)
	}

	signinLimiter := secmiddleware.NewIPRateLimiter(cfg.RateLimit.SignInRPS, cfg.RateLimit.SignInBurst)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(secmiddleware.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.InputSanitizer)
	r.Use(metrics.Middleware)
	r.Use(secmiddleware.CORS)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	r.Get("/", infoHandler)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(signinLimiter.Middleware)
			r.Mount("/auth", authHandler.Routes(guard))
		})

		r.Group(func(r chi.Router) {
			r.Use(guard.Protect(auth.AdminOnly))
			r.Mount("/admin", adminHandler.Routes())
		})

		r.Mount("/farms", livestockHandler.Routes(guard))
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("server shutdown error")
		}
		close(done)
	}()

	log.WithFields(logrus.Fields{
		"env":  cfg.Server.Env,
		"port": cfg.Server.Port,
	}).Info("Campo Vivo platform listening")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server error")
	}

	<-done
	log.Info("server stopped")
}

func setupLogging(env string) {
	if env == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		logrus.SetLevel(logrus.DebugLevel)
	}
}

// startAuditSubscriber mirrors authorization-relevant events into the
// structured log
func startAuditSubscriber(ctx context.Context, bus *events.Bus) {
	log := logrus.WithField("component", "audit")

	handler := func(ctx context.Context, event events.Event) error {
		log.WithFields(logrus.Fields{
			"event_id":   event.ID,
			"event_type": event.Type,
			"actor_id":   event.ActorID,
			"actor_role": event.ActorRole,
		}).Info("audit event")
		return nil
	}

	for _, pattern := range []string{"auth.*", "role.*", "grants.*"} {
		if err := bus.Subscribe(ctx, pattern, handler); err != nil {
			log.WithError(err).WithField("pattern", pattern).Warn("audit subscription failed")
		}
	}
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "Campo Vivo Farm Management Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready := true
		checks := map[string]string{"server": "ready"}

		if err := app.DB.Health(r.Context()); err != nil {
			checks["database"] = "not ready: " + err.Error()
			ready = false
		} else {
			checks["database"] = "ready"
		}

		if app.Herdbook != nil {
			if err := app.Herdbook.Health(r.Context()); err != nil {
				checks["herdbook"] = "not ready: " + err.Error()
			} else {
				checks["herdbook"] = "ready"
			}
		}

		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["eventstore"] = "not ready: " + err.Error()
			} else {
				checks["eventstore"] = "ready"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(checks)
	}
}
