package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hospitalops/queue-service/internal/config"
	"hospitalops/queue-service/internal/events"
	"hospitalops/queue-service/internal/httpapi"
	"hospitalops/queue-service/internal/models"
	"hospitalops/queue-service/internal/queue"
	"hospitalops/queue-service/internal/registry"
	"hospitalops/queue-service/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()

	shutdownTelemetry := telemetry.Setup("queue-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	ctx, stopOutbox := context.WithCancel(context.Background())
	defer stopOutbox()

	var pool *pgxpool.Pool
	var reg queue.Registry
	var pgRegistry *registry.Postgres
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()

		pgRegistry, err = registry.NewPostgres(context.Background(), pool)
		if err != nil {
			log.Fatalf("registry load: %v", err)
		}
		reg = pgRegistry
	} else {
		reg = registry.NewMemory([]models.Department{{
			DepartmentID:           "general",
			Name:                   "General Medicine",
			AvgConsultationMinutes: cfg.DefaultAvgConsultMinutes,
			Capacity:               cfg.DefaultCapacity,
		}})
		log.Printf("no DB_DSN configured, using in-memory registry with default department")
	}

	var sinks []events.Sink
	if pool != nil {
		sinks = append(sinks, events.NewArchive(pool))
	}
	if cfg.NatsURL != "" {
		publisher, err := events.NewNATSPublisher(cfg.NatsURL, cfg.NatsSubject)
		if err != nil {
			log.Fatalf("nats connect: %v", err)
		}
		defer func() { _ = publisher.Close() }()
		sinks = append(sinks, publisher)
	}
	outbox := events.NewOutbox(cfg.OutboxBuffer, sinks...)
	go outbox.Run(ctx)

	manager := queue.NewManager(reg, queue.Options{
		Recorder:    outbox,
		AutoAdvance: cfg.AutoAdvance,
	})
	for _, dept := range reg.ListDepartments() {
		// Queue id mirrors the department id so callers can address the
		// queue without a discovery step.
		if _, err := manager.RegisterQueue(models.Queue{
			QueueID:      dept.DepartmentID,
			DepartmentID: dept.DepartmentID,
		}); err != nil {
			log.Fatalf("register queue for %s: %v", dept.DepartmentID, err)
		}
	}

	handler := httpapi.NewHandler(manager)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})
	routes := httpapi.IdentityMiddleware(limiter.Middleware(handler.Routes()))
	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(routes), "queue-service")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("queue-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	go func() {
		if pgRegistry == nil || cfg.RegistryRefreshInterval <= 0 {
			return
		}
		ticker := time.NewTicker(cfg.RegistryRefreshInterval)
		defer ticker.Stop()
		for range ticker.C {
			refreshCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := pgRegistry.Refresh(refreshCtx)
			cancel()
			if err != nil {
				log.Printf("registry refresh error: %v", err)
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	stopOutbox()
}
