package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"marginalia/internal/annotation/feed"
	annotationhandler "marginalia/internal/annotation/handler"
	annotationservice "marginalia/internal/annotation/service"
	annotationstore "marginalia/internal/annotation/store"
	dochandler "marginalia/internal/document/handler"
	docservice "marginalia/internal/document/service"
	docstore "marginalia/internal/document/store"
	httpapi "marginalia/internal/http"
	"marginalia/internal/platform/config"
	"marginalia/internal/platform/httpserver"
	"marginalia/internal/platform/logger"
	"marginalia/internal/platform/metrics"
	platformredis "marginalia/internal/platform/redis"
	"marginalia/internal/render"
	rendercache "marginalia/internal/render/cache"
	renderhandler "marginalia/internal/render/handler"
	auditkafka "marginalia/pkg/platform/audit/kafka"
	auditpublisher "marginalia/pkg/platform/audit/publisher"
	auditmemory "marginalia/pkg/platform/audit/store/memory"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Stores: Postgres when configured, in-memory otherwise.
	var (
		documents   docservice.DocumentStore
		annotations annotationservice.Store
		serviceOpts []annotationservice.Option
		health      []httpapi.HealthCheck
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		documents = docstore.NewPostgres(db)
		annotations = annotationstore.NewPostgres(db)
		serviceOpts = append(serviceOpts, annotationservice.WithStoreTx(newAnnotationPostgresTx(db)))
		health = append(health, httpapi.HealthCheck{Name: "postgres", Check: db.PingContext})
		log.Info("using postgres stores")
	} else {
		documents = docstore.NewMemory()
		annotations = annotationstore.NewMemory()
		log.Info("using in-memory stores")
	}

	// Audit trail: Kafka when brokers are configured, in-memory otherwise.
	// Both backends satisfy the one-method publisher interface every service
	// consumes.
	var audit annotationservice.AuditPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := auditkafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic,
			auditkafka.WithLogger(log),
			auditkafka.WithMetrics(auditkafka.NewMetrics()),
		)
		if err != nil {
			return err
		}
		defer kp.Close()

		ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = kp.EnsureTopic(ensureCtx, 3, 1)
		cancel()
		if err != nil {
			return err
		}
		audit = kp
		log.Info("audit events go to kafka", "topic", cfg.Kafka.Topic)
	} else {
		mp := auditpublisher.NewPublisher(auditmemory.NewInMemoryStore(),
			auditpublisher.WithLogger(log),
			auditpublisher.WithAsyncBuffer(1024),
		)
		defer mp.Close()
		audit = mp
	}

	// Change feed hub; Run returns when ctx is cancelled.
	hub := feed.NewHub(feed.WithLogger(log), feed.WithMetrics(m))
	go hub.Run(ctx)

	docService := docservice.New(documents,
		docservice.WithLogger(log),
		docservice.WithMetrics(m),
		docservice.WithAuditPublisher(audit),
	)

	serviceOpts = append(serviceOpts,
		annotationservice.WithLogger(log),
		annotationservice.WithMetrics(m),
		annotationservice.WithAuditPublisher(audit),
		annotationservice.WithNotifier(hub),
		annotationservice.WithNewMarkTTL(cfg.NewMarkTTL),
		annotationservice.WithSelectionTTL(cfg.SelectionTTL),
	)
	annotationService := annotationservice.New(annotations, docService, serviceOpts...)

	renderOpts := []render.Option{
		render.WithLogger(log),
		render.WithMetrics(m),
		render.WithAuditPublisher(audit),
		render.WithCacheTTL(cfg.RenderCacheTTL),
	}
	if cfg.Redis.URL != "" {
		rc, err := platformredis.New(cfg.Redis)
		if err != nil {
			return err
		}
		defer rc.Close()
		renderOpts = append(renderOpts, render.WithCache(
			rendercache.NewRedis(rc.Client, rendercache.WithLogger(log)),
		))
		health = append(health, httpapi.HealthCheck{Name: "redis", Check: rc.Health})
		log.Info("render cache backed by redis")
	}
	renderService := render.New(docService, annotations, renderOpts...)

	router := httpapi.NewRouter(httpapi.Deps{
		Handlers: []httpapi.Registrar{
			dochandler.New(docService, log, m),
			annotationhandler.New(annotationService, log, m),
			renderhandler.New(renderService, log, m),
			feed.NewHandler(hub, docService, log),
		},
		Health: health,
	})

	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting marginalia", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
