package application

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/niraliveastro/astro-call-service/internal/auth"
	"github.com/niraliveastro/astro-call-service/internal/config"
	"github.com/niraliveastro/astro-call-service/internal/database"
	grpcserver "github.com/niraliveastro/astro-call-service/internal/grpc"
	"github.com/niraliveastro/astro-call-service/internal/handler"
	"github.com/niraliveastro/astro-call-service/internal/jobs"
	"github.com/niraliveastro/astro-call-service/internal/kafka"
	"github.com/niraliveastro/astro-call-service/internal/relay"
	"github.com/niraliveastro/astro-call-service/internal/repository"
	"github.com/niraliveastro/astro-call-service/internal/router"
	"github.com/niraliveastro/astro-call-service/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const readinessInterval = 5 * time.Second

// Backend is the persistence and fan-out layer shared by the API and one-shot commands.
type Backend struct {
	DB       *gorm.DB // nil with the memory store
	Calls    repository.CallRepository
	Statuses repository.StatusRepository
	Redis    *redis.Client // nil without REDIS_ADDR
	Producer *kafka.Producer
}

// OpenBackend runs migrations and opens the configured stores, Redis and Kafka.
func OpenBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Backend, error) {
	b := &Backend{}
	if cfg.UsesDatabase() {
		if err := database.MigrateUp(cfg.DatabaseURL(), log); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		db, err := database.Open(cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		b.DB = db
		b.Calls = repository.NewCallStore(db)
		b.Statuses = repository.NewStatusStore(db)
	} else {
		log.Warn("using in-memory stores, data is lost on restart")
		b.Calls = repository.NewMemoryCallStore()
		b.Statuses = repository.NewMemoryStatusStore()
	}

	if cfg.Redis.Addr != "" {
		client, err := relay.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		}.NewConnection(ctx)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		b.Redis = client
	}

	b.Producer = kafka.NewProducer(kafka.ParseBrokers(cfg.KafkaBrokers), cfg.KafkaTopicCalls, log)
	return b, nil
}

// Ready pings the database and Redis.
func (b *Backend) Ready(ctx context.Context) error {
	if b.DB != nil {
		if err := database.Ping(ctx, b.DB); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if b.Redis != nil {
		if err := b.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases connections. It is safe on a partially opened backend.
func (b *Backend) Close() {
	if b.Producer != nil {
		_ = b.Producer.Close()
	}
	if b.Redis != nil {
		_ = b.Redis.Close()
	}
	if b.DB != nil {
		if sqlDB, err := b.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// notifier returns the Redis relay when configured, otherwise the local hub.
func (b *Backend) notifier(cfg *config.Config, hub *service.EventHub, log *zap.Logger) (service.Notifier, *relay.Relay) {
	if b.Redis == nil {
		return hub, nil
	}
	r := relay.New(b.Redis, cfg.Redis.Channel, hub, log)
	return r, r
}

// API is the HTTP (REST, SSE, WebSocket) + gRPC health application.
type API struct {
	cfg       *config.Config
	log       *zap.Logger
	backend   *Backend
	hub       *service.EventHub
	relay     *relay.Relay
	scheduler *jobs.Scheduler
	httpSrv   *http.Server
	grpcSrv   *grpcserver.Server
	lis       net.Listener
}

// NewAPI creates the API application: validates config, opens the backend, wires services and routes.
func NewAPI(ctx context.Context, cfg *config.Config, log *zap.Logger) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend, err := OpenBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	hub := service.NewEventHub(service.HubConfig{
		HeartbeatInterval: cfg.EventsHeartbeatInterval,
		HealthInterval:    cfg.EventsHealthInterval,
		BufferSize:        cfg.EventsBufferSize,
	}, log.Named("hub"))
	notifier, rel := backend.notifier(cfg, hub, log.Named("relay"))

	statusSvc := service.NewStatusService(backend.Statuses, notifier, backend.Producer, log.Named("status"))
	callSvc := service.NewCallService(backend.Calls, statusSvc, notifier, backend.Producer, log.Named("calls"))
	if cfg.QueuePromoteOnOnline {
		statusSvc.OnOnline(func(ctx context.Context, astrologerID string) {
			if _, err := callSvc.PromoteIfIdle(ctx, astrologerID); err != nil {
				log.Error("promote on online failed", zap.String("astrologer_id", astrologerID), zap.Error(err))
			}
		})
	}

	scheduler := jobs.NewScheduler(log.Named("jobs"))
	if cfg.PendingSweepInterval > 0 {
		scheduler.Register(jobs.NewPendingCallExpirer(callSvc, cfg.PendingCallTimeout, cfg.PendingSweepInterval, log.Named("jobs")))
	}

	verifier := auth.NewVerifier(cfg.AuthJWTSecret)
	if !verifier.Enabled() {
		log.Info("AUTH_JWT_SECRET not set, status writes are not token-checked")
	}

	r := router.New(router.Handlers{
		Calls:    handler.NewCallHandler(callSvc, log),
		Status:   handler.NewStatusHandler(statusSvc, verifier, log),
		Events:   handler.NewEventsHandler(hub, log),
		WSEvents: handler.NewWSEventsHandler(hub, cfg.WSReadBufferSize, cfg.WSWriteBufferSize, log),
		Admin:    handler.NewAdminHandler(callSvc, cfg.PendingCallTimeout, log),
		Health:   handler.NewHealthHandler(backend.Ready, hub),
	}, log.Named("http"))

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("grpc listen %s: %w", cfg.GRPCAddr(), err)
	}

	// No WriteTimeout: SSE and WebSocket responses are long-lived.
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{
		cfg:       cfg,
		log:       log,
		backend:   backend,
		hub:       hub,
		relay:     rel,
		scheduler: scheduler,
		httpSrv:   httpSrv,
		grpcSrv:   grpcserver.NewServer(backend.Ready, log.Named("grpc")),
		lis:       lis,
	}, nil
}

// Run starts every server and worker and blocks until ctx is cancelled or one of them fails.
func (a *API) Run(ctx context.Context) error {
	defer a.backend.Close()

	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	a.log.Info("HTTP server listening",
		zap.String("addr", a.httpSrv.Addr),
		zap.String("swagger", base+"/swagger"),
		zap.String("events", base+"/events"),
		zap.String("ws", "ws://"+strings.TrimPrefix(base, "http://")+"/ws/events"))
	a.log.Info("gRPC health server listening", zap.String("addr", a.lis.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.grpcSrv.GRPC().Serve(a.lis); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error { return a.grpcSrv.WatchReadiness(gctx, readinessInterval) })
	g.Go(func() error { return a.scheduler.Run(gctx) })
	if a.relay != nil {
		g.Go(func() error { return a.relay.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})
	return g.Wait()
}

// shutdown closes push streams first so that http.Server.Shutdown does not wait on them.
func (a *API) shutdown() error {
	a.log.Info("shutting down")
	a.hub.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := a.httpSrv.Shutdown(shutdownCtx)
	a.grpcSrv.GRPC().GracefulStop()
	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// FixPendingCalls runs one expiry sweep outside the API process. With Redis
// configured, listeners connected to running instances still receive the events.
func FixPendingCalls(ctx context.Context, cfg *config.Config, log *zap.Logger) (int, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	backend, err := OpenBackend(ctx, cfg, log)
	if err != nil {
		return 0, err
	}
	defer backend.Close()

	hub := service.NewEventHub(service.DefaultHubConfig(), log)
	notifier, _ := backend.notifier(cfg, hub, log)
	statusSvc := service.NewStatusService(backend.Statuses, notifier, backend.Producer, log)
	callSvc := service.NewCallService(backend.Calls, statusSvc, notifier, backend.Producer, log)
	return callSvc.ExpirePending(ctx, cfg.PendingCallTimeout)
}
