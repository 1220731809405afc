package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/support-chat/internal/api/http"
	"github.com/spec-kit/support-chat/internal/api/http/handlers"
	"github.com/spec-kit/support-chat/internal/auth"
	"github.com/spec-kit/support-chat/internal/config"
	"github.com/spec-kit/support-chat/internal/events"
	"github.com/spec-kit/support-chat/internal/notify"
	"github.com/spec-kit/support-chat/internal/observability"
	"github.com/spec-kit/support-chat/internal/persistence"
	"github.com/spec-kit/support-chat/internal/presence"
	"github.com/spec-kit/support-chat/internal/realtime"
	"github.com/spec-kit/support-chat/internal/repository"
	"github.com/spec-kit/support-chat/internal/service"
	"github.com/spec-kit/support-chat/internal/worker"
)

const (
	shutdownTimeout  = 10 * time.Second
	leaveTimeout     = 5 * time.Second
	amqpDialAttempts = 5
	fabricPrefix     = "chat:"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics := observability.NewMetrics()
	var checks []handlers.DependencyCheck

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	var (
		users         repository.UserRepository
		conversations repository.ConversationRepository
		messages      repository.MessageRepository
	)
	if pg.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		pool := pg.PoolHandle()
		users = repository.NewUserRepository(pool)
		conversations = repository.NewConversationRepository(pool)
		messages = repository.NewMessageRepository(pool)
		checks = append(checks, handlers.DependencyCheck{Name: "postgres", Ping: pg.Ping})
	} else {
		store := repository.NewMemoryStore()
		users, conversations, messages = store.Users(), store.Conversations(), store.Messages()
	}

	var (
		registry presence.Registry
		fabric   events.Fabric
	)
	switch cfg.Realtime.Backend {
	case config.BackendRedis:
		rdb := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer rdb.Close()
		registry = presence.NewRedisRegistry(rdb.Client)
		fabric = events.NewRedisFabric(rdb.Client, fabricPrefix, logger)
		checks = append(checks, handlers.DependencyCheck{Name: "redis", Ping: rdb.Ping})
	default:
		logger.Warn("using in-process presence and broadcast; run a single instance")
		registry = presence.NewMemoryRegistry()
		fabric = events.NewMemoryFabric(logger)
	}

	sender, amqpConn := buildSender(ctx, cfg.Notification, logger)
	if amqpConn != nil {
		defer amqpConn.Close() //nolint:errcheck
		checks = append(checks, handlers.DependencyCheck{Name: "rabbitmq", Ping: func(context.Context) error {
			if amqpConn.IsClosed() {
				return errors.New("rabbitmq connection closed")
			}
			return nil
		}})
	}

	pool := worker.NewPool(cfg.Notification.Workers, cfg.Notification.QueueSize, logger, metrics)
	pool.Start(context.WithoutCancel(ctx))
	defer pool.Stop()

	assignment := service.NewAssignmentService(service.AssignmentDependencies{
		UserRepo:         users,
		ConversationRepo: conversations,
		Fabric:           fabric,
		Logger:           logger,
	})
	conversationService := service.NewConversationService(conversations, assignment, logger)
	notifications := service.NewNotificationService(users, pool, sender, logger)

	hub := realtime.NewHub(realtime.Dependencies{
		Users:           users,
		Conversations:   conversations,
		Messages:        messages,
		Presence:        registry,
		Fabric:          fabric,
		Notifier:        notifications,
		Logger:          logger,
		Metrics:         metrics,
		PingPeriod:      cfg.Realtime.PingPeriod(),
		LeaveTimeout:    leaveTimeout,
		TypingPerSecond: cfg.Realtime.TypingPerSecond,
		TypingBurst:     cfg.Realtime.TypingBurst,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	gateway := auth.NewGateway(tokens, users, cfg.Auth.CookieName, logger)

	sessionsCtx, endSessions := context.WithCancel(context.WithoutCancel(ctx))
	defer endSessions()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:        handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, checks...),
		Conversations: handlers.NewConversationsHandler(conversationService, assignment),
		Realtime: handlers.NewRealtimeHandler(sessionsCtx, hub, handlers.ConnSettings{
			ReadLimit:  cfg.Realtime.MaxMessageBytes,
			PingPeriod: cfg.Realtime.PingPeriod(),
			WriteWait:  cfg.Realtime.WriteWait(),
		}, logger),
		Gateway: gateway,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()), zap.String("realtime_backend", string(cfg.Realtime.Backend)))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			return fmt.Errorf("fiber listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		// upgraded connections are invisible to Fiber's shutdown, so the
		// hub is drained before Redis and the worker pool go away
		endSessions()
		drainCtx, cancelDrain := context.WithTimeout(context.Background(), leaveTimeout+time.Second)
		defer cancelDrain()
		if err := hub.Wait(drainCtx); err != nil {
			logger.Warn("sessions still running at shutdown", zap.Error(err))
		}
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
	return g.Wait()
}

// buildSender publishes offline notices to RabbitMQ when configured and
// falls back to logging them.
func buildSender(ctx context.Context, cfg config.NotificationConfig, logger *zap.Logger) (notify.Sender, *amqp091.Connection) {
	logSender := notify.NewLogSender(logger, cfg.EmailFrom)
	if cfg.AMQPURL == "" {
		logger.Warn("NOTIFY_AMQP_URL not provided; offline notices are only logged")
		return logSender, nil
	}

	conn, err := persistence.DialRabbitMQ(ctx, cfg.AMQPURL, amqpDialAttempts, time.Second, logger)
	if err != nil {
		logger.Warn("rabbitmq unavailable; offline notices are only logged", zap.Error(err))
		return logSender, nil
	}
	rabbit, err := notify.NewRabbitSender(conn, cfg.Exchange, logger)
	if err != nil {
		logger.Warn("rabbitmq exchange setup failed; offline notices are only logged", zap.Error(err))
		_ = conn.Close()
		return logSender, nil
	}
	return notify.NewFallbackSender(rabbit, logSender, logger), conn
}
