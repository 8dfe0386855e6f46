package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"chat-backend/internal/auth"
	"chat-backend/internal/chat"
	"chat-backend/internal/config"
	"chat-backend/internal/db"
	grpcserver "chat-backend/internal/grpc"
	"chat-backend/internal/handlers"
	"chat-backend/internal/middleware"
	"chat-backend/internal/observability"
	"chat-backend/internal/rabbitmq"
	"chat-backend/internal/ratelimit"
	"chat-backend/internal/repositories"
	"chat-backend/internal/telemetry"
	"chat-backend/internal/ws"
)

type storage struct {
	users    repositories.UserRepository
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	db       *sqlx.DB
}

func openStorage(ctx context.Context, cfg config.Config, logger zerolog.Logger) (storage, error) {
	if cfg.DatabaseDSN == "" {
		logger.Warn().Msg("DB_DSN not set, using in-memory storage")
		messages := repositories.NewMemoryMessageRepo()
		return storage{
			users:    repositories.NewMemoryUserRepo(),
			chats:    repositories.NewMemoryChatRepo(messages),
			messages: messages,
		}, nil
	}

	database, err := db.Connect(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		return storage{}, err
	}
	return storage{
		users:    repositories.NewUserRepo(database),
		chats:    repositories.NewChatRepo(database),
		messages: repositories.NewMessageRepo(database),
		db:       database,
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := observability.NewLogger(cfg.IsDevelopment(), cfg.ServiceName)
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	shutdownTracing, err := observability.SetupTracing(startCtx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	store, err := openStorage(startCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to db")
	}

	probes := map[string]func(context.Context) error{}
	if store.db != nil {
		probes["database"] = store.db.PingContext
	}

	var chatOpts []chat.Option
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = ratelimit.Connect(startCtx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, message rate limiting disabled")
		} else {
			limiter := ratelimit.NewRedisLimiter(redisClient, cfg.RateLimitMessages, cfg.RateLimitWindow)
			chatOpts = append(chatOpts, chat.WithLimiter(limiter))
			probes["redis"] = limiter.Ping
		}
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	observability.SetPublisher(publisher)
	logger.Info().Str("mode", rabbitmq.PublisherMode(publisher)).Str("reason", rabbitmq.PublisherNoopReason(publisher)).Msg("event publisher ready")
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Env, logger)

	tokens := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL, cfg.ServiceName)
	authService := auth.NewService(store.users, auth.NewPasswordHasher(), tokens)
	if cfg.SeedTestUser {
		if user, err := authService.SeedTestUser(startCtx); err != nil {
			logger.Warn().Err(err).Msg("seed test user failed")
		} else {
			logger.Info().Int("user_id", user.ID).Msg("test user available")
		}
	}

	hub := ws.NewHub(logger)
	chatService := chat.NewService(store.users, store.chats, store.messages, hub, logger, chatOpts...)

	authHandler := handlers.NewAuthHandler(authService, audit, logger)
	userHandler := handlers.NewUserHandler(store.users, authService, audit, logger)
	chatHandler := handlers.NewChatHandler(chatService, logger)
	chatWS := ws.NewChatWebSocketHandler(hub, authService, chatService, logger)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		observability.RequestID(),
		otelgin.Middleware(cfg.ServiceName),
		observability.HTTPMetricsMiddleware(),
		observability.RequestLogger(logger),
	)

	router.GET("/health", handlers.Health(probes))
	router.GET("/metrics", observability.MetricsHandler())
	router.GET("/ws", chatWS.Handle)
	router.GET("/ws/:user_id", chatWS.Handle)
	handlers.RegisterAPIRoutes(router, middleware.AuthMiddleware(authService), authHandler, userHandler, chatHandler)
	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcHealth := grpcserver.NewHealthServer(probes, logger)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Fatal().Err(err).Str("port", cfg.GRPCPort).Msg("failed to listen for grpc")
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return grpcHealth.Serve(grpcListener)
	})
	g.Go(func() error {
		grpcHealth.Watch(gctx, 15*time.Second)
		return nil
	})
	go func() {
		if err := g.Wait(); err != nil {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"chat-backend": func(ctx context.Context) error {
				logger.Info().Int("connections", hub.Count()).Msg("graceful shutdown initiated")
				stopRun()
				hub.CloseAll("server shutting down")
				grpcHealth.Shutdown()

				var errs []error
				errs = append(errs, httpServer.Shutdown(ctx))
				errs = append(errs, publisher.Close())
				if redisClient != nil {
					errs = append(errs, redisClient.Close())
				}
				if store.db != nil {
					errs = append(errs, store.db.Close())
				}
				errs = append(errs, shutdownTracing(ctx))
				return errors.Join(errs...)
			},
		},
	)

	exitCode := <-wait
	logger.Info().Int("exit_code", exitCode).Msg("chat-backend stopped")
	os.Exit(exitCode)
}
