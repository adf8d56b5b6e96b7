package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/engify/obo-gateway/internal/api/http"
	"github.com/engify/obo-gateway/internal/api/http/handlers"
	"github.com/engify/obo-gateway/internal/config"
	"github.com/engify/obo-gateway/internal/events"
	"github.com/engify/obo-gateway/internal/observability"
	"github.com/engify/obo-gateway/internal/persistence"
	"github.com/engify/obo-gateway/internal/ratelimit"
	"github.com/engify/obo-gateway/internal/repository"
	"github.com/engify/obo-gateway/internal/service"
	"github.com/engify/obo-gateway/internal/session"
	"github.com/engify/obo-gateway/internal/token"
	"github.com/engify/obo-gateway/internal/worker"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	limiter := ratelimit.NewLimiter(
		ratelimit.NewRedisStore(redis.Client),
		ratelimit.DefaultLimits(),
		cfg.RateLimit.StoreTimeout(),
		cfg.RateLimit.Enabled,
		logger,
	)

	issuer, err := buildIssuer(cfg.Auth)
	if err != nil {
		logger.Fatal("failed to build obo issuer", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher()
	pool := pg.PoolHandle()
	if pool != nil {
		worker.StartAuditWorker(dispatcher, repository.NewAuditRepository(pool), logger)
	}

	var clients repository.ClientRepository
	if pool != nil {
		clients = repository.NewClientRepository(pool)
	}

	exchangeService := service.NewExchangeService(service.ExchangeDependencies{
		Limiter:    limiter,
		Validator:  token.NewValidator(cfg.Auth.SubjectTokenSecret),
		Mapper:     token.NewAudienceMapper(cfg.Auth.ResourceMappings),
		Sessions:   session.NewRedisChecker(redis.Client, cfg.RateLimit.StoreTimeout()),
		Issuer:     issuer,
		Clients:    clients,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	}, cfg.Auth.RequireClientAuth)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:   handlers.NewHealthHandler(redis, pg),
		Exchange: handlers.NewExchangeHandler(exchangeService),
		JWKS:     handlers.NewJWKSHandler(issuer),
		Limiter:  limiter,
		Metrics:  metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func buildIssuer(cfg config.AuthConfig) (*token.Issuer, error) {
	if cfg.OBOSigningKeyPEM != "" {
		return token.NewRS256IssuerFromPEM(
			[]byte(cfg.OBOSigningKeyPEM),
			cfg.OBOKeyID,
			cfg.Issuer,
			cfg.ServiceActorID,
			cfg.OBOTokenTTL(),
		)
	}
	return token.NewHS256Issuer(cfg.OBOSigningSecret, cfg.Issuer, cfg.ServiceActorID, cfg.OBOTokenTTL()), nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
