package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/go-chi/chi/v5"

	"github.com/lumenshop/api/internal/di"
	"github.com/lumenshop/api/internal/handlers"
	"github.com/lumenshop/api/internal/payments"
	"github.com/lumenshop/api/internal/platform/auth"
	"github.com/lumenshop/api/internal/platform/config"
	"github.com/lumenshop/api/internal/platform/events"
	pfirestore "github.com/lumenshop/api/internal/platform/firestore"
	"github.com/lumenshop/api/internal/platform/idempotency"
	"github.com/lumenshop/api/internal/platform/observability"
	"github.com/lumenshop/api/internal/repositories"
	firestoreRepo "github.com/lumenshop/api/internal/repositories/firestore"
	"github.com/lumenshop/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	serviceLogger := observability.ServiceLogger(logger.Named("services"))

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	var orderEvents services.OrderEventPublisher
	var pubsubClient *pubsub.Client
	var orderTopic *pubsub.Topic
	if cfg.Events.ProjectID != "" && cfg.Events.OrderTopic != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		orderTopic = pubsubClient.Topic(cfg.Events.OrderTopic)
		defer orderTopic.Stop()

		publisher, err := events.NewPubSubOrderEventPublisher(orderTopic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		orderEvents = publisher
	} else {
		logger.Info("order event publishing disabled; no pubsub topic configured")
	}

	healthRepo, err := buildHealthRepository(firestoreClient, orderTopic)
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, healthRepo)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	paymentManager, err := buildPaymentManager(cfg)
	if err != nil {
		logger.Fatal("failed to initialise payment providers", zap.Error(err))
	}

	container, err := di.NewContainer(cfg, registry, di.Deps{
		PaymentManager: paymentManager,
		OrderEvents:    orderEvents,
		Logger:         serviceLogger,
	})
	if err != nil {
		logger.Fatal("failed to wire services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		logger.Fatal("failed to initialise token verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(verifier)

	idempotencyStore := idempotency.NewMemoryStore()
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go runIdempotencyCleanup(cleanupCtx, idempotencyStore, logger.Named("idempotency"))

	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders)
	paymentHandlers := handlers.NewPaymentHandlers(container.Services.Payments)
	addressHandlers := handlers.NewAddressHandlers(container.Services.Addresses)
	adminHandlers := handlers.NewAdminOrderHandlers(authenticator, container.Services.Orders, container.Services.Payments)
	webhookHandlers := handlers.NewWebhookHandlers(container.Services.Payments)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthReporter(registry.Health()),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(func(r chi.Router) {
			orderHandlers.Routes(r)
			paymentHandlers.Routes(r)
			addressHandlers.Routes(r)
		}),
		handlers.WithOrderMiddlewares(idempotency.Middleware(idempotencyStore,
			idempotency.WithLogger(serviceLogger),
			idempotency.WithMethods(http.MethodPost),
		)),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithWebhookMiddlewares(handlers.WebhookSignatureMiddleware(cfg.PSP.WebhookSecret)),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("lumenshop api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")
	cleanupCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildHealthRepository(client *firestore.Client, topic *pubsub.Topic) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 2)

	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}

	if topic != nil {
		t := topic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				exists, err := t.Exists(ctx)
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("topic %s does not exist", t.ID())
				}
				return nil
			},
		})
	}

	return repositories.NewDependencyHealthRepository(checks)
}

func buildPaymentManager(cfg config.Config) (*payments.Manager, error) {
	if cfg.PSP.StripeAPIKey == "" {
		return nil, nil
	}
	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.PSP.StripeAPIKey,
	})
	if err != nil {
		return nil, err
	}
	return payments.NewManager(map[string]payments.Provider{
		"stripe": stripeProvider,
	})
}

func runIdempotencyCleanup(ctx context.Context, store *idempotency.MemoryStore, logger *zap.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.CleanupExpired(ctx, time.Now().UTC(), 1000)
			if err != nil {
				logger.Warn("cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("expired idempotency records removed", zap.Int("count", removed))
			}
		}
	}
}
