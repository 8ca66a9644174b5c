package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"crm-visma-sync-layer/internal/application"
	"crm-visma-sync-layer/internal/config"
	"crm-visma-sync-layer/internal/domain"
	"crm-visma-sync-layer/internal/infrastructure/authstate"
	"crm-visma-sync-layer/internal/infrastructure/repository"
	vismainfra "crm-visma-sync-layer/internal/infrastructure/visma"
	"crm-visma-sync-layer/internal/metrics"
	"crm-visma-sync-layer/internal/ports"
)

func main() {
	// Initialize logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("⚠️  Warning: .env file not found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Connect to MongoDB
	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(cfg.MongoDatabase)

	// Connect to Redis (OAuth state store)
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Visma.net access path: token manager -> rate-limited transport -> typed client
	tokenManager := vismainfra.NewTokenManager(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURI, cfg.AuthBaseURL, logger, m)
	transport := vismainfra.NewTransport(tokenManager, cfg.RateLimitDelay, logger, m)
	vismaClient := vismainfra.NewClient(transport, cfg.APIBaseURL, cfg.CompanyDB, cfg.BatchSize, logger)

	// Repositories
	customerRepo := repository.NewMongoCustomerRepository(db)
	productRepo := repository.NewMongoProductRepository(db)
	stateRepo := repository.NewMongoSyncStateRepository(db)
	authStates := authstate.NewRedisStore(redisClient)

	// Application services
	retryConfig := application.RetryConfig{Attempts: cfg.RetryAttempts, Delay: cfg.RetryDelay}
	customerSync := application.NewCustomerSyncService(customerRepo, stateRepo, vismaClient, retryConfig, cfg.CreateMissingCustomers, logger, m)
	productSync := application.NewProductSyncService(productRepo, stateRepo, vismaClient, retryConfig, cfg.CreateMissingProducts, logger, m)
	connectService := application.NewConnectService(tokenManager, authStates, vismaClient, logger)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	// Health check - must be public for monitoring
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, r, "./docs/swagger.json")
	})

	// OAuth routes
	r.Get("/auth/visma", oauthInitHandler(connectService, logger))
	r.Get("/auth/visma/callback", oauthCallbackHandler(connectService, logger))
	r.Post("/auth/visma/disconnect", func(w http.ResponseWriter, r *http.Request) {
		connectService.Disconnect()
		writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
	})

	// Connection routes
	r.Get("/visma/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, connectService.Status())
	})
	r.Post("/visma/test", func(w http.ResponseWriter, r *http.Request) {
		company, err := connectService.TestConnection(r.Context())
		if err != nil {
			logger.Error().Err(err).Msg("Connection test failed")
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"connected": true, "company": company})
	})

	// Lookup routes for the CRM mapping UI
	r.Get("/visma/vat-categories", lookupHandler(logger, connectService.VATCategories))
	r.Get("/visma/item-classes", lookupHandler(logger, connectService.ItemClasses))

	// Sync routes
	r.Post("/sync/customers", syncHandler(logger, func(ctx context.Context, opts application.RunOptions) (*domain.SyncRunSummary, error) {
		return customerSync.Run(ctx, opts)
	}))
	r.Post("/sync/products", syncHandler(logger, func(ctx context.Context, opts application.RunOptions) (*domain.SyncRunSummary, error) {
		return productSync.Run(ctx, opts)
	}))
	r.Get("/sync/customers/status", syncStatusHandler(stateRepo, domain.EntityCustomer, logger))
	r.Get("/sync/products/status", syncStatusHandler(stateRepo, domain.EntityProduct, logger))
	r.Post("/sync/customers/reset", syncResetHandler(stateRepo, domain.EntityCustomer, logger))
	r.Post("/sync/products/reset", syncResetHandler(stateRepo, domain.EntityProduct, logger))

	// Background auto-sync
	if cfg.AutoSync {
		go autoSyncLoop(context.Background(), cfg.SyncInterval, customerSync, productSync, tokenManager, logger)
	}

	logger.Info().Str("port", cfg.Port).Msg("Starting API server")
	logger.Info().Msg("Swagger documentation available at http://localhost:" + cfg.Port + "/swagger/index.html")
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
}

// oauthInitHandler starts the Visma.net consent flow.
func oauthInitHandler(connectService *application.ConnectService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authURL, err := connectService.BeginAuthorization(r.Context())
		if err != nil {
			logger.Error().Err(err).Msg("Failed to start authorization")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// oauthCallbackHandler completes the consent flow.
func oauthCallbackHandler(connectService *application.ConnectService, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		code := r.URL.Query().Get("code")

		if err := connectService.CompleteAuthorization(r.Context(), state, code); err != nil {
			logger.Error().Err(err).Msg("Authorization callback failed")
			status := http.StatusInternalServerError
			var authErr *domain.AuthError
			if errors.As(err, &authErr) {
				status = http.StatusUnauthorized
			}
			http.Error(w, "Authorization failed", status)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
	}
}

// syncHandler triggers one sync run; direction and prices come from the
// query string.
func syncHandler(logger zerolog.Logger, run func(context.Context, application.RunOptions) (*domain.SyncRunSummary, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := application.RunOptions{
			SyncPrices: r.URL.Query().Get("prices") == "true",
		}
		switch r.URL.Query().Get("direction") {
		case "", string(domain.DirectionBidirectional):
			opts.Direction = domain.DirectionBidirectional
		case string(domain.DirectionCRMToVisma):
			opts.Direction = domain.DirectionCRMToVisma
		case string(domain.DirectionVismaToCRM):
			opts.Direction = domain.DirectionVismaToCRM
		default:
			http.Error(w, "invalid direction", http.StatusBadRequest)
			return
		}

		summary, err := run(r.Context(), opts)
		if err != nil {
			logger.Error().Err(err).Msg("Sync run failed")
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "summary": summary})
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// lookupHandler serves one of the Visma.net lookup lists.
func lookupHandler[T any](logger zerolog.Logger, fetch func(context.Context) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := fetch(r.Context())
		if err != nil {
			logger.Error().Err(err).Msg("Lookup failed")
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, values)
	}
}

// syncResetHandler drops the persisted sync state for one entity type:
// mappings, stats, conflict log and last-sync time all start over.
func syncResetHandler(stateRepo ports.SyncStateRepository, entityType domain.EntityType, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := stateRepo.Clear(r.Context(), entityType); err != nil {
			logger.Error().Err(err).Msg("Failed to reset sync state")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		logger.Info().Str("entity_type", string(entityType)).Msg("Sync state reset")
		writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	}
}

// syncStatusHandler returns the persisted sync state for one entity type.
func syncStatusHandler(stateRepo ports.SyncStateRepository, entityType domain.EntityType, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := stateRepo.Load(r.Context(), entityType)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to load sync state")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

// autoSyncLoop runs both sync services on a fixed interval while the
// Visma connection is authenticated.
func autoSyncLoop(ctx context.Context, interval time.Duration, customerSync *application.CustomerSyncService, productSync *application.ProductSyncService, auth ports.AuthManager, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", interval).Msg("Auto-sync enabled")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !auth.Status().Authenticated {
			logger.Debug().Msg("Auto-sync skipped, not connected to Visma")
			continue
		}
		opts := application.RunOptions{Direction: domain.DirectionBidirectional, SyncPrices: true}
		if _, err := customerSync.Run(ctx, opts); err != nil {
			logger.Error().Err(err).Msg("Auto customer sync failed")
		}
		if _, err := productSync.Run(ctx, opts); err != nil {
			logger.Error().Err(err).Msg("Auto product sync failed")
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
