package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config collects every externally supplied setting. Nothing in here is
// hardcoded into the engine; main loads it from the environment.
type Config struct {
	// OAuth 2.0 credentials
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// Visma.net endpoints and target company database
	AuthBaseURL string
	APIBaseURL  string
	CompanyDB   string

	// Local stores
	MongoURI      string
	MongoDatabase string
	RedisAddr     string

	// Sync behaviour
	AutoSync       bool
	SyncInterval   time.Duration
	BatchSize      int
	RetryAttempts  int
	RetryDelay     time.Duration
	RateLimitDelay time.Duration

	// Remote-to-CRM record creation gates
	CreateMissingCustomers bool
	CreateMissingProducts  bool

	Port string
}

// Load reads configuration from the environment, applying the same
// defaults the service has always shipped with.
func Load() (*Config, error) {
	cfg := &Config{
		ClientID:     os.Getenv("VISMA_CLIENT_ID"),
		ClientSecret: os.Getenv("VISMA_CLIENT_SECRET"),
		RedirectURI:  envOr("VISMA_REDIRECT_URI", "http://localhost:8080/auth/visma/callback"),

		AuthBaseURL: envOr("VISMA_AUTH_URL", "https://identity.visma.net/connect"),
		APIBaseURL:  envOr("VISMA_API_URL", "https://integration.visma.net/API"),
		CompanyDB:   os.Getenv("VISMA_COMPANY_DB_ID"),

		MongoURI:      envOr("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase: envOr("MONGODB_DATABASE", "broker_crm"),
		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),

		AutoSync:       envBool("SYNC_AUTO", false),
		SyncInterval:   envDuration("SYNC_INTERVAL", 5*time.Minute),
		BatchSize:      envInt("SYNC_BATCH_SIZE", 50),
		RetryAttempts:  envInt("SYNC_RETRY_ATTEMPTS", 3),
		RetryDelay:     envDuration("SYNC_RETRY_DELAY", time.Second),
		RateLimitDelay: envDuration("VISMA_RATE_LIMIT_DELAY", 100*time.Millisecond),

		CreateMissingCustomers: envBool("SYNC_CREATE_CRM_CUSTOMERS", false),
		CreateMissingProducts:  envBool("SYNC_CREATE_CRM_PRODUCTS", false),

		Port: envOr("PORT", "8080"),
	}

	if cfg.ClientID == "" {
		return nil, fmt.Errorf("VISMA_CLIENT_ID environment variable is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("VISMA_CLIENT_SECRET environment variable is required")
	}
	if cfg.CompanyDB == "" {
		return nil, fmt.Errorf("VISMA_COMPANY_DB_ID environment variable is required")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
