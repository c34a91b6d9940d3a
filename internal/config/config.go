package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // ANALYTICS_TIMEZONE must resolve in minimal images

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreSupabase = "supabase"
)

// Wallet backends.
const (
	WalletStore = "store" // ledger table in the configured store
	WalletHTTP  = "http"  // external wallet service
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int    `env:"PORT"      envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Storage
	StoreBackend string `env:"STORE_BACKEND" envDefault:"sqlite"`
	SQLitePath   string `env:"SQLITE_PATH"   envDefault:"data/admin.db"`
	DatabaseURL  string `env:"DATABASE_URL"`

	// Supabase
	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseAnonKey    string `env:"SUPABASE_ANON_KEY"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`

	// Wallet
	WalletBackend   string `env:"WALLET_BACKEND"   envDefault:"store"`
	WalletAPIURL    string `env:"WALLET_API_URL"   envDefault:"http://localhost:8083"`
	DefaultCurrency string `env:"DEFAULT_CURRENCY" envDefault:"KRW"`

	// HTTP client
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`

	// Resilience
	MaxRetries     int           `env:"MAX_RETRIES"     envDefault:"3"`
	InitialBackoff time.Duration `env:"INITIAL_BACKOFF" envDefault:"100ms"`
	MaxConcurrency int           `env:"MAX_CONCURRENCY" envDefault:"50"`

	// Analytics
	CacheTTL          time.Duration `env:"CACHE_TTL"          envDefault:"5m"`
	AnalyticsTimezone string        `env:"ANALYTICS_TIMEZONE" envDefault:"UTC"`

	// Credit request reconciliation
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	ReconcileAfter    time.Duration `env:"RECONCILE_AFTER"    envDefault:"2m"`

	// Observability
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Admin JWT
	JWTSecret string `env:"JWT_SECRET" envDefault:"admin-bfa-dev-secret-change-me"`
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.WalletBackend = strings.ToLower(strings.TrimSpace(cfg.WalletBackend))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required for the supabase store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.WalletBackend {
	case WalletStore, WalletHTTP:
	default:
		return fmt.Errorf("unknown WALLET_BACKEND %q", c.WalletBackend)
	}

	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}
	if _, err := time.LoadLocation(c.AnalyticsTimezone); err != nil {
		return fmt.Errorf("ANALYTICS_TIMEZONE: %w", err)
	}
	return nil
}

// Location returns the analytics time zone. Validate has already checked it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AnalyticsTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
