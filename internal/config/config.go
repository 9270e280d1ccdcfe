package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AuthMode string

const (
	AuthModeNone  AuthMode = "none"  // Every request acts as the default admin user
	AuthModeLocal AuthMode = "local" // Local user database with sessions and tokens
)

type (
	Config struct {
		HTTP
		Global
		Database
		UI
		Tasks
		Auth
		JWT
		OAuth2
		Google
		CORS
		GoogleBooks
		Loans
		Audit
		Covers
		Demo
		Tracing
		Pagination
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string
	}
	UI struct {
		TemplatesPath string
		StaticPath    string
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
	Auth struct {
		Mode            AuthMode
		SessionSecret   string
		SessionLifetime time.Duration
		TokenExpiry     time.Duration
		BcryptCost      int
		SecureCookies   bool // Set to false for local dev without HTTPS

		MaxLoginAttempts int           // Failed attempts before lockout (default: 5)
		RateLimitWindow  time.Duration // Window for counting attempts (default: 15m)
		LockoutDuration  time.Duration // Lockout length (default: 30m)
	}
	JWT struct {
		Secret          string
		Issuer          string
		AccessLifetime  time.Duration
		RefreshLifetime time.Duration
	}
	OAuth2 struct {
		DefaultScopes     []string
		TokenRatePerMin   int // Requests per minute per IP on the token endpoints
		TokenRateBurst    int
		DefaultClientID   string // Seeded application, used by the oauth-check command
		DefaultClientName string
	}
	Google struct {
		ClientID     string
		ClientSecret string
		RedirectURL  string
	}
	CORS struct {
		AllowedOrigins   []string
		AllowCredentials bool
	}
	GoogleBooks struct {
		BaseURL string
		Timeout time.Duration
		Country string
	}
	Loans struct {
		DefaultDays      int
		OverdueSweep     bool
		OverdueSchedule  string // Cron format: "0 * * * *" = hourly
		EnrichRatePerSec float64
	}
	Audit struct {
		RetentionDays int
	}
	Covers struct {
		CacheDir string
	}
	Demo struct {
		Enabled       bool
		DBPath        string
		ResetInterval time.Duration
	}
	Tracing struct {
		Endpoint    string // OTLP HTTP endpoint; tracing is a no-op when empty
		ServiceName string
	}
	Pagination struct {
		PageSize    int
		MaxPageSize int
	}
)

// LoadDotEnv reads .env.local then .env into the process environment.
// Variables already set win, and missing files are not an error.
func LoadDotEnv() {
	for _, f := range []string{".env.local", ".env"} {
		_ = godotenv.Load(f)
	}
}

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8000)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 5)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("templates_path", "./templates")
	v.SetDefault("static_path", "./static")

	// Auth defaults
	v.SetDefault("auth_mode", "local")
	v.SetDefault("auth_session_secret", "")
	v.SetDefault("auth_session_lifetime", "24h")
	v.SetDefault("auth_token_expiry", "720h")
	v.SetDefault("auth_bcrypt_cost", 12)
	v.SetDefault("auth_secure_cookies", true)
	v.SetDefault("auth_max_login_attempts", 5)
	v.SetDefault("auth_rate_limit_window", "15m")
	v.SetDefault("auth_lockout_duration", "30m")

	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "biblioteca")
	v.SetDefault("jwt_access_lifetime", "1h")
	v.SetDefault("jwt_refresh_lifetime", "168h")

	v.SetDefault("oauth2_default_scopes", "read,write")
	v.SetDefault("oauth2_token_rate_per_min", 30)
	v.SetDefault("oauth2_token_rate_burst", 10)
	v.SetDefault("oauth2_default_client_id", DefaultOAuthClientID)
	v.SetDefault("oauth2_default_client_name", "Biblioteca CLI")

	v.SetDefault("google_redirect_url", "http://localhost:8000/accounts/google/login/callback/")

	v.SetDefault("cors_allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")
	v.SetDefault("cors_allow_credentials", true)

	v.SetDefault("google_books_base_url", DefaultGoogleBooksURL)
	v.SetDefault("google_books_timeout", "10s")
	v.SetDefault("google_books_country", "US")

	v.SetDefault("loan_default_days", 14)
	v.SetDefault("loan_overdue_sweep", true)
	v.SetDefault("loan_overdue_schedule", "0 * * * *")
	v.SetDefault("enrich_rate_per_sec", 1.0)

	v.SetDefault("audit_retention_days", 30)
	v.SetDefault("covers_cache_dir", "./covers")

	v.SetDefault("demo_mode", false)
	v.SetDefault("demo_db_path", "./demo/demo.db")
	v.SetDefault("demo_reset_interval", "15m")

	v.SetDefault("otel_exporter_otlp_endpoint", "")
	v.SetDefault("otel_service_name", "biblioteca")

	v.SetDefault("page_size", 10)
	v.SetDefault("max_page_size", 100)

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		UI: UI{
			TemplatesPath: v.GetString("TEMPLATES_PATH"),
			StaticPath:    v.GetString("STATIC_PATH"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Auth: Auth{
			Mode:             AuthMode(v.GetString("AUTH_MODE")),
			SessionSecret:    v.GetString("AUTH_SESSION_SECRET"),
			SessionLifetime:  v.GetDuration("AUTH_SESSION_LIFETIME"),
			TokenExpiry:      v.GetDuration("AUTH_TOKEN_EXPIRY"),
			BcryptCost:       v.GetInt("AUTH_BCRYPT_COST"),
			SecureCookies:    v.GetBool("AUTH_SECURE_COOKIES"),
			MaxLoginAttempts: v.GetInt("AUTH_MAX_LOGIN_ATTEMPTS"),
			RateLimitWindow:  v.GetDuration("AUTH_RATE_LIMIT_WINDOW"),
			LockoutDuration:  v.GetDuration("AUTH_LOCKOUT_DURATION"),
		},
		JWT: JWT{
			Secret:          v.GetString("JWT_SECRET"),
			Issuer:          v.GetString("JWT_ISSUER"),
			AccessLifetime:  v.GetDuration("JWT_ACCESS_LIFETIME"),
			RefreshLifetime: v.GetDuration("JWT_REFRESH_LIFETIME"),
		},
		OAuth2: OAuth2{
			DefaultScopes:     splitList(v.GetString("OAUTH2_DEFAULT_SCOPES")),
			TokenRatePerMin:   v.GetInt("OAUTH2_TOKEN_RATE_PER_MIN"),
			TokenRateBurst:    v.GetInt("OAUTH2_TOKEN_RATE_BURST"),
			DefaultClientID:   v.GetString("OAUTH2_DEFAULT_CLIENT_ID"),
			DefaultClientName: v.GetString("OAUTH2_DEFAULT_CLIENT_NAME"),
		},
		Google: Google{
			ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  v.GetString("GOOGLE_REDIRECT_URL"),
		},
		CORS: CORS{
			AllowedOrigins:   splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			AllowCredentials: v.GetBool("CORS_ALLOW_CREDENTIALS"),
		},
		GoogleBooks: GoogleBooks{
			BaseURL: v.GetString("GOOGLE_BOOKS_BASE_URL"),
			Timeout: v.GetDuration("GOOGLE_BOOKS_TIMEOUT"),
			Country: v.GetString("GOOGLE_BOOKS_COUNTRY"),
		},
		Loans: Loans{
			DefaultDays:      v.GetInt("LOAN_DEFAULT_DAYS"),
			OverdueSweep:     v.GetBool("LOAN_OVERDUE_SWEEP"),
			OverdueSchedule:  v.GetString("LOAN_OVERDUE_SCHEDULE"),
			EnrichRatePerSec: v.GetFloat64("ENRICH_RATE_PER_SEC"),
		},
		Audit: Audit{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
		Covers: Covers{
			CacheDir: v.GetString("COVERS_CACHE_DIR"),
		},
		Demo: Demo{
			Enabled:       v.GetBool("DEMO_MODE"),
			DBPath:        v.GetString("DEMO_DB_PATH"),
			ResetInterval: v.GetDuration("DEMO_RESET_INTERVAL"),
		},
		Tracing: Tracing{
			Endpoint:    v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName: v.GetString("OTEL_SERVICE_NAME"),
		},
		Pagination: Pagination{
			PageSize:    v.GetInt("PAGE_SIZE"),
			MaxPageSize: v.GetInt("MAX_PAGE_SIZE"),
		},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
