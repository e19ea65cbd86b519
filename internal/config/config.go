package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment constants
const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)

// Rate limit store constants
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// User cache type constants
const (
	UserCacheTypeMemory = "memory"
	UserCacheTypeRedis  = "redis"
)

// Database driver constants
const (
	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverPostgres = "postgres"
)

// maxAuthCodeExpiration caps how long an issued authorization code stays redeemable.
const maxAuthCodeExpiration = 5 * time.Minute

const minProductionSecretLength = 32

type Config struct {
	// Server settings
	ServerAddr            string
	BaseURL               string
	Environment           string
	ServerShutdownTimeout time.Duration

	// Session token settings
	JWTSecret              string
	JWTIssuer              string
	JWTExpiration          time.Duration // default 168h
	RefreshTokenExpiration time.Duration // default 720h
	EnableRefreshTokens    bool

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string
	DBInitTimeout  time.Duration
	DBCloseTimeout time.Duration

	// Google identity provider
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string // defaults to BASE_URL + /oauth/callback
	GoogleJWKSURL      string

	// Outbound identity provider HTTP client
	OAuthTimeout       time.Duration
	OAuthMaxRetries    int
	OAuthRetryDelay    time.Duration
	OAuthMaxRetryDelay time.Duration

	// PKCE authorization server
	OAuthClientsRaw       string
	OAuthClients          map[string][]string // client_id -> allow-listed redirect URIs
	AuthRequestExpiration time.Duration
	AuthCodeExpiration    time.Duration
	OAuthCleanupInterval  time.Duration

	// Admin bootstrap
	AdminEmails  []string
	RequireAdmin bool // refuse to demote the last remaining admin

	// Redis
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisConnTimeout time.Duration

	// Rate limiting
	EnableRateLimit          bool
	RateLimitStore           string
	LoginRateLimit           int // requests per minute
	AuthorizeRateLimit       int
	CallbackRateLimit        int
	TokenRateLimit           int
	RateLimitCleanupInterval time.Duration

	// User cache
	UserCacheType    string
	UserCacheTTL     time.Duration
	CacheInitTimeout time.Duration

	// Metrics
	MetricsEnabled bool
	MetricsToken   string

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	driver := getEnv("DATABASE_DRIVER", DatabaseDriverSQLite)
	var dsn string
	if driver == DatabaseDriverSQLite {
		dsn = getEnv("DATABASE_DSN", "expense-auth.db")
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	baseURL := strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/")
	clientsRaw := getEnv("OAUTH_CLIENTS", "")
	clients, _ := ParseOAuthClients(clientsRaw)

	return &Config{
		ServerAddr:            getEnv("SERVER_ADDR", ":8080"),
		BaseURL:               baseURL,
		Environment:           getEnv("ENVIRONMENT", EnvironmentDevelopment),
		ServerShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second),

		JWTSecret:              getEnv("JWT_SECRET", ""),
		JWTIssuer:              getEnv("JWT_ISSUER", baseURL),
		JWTExpiration:          getEnvDuration("JWT_EXPIRATION", 168*time.Hour),
		RefreshTokenExpiration: getEnvDuration("REFRESH_TOKEN_EXPIRATION", 720*time.Hour),
		EnableRefreshTokens:    getEnvBool("ENABLE_REFRESH_TOKENS", true),

		DatabaseDriver: driver,
		DatabaseDSN:    dsn,
		DBInitTimeout:  getEnvDuration("DB_INIT_TIMEOUT", 30*time.Second),
		DBCloseTimeout: getEnvDuration("DB_CLOSE_TIMEOUT", 5*time.Second),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", baseURL+"/oauth/callback"),
		GoogleJWKSURL: getEnv(
			"GOOGLE_JWKS_URL",
			"https://www.googleapis.com/oauth2/v3/certs",
		),

		OAuthTimeout:       getEnvDuration("OAUTH_TIMEOUT", 10*time.Second),
		OAuthMaxRetries:    getEnvInt("OAUTH_MAX_RETRIES", 3),
		OAuthRetryDelay:    getEnvDuration("OAUTH_RETRY_DELAY", 500*time.Millisecond),
		OAuthMaxRetryDelay: getEnvDuration("OAUTH_MAX_RETRY_DELAY", 5*time.Second),

		OAuthClientsRaw:       clientsRaw,
		OAuthClients:          clients,
		AuthRequestExpiration: getEnvDuration("AUTH_REQUEST_EXPIRATION", 10*time.Minute),
		AuthCodeExpiration:    getEnvDuration("AUTH_CODE_EXPIRATION", 5*time.Minute),
		OAuthCleanupInterval:  getEnvDuration("OAUTH_CLEANUP_INTERVAL", 15*time.Minute),

		AdminEmails:  getEnvSlice("ADMIN_EMAILS", nil),
		RequireAdmin: getEnvBool("REQUIRE_ADMIN", true),

		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		RedisConnTimeout: getEnvDuration("REDIS_CONN_TIMEOUT", 5*time.Second),

		EnableRateLimit:          getEnvBool("ENABLE_RATE_LIMIT", true),
		RateLimitStore:           getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory),
		LoginRateLimit:           getEnvInt("LOGIN_RATE_LIMIT", 10),
		AuthorizeRateLimit:       getEnvInt("AUTHORIZE_RATE_LIMIT", 20),
		CallbackRateLimit:        getEnvInt("CALLBACK_RATE_LIMIT", 20),
		TokenRateLimit:           getEnvInt("TOKEN_RATE_LIMIT", 30),
		RateLimitCleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),

		UserCacheType:    getEnv("USER_CACHE_TYPE", UserCacheTypeMemory),
		UserCacheTTL:     getEnvDuration("USER_CACHE_TTL", 5*time.Minute),
		CacheInitTimeout: getEnvDuration("CACHE_INIT_TIMEOUT", 5*time.Second),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", false),
		MetricsToken:   getEnv("METRICS_TOKEN", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}
}

// IsProduction reports whether the server runs with production hardening.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

// IsAdminEmail reports whether email is listed in ADMIN_EMAILS (case-insensitive).
func (c *Config) IsAdminEmail(email string) bool {
	for _, e := range c.AdminEmails {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}

// Validate checks the configuration for values that would make the server unsafe or unusable.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() && len(c.JWTSecret) < minProductionSecretLength {
		return fmt.Errorf(
			"JWT_SECRET must be at least %d bytes in production",
			minProductionSecretLength,
		)
	}
	if c.JWTExpiration <= 0 {
		return fmt.Errorf("JWT_EXPIRATION must be positive")
	}
	if c.GoogleClientID == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID is required")
	}

	switch c.DatabaseDriver {
	case DatabaseDriverSQLite, DatabaseDriverPostgres:
	default:
		return fmt.Errorf("invalid DATABASE_DRIVER value: %q", c.DatabaseDriver)
	}

	if _, err := ParseOAuthClients(c.OAuthClientsRaw); err != nil {
		return err
	}
	for clientID, uris := range c.OAuthClients {
		for _, uri := range uris {
			if err := validateRedirectURI(uri); err != nil {
				return fmt.Errorf("OAUTH_CLIENTS: client %q: %w", clientID, err)
			}
		}
	}

	if c.AuthRequestExpiration <= 0 {
		return fmt.Errorf("AUTH_REQUEST_EXPIRATION must be positive")
	}
	if c.AuthCodeExpiration <= 0 || c.AuthCodeExpiration > maxAuthCodeExpiration {
		return fmt.Errorf(
			"AUTH_CODE_EXPIRATION must be between 0 and %s, got %s",
			maxAuthCodeExpiration,
			c.AuthCodeExpiration,
		)
	}

	if c.RateLimitStore != RateLimitStoreMemory && c.RateLimitStore != RateLimitStoreRedis {
		return fmt.Errorf(
			"invalid RATE_LIMIT_STORE value: %q (must be %q or %q)",
			c.RateLimitStore,
			RateLimitStoreMemory,
			RateLimitStoreRedis,
		)
	}

	if c.UserCacheType != UserCacheTypeMemory && c.UserCacheType != UserCacheTypeRedis {
		return fmt.Errorf(
			"invalid USER_CACHE_TYPE value: %q (must be %q or %q)",
			c.UserCacheType,
			UserCacheTypeMemory,
			UserCacheTypeRedis,
		)
	}
	if c.UserCacheTTL <= 0 {
		return fmt.Errorf("USER_CACHE_TTL must be positive")
	}

	return nil
}

// ParseOAuthClients parses OAUTH_CLIENTS, a semicolon separated list of
// client_id=redirect_uri|redirect_uri entries.
func ParseOAuthClients(raw string) (map[string][]string, error) {
	clients := make(map[string][]string)
	for _, entry := range splitAndTrim(raw, ";") {
		clientID, uris, ok := strings.Cut(entry, "=")
		clientID = strings.TrimSpace(clientID)
		if !ok || clientID == "" {
			return clients, fmt.Errorf("OAUTH_CLIENTS: malformed entry %q", entry)
		}
		redirects := splitAndTrim(uris, "|")
		if len(redirects) == 0 {
			return clients, fmt.Errorf("OAUTH_CLIENTS: client %q has no redirect URIs", clientID)
		}
		clients[clientID] = append(clients[clientID], redirects...)
	}
	return clients, nil
}

// ClientIDs returns the registered client ids in sorted order.
func (c *Config) ClientIDs() []string {
	ids := make([]string, 0, len(c.OAuthClients))
	for id := range c.OAuthClients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid redirect URI %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("redirect URI %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("redirect URI %q must be absolute", raw)
	}
	if u.Fragment != "" {
		return fmt.Errorf("redirect URI %q must not contain a fragment", raw)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		if parts := splitAndTrim(value, ","); len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
