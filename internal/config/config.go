// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const devJWTSecret = "dev-secret-change-in-production"

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

// Row source providers.
const (
	SourceSheets = "sheets"
	SourceStatic = "static"
)

// AuthConfig holds authentication and identity provider configuration.
type AuthConfig struct {
	IssuerURL      string   // OIDC issuer URL
	JWKSURL        string   // Override JWKS URL (if no .well-known discovery)
	JWTSecret      string   // HS256 shared secret for local/dev JWT auth
	Audience       string   // Required JWT audience claim
	AllowedIssuers []string // Accepted issuers (defaults to [IssuerURL])
}

// OIDCEnabled returns true when an external identity provider is configured.
func (a *AuthConfig) OIDCEnabled() bool {
	return a.IssuerURL != "" || a.JWKSURL != ""
}

// SourceConfig describes where table rows come from and how fetches are retried.
type SourceConfig struct {
	Provider        string // "sheets" or "static"
	SpreadsheetID   string
	Range           string // A1 range including the header row (default "Sheet1")
	CredentialsFile string // service-account JSON key
	APIKey          string // alternative to CredentialsFile for public sheets
	CSVPath         string // static provider: optional CSV file with a header row

	RetryAttempts int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
	FetchTimeout  time.Duration
}

// PolicyConfig toggles the optional validation checks. Both default to off.
type PolicyConfig struct {
	RejectColumnCollisions    bool
	RejectDuplicateTableNames bool
	DatePolicy                string // "passthrough" (default) or "strict"
}

// Config holds the configuration for the HTTP API.
type Config struct {
	StoreBackend      string // "sqlite" (default) or "mongo"
	DBPath            string // path to the SQLite file
	MongoURL          string
	MongoDatabase     string
	ListenAddr        string // HTTP listen address (default ":8080")
	TLSCertFile       string
	TLSKeyFile        string
	AllowInsecureHTTP bool   // allow non-TLS listener in production (for trusted TLS termination)
	LogLevel          string // debug, info, warn, error (default "info")
	Env               string // "development" (default) or "production"

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	CORSAllowedOrigins []string

	Auth   AuthConfig
	Source SourceConfig
	Policy PolicyConfig

	NotifyQueueSize int    // per-subscriber pending snapshot bound
	RefreshSchedule string // cron spec for source change detection; empty disables

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		StoreBackend:      strings.ToLower(os.Getenv("STORE_BACKEND")),
		DBPath:            os.Getenv("TABLES_DB_PATH"),
		MongoURL:          os.Getenv("MONGO_URL"),
		MongoDatabase:     os.Getenv("MONGO_DATABASE"),
		ListenAddr:        os.Getenv("LISTEN_ADDR"),
		TLSCertFile:       os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:        os.Getenv("TLS_KEY_FILE"),
		AllowInsecureHTTP: parseBoolEnvDefault("ALLOW_INSECURE_HTTP", false),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		Env:               os.Getenv("ENV"),
		RefreshSchedule:   "@every 30s",
	}

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}
	if v := os.Getenv("NOTIFY_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.NotifyQueueSize = n
		}
	}
	if v, ok := os.LookupEnv("REFRESH_SCHEDULE"); ok {
		cfg.RefreshSchedule = strings.TrimSpace(v)
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = compactNonEmpty(splitTrim(v))
	}

	cfg.Auth = AuthConfig{
		IssuerURL: os.Getenv("AUTH_ISSUER_URL"),
		JWKSURL:   os.Getenv("AUTH_JWKS_URL"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		Audience:  os.Getenv("AUTH_AUDIENCE"),
	}
	if v := os.Getenv("AUTH_ALLOWED_ISSUERS"); v != "" {
		cfg.Auth.AllowedIssuers = compactNonEmpty(splitTrim(v))
	}

	cfg.Source = SourceConfig{
		Provider:        strings.ToLower(os.Getenv("SOURCE_PROVIDER")),
		SpreadsheetID:   os.Getenv("SHEETS_SPREADSHEET_ID"),
		Range:           os.Getenv("SHEETS_RANGE"),
		CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		APIKey:          os.Getenv("SHEETS_API_KEY"),
		CSVPath:         os.Getenv("SOURCE_CSV_PATH"),
	}
	if v := os.Getenv("SOURCE_RETRY_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Source.RetryAttempts = n
		}
	}
	cfg.Source.RetryDelay = parseDurationEnv("SOURCE_RETRY_DELAY", &cfg.Warnings)
	cfg.Source.RetryMaxDelay = parseDurationEnv("SOURCE_RETRY_MAX_DELAY", &cfg.Warnings)
	cfg.Source.FetchTimeout = parseDurationEnv("SOURCE_FETCH_TIMEOUT", &cfg.Warnings)

	cfg.Policy = PolicyConfig{
		RejectColumnCollisions:    parseBoolEnvDefault("POLICY_REJECT_COLUMN_COLLISIONS", false),
		RejectDuplicateTableNames: parseBoolEnvDefault("POLICY_REJECT_DUPLICATE_TABLE_NAMES", false),
		DatePolicy:                strings.ToLower(os.Getenv("POLICY_DATE")),
	}

	// Defaults
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = StoreSQLite
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "tablesheet.sqlite"
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = "tablesheet"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.NotifyQueueSize <= 0 {
		cfg.NotifyQueueSize = 16
	}
	if cfg.Source.Provider == "" {
		if cfg.Source.SpreadsheetID != "" {
			cfg.Source.Provider = SourceSheets
		} else {
			cfg.Source.Provider = SourceStatic
		}
	}
	if cfg.Source.Range == "" {
		cfg.Source.Range = "Sheet1"
	}
	if cfg.Source.RetryAttempts <= 0 {
		cfg.Source.RetryAttempts = 4
	}
	if cfg.Source.RetryDelay == 0 {
		cfg.Source.RetryDelay = 200 * time.Millisecond
	}
	if cfg.Source.RetryMaxDelay == 0 {
		cfg.Source.RetryMaxDelay = 5 * time.Second
	}
	if cfg.Source.FetchTimeout == 0 {
		cfg.Source.FetchTimeout = 15 * time.Second
	}
	if cfg.Policy.DatePolicy == "" {
		cfg.Policy.DatePolicy = "passthrough"
	}
	if cfg.Auth.JWTSecret == "" && !cfg.Auth.OIDCEnabled() {
		cfg.Auth.JWTSecret = devJWTSecret
		cfg.Warnings = append(cfg.Warnings, "JWT_SECRET not set, using insecure development secret")
	}

	// Consistency checks
	switch cfg.StoreBackend {
	case StoreSQLite:
	case StoreMongo:
		if cfg.MongoURL == "" {
			return nil, fmt.Errorf("MONGO_URL is required when STORE_BACKEND=mongo")
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND %q: must be %q or %q", cfg.StoreBackend, StoreSQLite, StoreMongo)
	}
	switch cfg.Source.Provider {
	case SourceStatic:
		if cfg.Source.CSVPath == "" {
			cfg.Warnings = append(cfg.Warnings, "no row source configured, tables will show no rows")
		}
	case SourceSheets:
		if cfg.Source.SpreadsheetID == "" {
			return nil, fmt.Errorf("SHEETS_SPREADSHEET_ID is required when SOURCE_PROVIDER=sheets")
		}
	default:
		return nil, fmt.Errorf("unsupported SOURCE_PROVIDER %q: must be %q or %q", cfg.Source.Provider, SourceSheets, SourceStatic)
	}
	if cfg.Policy.DatePolicy != "passthrough" && cfg.Policy.DatePolicy != "strict" {
		return nil, fmt.Errorf("unsupported POLICY_DATE %q: must be \"passthrough\" or \"strict\"", cfg.Policy.DatePolicy)
	}
	if cfg.Auth.IssuerURL != "" && cfg.Auth.Audience == "" {
		return nil, fmt.Errorf("AUTH_AUDIENCE is required when AUTH_ISSUER_URL is set")
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return nil, fmt.Errorf("both TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if cfg.Auth.JWTSecret == devJWTSecret {
			return nil, fmt.Errorf("JWT_SECRET or OIDC must be configured in production (ENV=production)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
		if cfg.TLSCertFile == "" && !cfg.AllowInsecureHTTP {
			return nil, fmt.Errorf("TLS_CERT_FILE/TLS_KEY_FILE must be set in production unless ALLOW_INSECURE_HTTP=true")
		}
	}

	return cfg, nil
}

func parseDurationEnv(key string, warnings *[]string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("ignoring invalid %s=%q: %v", key, v, err))
		return 0
	}
	return d
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

func splitTrim(v string) []string {
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Env vars take precedence over the file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
