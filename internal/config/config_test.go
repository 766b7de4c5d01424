package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable LoadFromEnv reads so host settings don't leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"STORE_BACKEND", "TABLES_DB_PATH", "MONGO_URL", "MONGO_DATABASE", "LISTEN_ADDR",
		"TLS_CERT_FILE", "TLS_KEY_FILE", "ALLOW_INSECURE_HTTP", "LOG_LEVEL", "ENV",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "NOTIFY_QUEUE_SIZE", "CORS_ALLOWED_ORIGINS",
		"AUTH_ISSUER_URL", "AUTH_JWKS_URL", "JWT_SECRET", "AUTH_AUDIENCE", "AUTH_ALLOWED_ISSUERS",
		"SOURCE_PROVIDER", "SHEETS_SPREADSHEET_ID", "SHEETS_RANGE", "GOOGLE_APPLICATION_CREDENTIALS",
		"SHEETS_API_KEY", "SOURCE_CSV_PATH", "SOURCE_RETRY_ATTEMPTS", "SOURCE_RETRY_DELAY",
		"SOURCE_RETRY_MAX_DELAY", "SOURCE_FETCH_TIMEOUT", "POLICY_REJECT_COLUMN_COLLISIONS",
		"POLICY_REJECT_DUPLICATE_TABLE_NAMES", "POLICY_DATE",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("REFRESH_SCHEDULE", "")
	_ = os.Unsetenv("REFRESH_SCHEDULE")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.StoreBackend)
	assert.Equal(t, "tablesheet.sqlite", cfg.DBPath)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, devJWTSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, SourceStatic, cfg.Source.Provider)
	assert.Equal(t, "Sheet1", cfg.Source.Range)
	assert.Equal(t, 4, cfg.Source.RetryAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Source.RetryDelay)
	assert.Equal(t, "passthrough", cfg.Policy.DatePolicy)
	assert.False(t, cfg.Policy.RejectColumnCollisions)
	assert.False(t, cfg.Policy.RejectDuplicateTableNames)
	assert.Equal(t, 16, cfg.NotifyQueueSize)
	assert.Equal(t, "@every 30s", cfg.RefreshSchedule)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.NotEmpty(t, cfg.Warnings)
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("TABLES_DB_PATH", "/tmp/test.sqlite")
	t.Setenv("SHEETS_SPREADSHEET_ID", "sheet-123")
	t.Setenv("SHEETS_RANGE", "Contacts!A1:Z")
	t.Setenv("SOURCE_RETRY_ATTEMPTS", "7")
	t.Setenv("SOURCE_RETRY_DELAY", "1s")
	t.Setenv("POLICY_REJECT_COLUMN_COLLISIONS", "true")
	t.Setenv("POLICY_DATE", "strict")
	t.Setenv("REFRESH_SCHEDULE", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.sqlite", cfg.DBPath)
	assert.Equal(t, SourceSheets, cfg.Source.Provider)
	assert.Equal(t, "Contacts!A1:Z", cfg.Source.Range)
	assert.Equal(t, 7, cfg.Source.RetryAttempts)
	assert.Equal(t, time.Second, cfg.Source.RetryDelay)
	assert.True(t, cfg.Policy.RejectColumnCollisions)
	assert.Equal(t, "strict", cfg.Policy.DatePolicy)
	assert.Empty(t, cfg.RefreshSchedule)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestLoadFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "mongo without url", env: map[string]string{"STORE_BACKEND": "mongo"}},
		{name: "unknown backend", env: map[string]string{"STORE_BACKEND": "redis"}},
		{name: "sheets without id", env: map[string]string{"SOURCE_PROVIDER": "sheets"}},
		{name: "bad date policy", env: map[string]string{"POLICY_DATE": "lenient"}},
		{name: "issuer without audience", env: map[string]string{"AUTH_ISSUER_URL": "https://idp.example"}},
		{name: "production dev secret", env: map[string]string{"ENV": "production"}},
		{name: "production wildcard cors", env: map[string]string{"ENV": "production", "JWT_SECRET": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoadFromEnv_InvalidDurationWarns(t *testing.T) {
	clearEnv(t)
	t.Setenv("SOURCE_RETRY_DELAY", "soon")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, cfg.Source.RetryDelay)
	assert.Contains(t, cfg.Warnings[0], "SOURCE_RETRY_DELAY")
}

func TestSlogLevel(t *testing.T) {
	for in, want := range map[string]string{"debug": "DEBUG", "WARN": "WARN", "error": "ERROR", "": "INFO"} {
		c := &Config{LogLevel: in}
		assert.Equal(t, want, c.SlogLevel().String())
	}
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	err := LoadDotEnv("/nonexistent/.env")
	if err != nil {
		t.Errorf("expected no error for missing .env, got: %v", err)
	}
}

func TestLoadDotEnv_ParsesKeyValue(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	err := os.WriteFile(envFile, []byte("TEST_KEY=test_value\n"), 0644)
	if err != nil {
		t.Fatalf("write .env: %v", err)
	}

	if err := LoadDotEnv(envFile); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	if val := os.Getenv("TEST_KEY"); val != "test_value" {
		t.Errorf("TEST_KEY = %q, want %q", val, "test_value")
	}
	_ = os.Unsetenv("TEST_KEY")
}

func TestLoadDotEnv_SkipsComments(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	err := os.WriteFile(envFile, []byte("# comment\nTEST_COMMENT_KEY=value\n"), 0644)
	if err != nil {
		t.Fatalf("write .env: %v", err)
	}

	if err := LoadDotEnv(envFile); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	if val := os.Getenv("TEST_COMMENT_KEY"); val != "value" {
		t.Errorf("TEST_COMMENT_KEY = %q, want %q", val, "value")
	}
	_ = os.Unsetenv("TEST_COMMENT_KEY")
}

func TestLoadDotEnv_EnvVarPrecedence(t *testing.T) {
	t.Setenv("TEST_PRECEDENCE_KEY", "from_env")

	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	err := os.WriteFile(envFile, []byte("TEST_PRECEDENCE_KEY=from_file\n"), 0644)
	if err != nil {
		t.Fatalf("write .env: %v", err)
	}

	if err := LoadDotEnv(envFile); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}

	if val := os.Getenv("TEST_PRECEDENCE_KEY"); val != "from_env" {
		t.Errorf("TEST_PRECEDENCE_KEY = %q, want %q (env precedence)", val, "from_env")
	}
}
