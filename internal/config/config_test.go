package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.True(t, cfg.Server.IsDevelopment())
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, TokenFormatJWT, cfg.Auth.TokenFormat)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 3, cfg.OTP.Bytes)
	assert.Equal(t, 10*time.Minute, cfg.OTP.TTL)
	assert.False(t, cfg.Email.SMTPEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "test-secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("OTP_TTL", "300")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("TRUSTED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("SMTP_HOST", "smtp.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.False(t, cfg.Server.IsDevelopment())
	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, 5*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.TrustedOrigins)
	assert.True(t, cfg.Email.SMTPEnabled())
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: "7000"
store:
  driver: sqlite
  sqlite_path: /tmp/accounts.db
auth:
  token_secret: from-file
otp:
  bytes: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TOKEN_SECRET", "")
	t.Setenv("SERVER_PORT", "7001")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7001", cfg.Server.Port)
	assert.Equal(t, StoreDriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/accounts.db", cfg.Store.SQLitePath)
	assert.Equal(t, "from-file", cfg.Auth.TokenSecret)
	assert.Equal(t, 4, cfg.OTP.Bytes)
	// untouched sections keep defaults
	assert.Equal(t, 10*time.Minute, cfg.OTP.TTL)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "test-secret")
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid jwt", func(c *Config) { c.Auth.TokenSecret = "s" }, false},
		{"missing secret", func(c *Config) {}, true},
		{"paseto short key", func(c *Config) {
			c.Auth.TokenFormat = TokenFormatPaseto
			c.Auth.TokenSecret = "short"
		}, true},
		{"paseto 32 byte key", func(c *Config) {
			c.Auth.TokenFormat = TokenFormatPaseto
			c.Auth.TokenSecret = "0123456789abcdef0123456789abcdef"
		}, false},
		{"unknown token format", func(c *Config) {
			c.Auth.TokenSecret = "s"
			c.Auth.TokenFormat = "saml"
		}, true},
		{"unknown store", func(c *Config) {
			c.Auth.TokenSecret = "s"
			c.Store.Driver = "mongo"
		}, true},
		{"unknown rate limit backend", func(c *Config) {
			c.Auth.TokenSecret = "s"
			c.RateLimit.Backend = "memcached"
		}, true},
		{"zero ip limit", func(c *Config) {
			c.Auth.TokenSecret = "s"
			c.RateLimit.IPLimit = 0
		}, true},
		{"zero ip window", func(c *Config) {
			c.Auth.TokenSecret = "s"
			c.RateLimit.IPWindow = 0
		}, true},
		{"negative email cooldown", func(c *Config) {
			c.Auth.TokenSecret = "s"
			c.RateLimit.EmailCooldown = -time.Second
		}, true},
		{"otp too narrow", func(c *Config) {
			c.Auth.TokenSecret = "s"
			c.OTP.Bytes = 2
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConnectionStrings(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "localhost:6379", cfg.Redis.Address())
	assert.Equal(t, "host=localhost port=5432 user=postgres password=postgres dbname=accounts sslmode=disable", cfg.Database.ConnectionString())
}

func TestLoad_RejectsZeroRateLimitWindow(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "test-secret")
	t.Setenv("RATE_LIMIT_IP_WINDOW", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_IP_WINDOW")
}
