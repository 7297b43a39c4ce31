package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"

	RateLimitBackendRedis  = "redis"
	RateLimitBackendMemory = "memory"

	TokenFormatJWT    = "jwt"
	TokenFormatPaseto = "paseto"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`
	OTP       OTPConfig       `yaml:"otp"`
	Email     EmailConfig     `yaml:"email"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	Env             string        `yaml:"env"` // dev or prod
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TrustedOrigins  []string      `yaml:"trusted_origins"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

type StoreConfig struct {
	Driver     string `yaml:"driver"` // postgres, sqlite or memory
	SQLitePath string `yaml:"sqlite_path"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type RateLimitConfig struct {
	Backend       string        `yaml:"backend"` // redis or memory
	IPLimit       int           `yaml:"ip_limit"`
	IPWindow      time.Duration `yaml:"ip_window"`
	EmailCooldown time.Duration `yaml:"email_cooldown"`
}

type AuthConfig struct {
	TokenFormat string        `yaml:"token_format"`
	TokenSecret string        `yaml:"token_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

type OTPConfig struct {
	Bytes           int           `yaml:"bytes"`
	TTL             time.Duration `yaml:"ttl"`
	CleanupSchedule string        `yaml:"cleanup_schedule"`
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     string `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	From         string `yaml:"from"`
	Workers      int    `yaml:"workers"`
	QueueSize    int    `yaml:"queue_size"`
	MaxAttempts  int    `yaml:"max_attempts"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			Env:             "dev",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			TrustedOrigins:  []string{"http://localhost:3000"},
			MaxBodyBytes:    1 << 20,
		},
		Store: StoreConfig{
			Driver:     StoreDriverPostgres,
			SQLitePath: "accounts.db",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			DBName:   "accounts",
			SSLMode:  "disable",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
		},
		RateLimit: RateLimitConfig{
			Backend:       RateLimitBackendMemory,
			IPLimit:       10,
			IPWindow:      15 * time.Minute,
			EmailCooldown: 2 * time.Minute,
		},
		Auth: AuthConfig{
			TokenFormat: TokenFormatJWT,
			TokenTTL:    24 * time.Hour,
		},
		OTP: OTPConfig{
			Bytes:           3,
			TTL:             10 * time.Minute,
			CleanupSchedule: "@every 5m",
		},
		Email: EmailConfig{
			SMTPPort:    "587",
			From:        "no-reply@example.com",
			Workers:     2,
			QueueSize:   100,
			MaxAttempts: 3,
		},
	}
}

// Load reads configuration from an optional .env file, an optional YAML file
// named by CONFIG_FILE and finally environment variables, in that order.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Server.Env = getEnv("APP_ENV", cfg.Server.Env)
	cfg.Server.ReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.TrustedOrigins = getSliceEnv("TRUSTED_ORIGINS", cfg.Server.TrustedOrigins)
	cfg.Server.MaxBodyBytes = int64(getIntEnv("SERVER_MAX_BODY_BYTES", int(cfg.Server.MaxBodyBytes)))

	cfg.Store.Driver = getEnv("STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.SQLitePath = getEnv("SQLITE_PATH", cfg.Store.SQLitePath)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnv("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = getEnv("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getIntEnv("REDIS_DB", cfg.Redis.DB)

	cfg.RateLimit.Backend = getEnv("RATE_LIMIT_BACKEND", cfg.RateLimit.Backend)
	cfg.RateLimit.IPLimit = getIntEnv("RATE_LIMIT_IP_LIMIT", cfg.RateLimit.IPLimit)
	cfg.RateLimit.IPWindow = getDurationEnv("RATE_LIMIT_IP_WINDOW", cfg.RateLimit.IPWindow)
	cfg.RateLimit.EmailCooldown = getDurationEnv("RATE_LIMIT_EMAIL_COOLDOWN", cfg.RateLimit.EmailCooldown)

	cfg.Auth.TokenFormat = getEnv("TOKEN_FORMAT", cfg.Auth.TokenFormat)
	cfg.Auth.TokenSecret = getEnv("TOKEN_SECRET", cfg.Auth.TokenSecret)
	cfg.Auth.TokenTTL = getDurationEnv("TOKEN_TTL", cfg.Auth.TokenTTL)

	cfg.OTP.Bytes = getIntEnv("OTP_BYTES", cfg.OTP.Bytes)
	cfg.OTP.TTL = getDurationEnv("OTP_TTL", cfg.OTP.TTL)
	cfg.OTP.CleanupSchedule = getEnv("OTP_CLEANUP_SCHEDULE", cfg.OTP.CleanupSchedule)

	cfg.Email.SMTPHost = getEnv("SMTP_HOST", cfg.Email.SMTPHost)
	cfg.Email.SMTPPort = getEnv("SMTP_PORT", cfg.Email.SMTPPort)
	cfg.Email.SMTPUser = getEnv("SMTP_USER", cfg.Email.SMTPUser)
	cfg.Email.SMTPPassword = getEnv("SMTP_PASS", cfg.Email.SMTPPassword)
	cfg.Email.From = getEnv("SMTP_FROM", cfg.Email.From)
	cfg.Email.Workers = getIntEnv("EMAIL_WORKERS", cfg.Email.Workers)
	cfg.Email.QueueSize = getIntEnv("EMAIL_QUEUE_SIZE", cfg.Email.QueueSize)
	cfg.Email.MaxAttempts = getIntEnv("EMAIL_MAX_ATTEMPTS", cfg.Email.MaxAttempts)
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("TOKEN_SECRET is required")
	}

	switch c.Auth.TokenFormat {
	case TokenFormatJWT:
	case TokenFormatPaseto:
		// PASETO v4.local needs a 32 byte symmetric key
		if len(c.Auth.TokenSecret) != 32 {
			return fmt.Errorf("TOKEN_SECRET must be exactly 32 bytes for paseto, got %d", len(c.Auth.TokenSecret))
		}
	default:
		return fmt.Errorf("unsupported TOKEN_FORMAT %q", c.Auth.TokenFormat)
	}

	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverSQLite, StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.RateLimit.Backend {
	case RateLimitBackendRedis, RateLimitBackendMemory:
	default:
		return fmt.Errorf("unsupported RATE_LIMIT_BACKEND %q", c.RateLimit.Backend)
	}
	if c.RateLimit.IPLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT_IP_LIMIT must be positive, got %d", c.RateLimit.IPLimit)
	}
	// a zero window or cooldown would disable limiting or make a Redis key permanent
	if c.RateLimit.IPWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_IP_WINDOW must be positive")
	}
	if c.RateLimit.EmailCooldown <= 0 {
		return fmt.Errorf("RATE_LIMIT_EMAIL_COOLDOWN must be positive")
	}

	if c.OTP.Bytes < 3 {
		return fmt.Errorf("OTP_BYTES must be at least 3, got %d", c.OTP.Bytes)
	}
	if c.OTP.TTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}

	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Address returns Redis connection address (host:port)
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if the environment is set to dev
func (c *ServerConfig) IsDevelopment() bool {
	return c.Env == "dev"
}

// SMTPEnabled reports whether outbound mail should go through SMTP.
func (c *EmailConfig) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// getDurationEnv accepts Go duration strings ("90s", "10m") or a bare
// number of seconds.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if d, err := time.ParseDuration(value); err == nil {
		return d
	}

	seconds, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return time.Duration(seconds) * time.Second
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}
