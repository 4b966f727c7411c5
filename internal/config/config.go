package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv             string
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	RequestTimeout     time.Duration

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// LedgerBackend selects where revoked tokens live: "postgres" or "redis".
	LedgerBackend    string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	LedgerGCInterval time.Duration

	// Three disjoint signing secrets, one per token purpose.
	AccessSecret  string
	RefreshSecret string
	ResetSecret   string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ResetTTL      time.Duration

	BcryptCost int

	// FederatedTokenInfoURL, when set, enables the federated login endpoint
	// by delegating id-token verification to an external token-info service.
	FederatedTokenInfoURL string

	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		ServerReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 10*time.Second),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 2)),

		LedgerBackend:    strings.ToLower(getEnv("LEDGER_BACKEND", "postgres")),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getInt("REDIS_DB", 0),
		LedgerGCInterval: getDuration("LEDGER_GC_INTERVAL", 15*time.Minute),

		AccessSecret:  strings.TrimSpace(os.Getenv("ACCESS_TOKEN_SECRET")),
		RefreshSecret: strings.TrimSpace(os.Getenv("REFRESH_TOKEN_SECRET")),
		ResetSecret:   strings.TrimSpace(os.Getenv("RESET_TOKEN_SECRET")),
		AccessTTL:     getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL:    getDuration("REFRESH_TOKEN_TTL", 168*time.Hour),
		ResetTTL:      getDuration("RESET_TOKEN_TTL", 15*time.Minute),

		BcryptCost: getInt("BCRYPT_COST", 12),

		FederatedTokenInfoURL: strings.TrimSpace(os.Getenv("FEDERATED_TOKENINFO_URL")),

		CORSOrigins:      splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:     getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM: getInt("AUTH_RATE_LIMIT_RPM", 10),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.AccessSecret == "" || c.RefreshSecret == "" || c.ResetSecret == "" {
		return fmt.Errorf("ACCESS_TOKEN_SECRET, REFRESH_TOKEN_SECRET and RESET_TOKEN_SECRET are required")
	}

	// Purpose isolation depends on the secrets actually being distinct.
	if c.AccessSecret == c.RefreshSecret || c.AccessSecret == c.ResetSecret || c.RefreshSecret == c.ResetSecret {
		return fmt.Errorf("token secrets must be pairwise distinct")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.LedgerBackend != "postgres" && c.LedgerBackend != "redis" {
		return fmt.Errorf("LEDGER_BACKEND must be postgres or redis, got %q", c.LedgerBackend)
	}

	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.ResetTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}

	if c.BcryptCost < 10 || c.BcryptCost > 16 {
		return fmt.Errorf("BCRYPT_COST must be between 10 and 16")
	}

	return nil
}

// Production reports whether cookies should carry the Secure attribute.
func (c *Config) Production() bool {
	return c.AppEnv == "production"
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
