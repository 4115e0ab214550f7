package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"warden/internal/auth/password"
	"warden/internal/auth/token"
	rlconfig "warden/internal/ratelimit/config"
	"warden/internal/ratelimit/models"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/middleware/metadata"
)

const devSigningKey = "dev-secret-key-change-in-production"

// Server captures process level configuration.
type Server struct {
	Addr            string
	Environment     string
	LogLevel        string
	ShutdownTimeout time.Duration

	JWTSigningKey string
	TokenTTL      time.Duration
	TokenIssuer   string

	PasswordAlgorithm password.Algorithm
	BcryptCost        int
	Argon2            password.Argon2Params

	RateLimit *rlconfig.Config

	RedisURL       string
	DatabaseURL    string
	TrustedProxies []netip.Prefix
	AdminToken     string

	// AuditStream is the Redis stream audit events are appended to when
	// REDIS_URL is set.
	AuditStream string
	// KafkaBrokers enables publishing audit events to AuditTopic.
	KafkaBrokers string
	AuditTopic   string
}

// IsProduction reports whether development fallbacks must be refused.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment win.
func FromEnv() (Server, error) {
	_ = godotenv.Load()

	cfg := Server{
		Addr:              getEnv("WARDEN_ADDR", ":8080"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		JWTSigningKey:     os.Getenv("JWT_SIGNING_KEY"),
		TokenIssuer:       getEnv("TOKEN_ISSUER", token.DefaultIssuer),
		PasswordAlgorithm: password.Algorithm(getEnv("PASSWORD_ALGORITHM", string(password.AlgorithmBcrypt))),
		Argon2:            password.DefaultArgon2Params(),
		RateLimit:         rlconfig.DefaultConfig(),
		RedisURL:          os.Getenv("REDIS_URL"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		AdminToken:        os.Getenv("ADMIN_TOKEN"),
		AuditStream:       getEnv("AUDIT_STREAM", audit.DefaultStream),
		KafkaBrokers:      os.Getenv("KAFKA_BROKERS"),
		AuditTopic:        getEnv("AUDIT_TOPIC", audit.DefaultTopic),
	}

	var err error
	if cfg.TrustedProxies, err = metadata.ParseTrustedProxies(os.Getenv("TRUSTED_PROXIES")); err != nil {
		return Server{}, fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", token.DefaultTTL); err != nil {
		return Server{}, err
	}
	if cfg.BcryptCost, err = intEnv("BCRYPT_COST", password.DefaultBcryptCost); err != nil {
		return Server{}, err
	}
	memory, err := intEnv("ARGON2_MEMORY_KB", int(cfg.Argon2.Memory))
	if err != nil {
		return Server{}, err
	}
	iterations, err := intEnv("ARGON2_TIME", int(cfg.Argon2.Iterations))
	if err != nil {
		return Server{}, err
	}
	cfg.Argon2.Memory = uint32(memory)
	cfg.Argon2.Iterations = uint32(iterations)

	if err := loadRateLimit(cfg.RateLimit); err != nil {
		return Server{}, err
	}

	if cfg.JWTSigningKey == "" {
		if cfg.IsProduction() {
			return Server{}, fmt.Errorf("JWT_SIGNING_KEY is required in production")
		}
		cfg.JWTSigningKey = devSigningKey
	}
	switch cfg.PasswordAlgorithm {
	case password.AlgorithmBcrypt, password.AlgorithmArgon2id:
	default:
		return Server{}, fmt.Errorf("invalid PASSWORD_ALGORITHM %q", cfg.PasswordAlgorithm)
	}
	if cfg.RateLimit.Backend == rlconfig.BackendRedis && cfg.RedisURL == "" {
		return Server{}, fmt.Errorf("REDIS_URL is required for the redis rate limit backend")
	}
	if cfg.RateLimit.Backend == rlconfig.BackendPostgres && cfg.DatabaseURL == "" {
		return Server{}, fmt.Errorf("DATABASE_URL is required for the postgres rate limit backend")
	}
	return cfg, nil
}

func loadRateLimit(rl *rlconfig.Config) error {
	rl.Algorithm = models.Algorithm(getEnv("RATE_LIMIT_ALGORITHM", string(rl.Algorithm)))
	rl.Backend = rlconfig.Backend(getEnv("RATE_LIMIT_BACKEND", string(rl.Backend)))

	var err error
	if rl.FailOpen, err = boolEnv("RATE_LIMIT_FAIL_OPEN", rl.FailOpen); err != nil {
		return err
	}
	if v := os.Getenv("RATE_LIMIT_LOGIN"); v != "" {
		limit, err := rlconfig.ParseLimit(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_LOGIN: %w", err)
		}
		rl.SetRoute(models.RouteLogin, limit)
	}
	if v := os.Getenv("RATE_LIMIT_DEFAULT"); v != "" {
		limit, err := rlconfig.ParseLimit(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_DEFAULT: %w", err)
		}
		rl.Default = limit
	}
	if rl.SweepInterval, err = durationEnv("RATE_LIMIT_SWEEP_INTERVAL", rl.SweepInterval); err != nil {
		return err
	}
	if rl.IdleTTL, err = durationEnv("RATE_LIMIT_IDLE_TTL", rl.IdleTTL); err != nil {
		return err
	}
	if rl.Lockout.Threshold, err = intEnv("LOCKOUT_THRESHOLD", rl.Lockout.Threshold); err != nil {
		return err
	}
	if rl.Lockout.Duration, err = durationEnv("LOCKOUT_DURATION", rl.Lockout.Duration); err != nil {
		return err
	}
	return rl.Validate()
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive duration", key, v)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive integer", key, v)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
