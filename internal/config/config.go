package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const minSecretBytes = 32

// Config is built once at startup and passed by value afterwards.
type Config struct {
	DatabaseURL string
	JWTSecret   string
	Port        string
	AppEnv      string
	SentryDSN   string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	DBMaxOpenConns       int
	DBMaxIdleConns       int
	DBConnMaxLifetime    time.Duration
	DBConnMaxIdleTime    time.Duration
	RunMigrationsOnStart bool

	Argon2 Argon2
}

type Argon2 struct {
	MemoryKB    uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func Load() (Config, error) {
	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}
	if len(jwtSecret) < minSecretBytes {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretBytes)
	}

	return Config{
		DatabaseURL: databaseURL,
		JWTSecret:   jwtSecret,
		Port:        envOrDefault("PORT", "8080"),
		AppEnv:      envOrDefault("APP_ENV", "development"),
		SentryDSN:   strings.TrimSpace(os.Getenv("SENTRY_DSN")),

		AccessTokenTTL:  envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTL: envDaysOrDefault("REFRESH_TOKEN_TTL_DAYS", 7),

		DBMaxOpenConns:       envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:       envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime:    envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime:    envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
		RunMigrationsOnStart: EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),

		Argon2: Argon2{
			MemoryKB:    uint32(envIntOrDefault("ARGON2_MEMORY_KB", 64*1024)),
			Time:        uint32(envIntOrDefault("ARGON2_TIME", 3)),
			Parallelism: uint8(envIntOrDefault("ARGON2_PARALLELISM", 2)),
			SaltLength:  16,
			KeyLength:   32,
		},
	}, nil
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
