package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port      string
	AppEnv    string
	Release   string
	SentryDSN string

	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	BcryptCost int

	LoginRateLimitMax    int
	LoginRateLimitWindow time.Duration
	TrustProxy           bool

	AdminEmail    string
	AdminPassword string
}

// LoadConfig reads the process environment. JWT_SECRET is the only required
// value.
func LoadConfig() (Config, error) {
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}

	return Config{
		Port:      envOrDefault("PORT", "8080"),
		AppEnv:    envOrDefault("APP_ENV", "development"),
		Release:   os.Getenv("APP_RELEASE"),
		SentryDSN: os.Getenv("SENTRY_DSN"),

		JWTSecret:  jwtSecret,
		AccessTTL:  envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 60),
		RefreshTTL: envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 24),
		BcryptCost: envIntOrDefault("BCRYPT_COST", 10),

		LoginRateLimitMax:    envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		LoginRateLimitWindow: envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
		TrustProxy:           EnvBoolOrDefault("TRUST_PROXY", false),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
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

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
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
