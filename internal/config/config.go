// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// devSessionSecret is only ever used outside production.
	devSessionSecret = "dodam-dev-session-secret-do-not-deploy"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// SessionSecret keys the HMAC signer for session and OAuth flow cookies.
	SessionSecret string
	CookieSecure  bool
	CookieDomain  string

	// AdminEmails are promoted to admin on identity upsert.
	AdminEmails []string

	OTLPEndpoint string

	DBType     string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// Load loads configuration from environment variables and .env file. It
// refuses to start in production without a session secret; development gets
// a fixed fallback with a loud warning.
func Load() (Config, error) {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", EnvDevelopment)
	cookieSecure := environment == EnvProduction
	if !cookieSecure {
		cookieSecure = getenvBool("COOKIE_SECURE", false)
	}

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "dodam"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   environment,
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		SessionSecret: strings.TrimSpace(getenv("SESSION_SECRET", "")),
		CookieSecure:  cookieSecure,
		CookieDomain:  strings.TrimSpace(getenv("COOKIE_DOMAIN", "")),
		AdminEmails:   parseList(getenv("ADMIN_EMAILS", "")),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:        getenv("DATABASE_TYPE", "postgres"),
		DBHost:        getenv("DATABASE_HOST", "localhost"),
		DBPort:        getenv("DATABASE_PORT", "5432"),
		DBName:        getenv("DATABASE_NAME", "dodam"),
		DBUser:        getenv("DATABASE_USER", "dodam"),
		DBPassword:    getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:     getenv("DATABASE_SSLMODE", "disable"),
	}

	if cfg.SessionSecret == "" {
		if cfg.IsProduction() {
			return Config{}, errors.New("SESSION_SECRET is required in production")
		}
		log.Printf("[config] SESSION_SECRET unset, using development fallback; cookies are NOT secure for deployment")
		cfg.SessionSecret = devSessionSecret
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

var Module = fx.Module("config",
	fx.Provide(Load),
)

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func parseList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
