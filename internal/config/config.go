// config.go

// Environment variable loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/setlog/setlog/internal/oauth"
)

// Environment values accepted for ENVIRONMENT.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds all env configuration vars for setlog.
type Config struct {
	DatabaseURL string
	RedisURL    string // optional -- empty means the in-process pending store
	Port        string
	Environment string // development|production; drives the redirect-URI policy
	LogLevel    slog.Level

	// JWT session issuer.
	JWTSecret string
	JWTTTL    time.Duration

	// Pending-authorization (OAuth state) TTL. Default 10m.
	PendingAuthTTL time.Duration

	// Provider credential triples. Either may be left unconfigured; the
	// corresponding authorize endpoint then answers 503.
	Google     oauth.Config
	SoundCloud oauth.Config
}

// LoadConfig reads environment variables and returns a validated Config.
// Returns an error if required variables (DATABASE_URL, JWT_SECRET) are
// missing, if ENVIRONMENT holds an unknown value, or if a configured provider
// redirect URI fails the environment policy. Provider validity is re-checked
// on every authorize call -- a later misconfiguration never silently
// downgrades security, it turns authorize into a 503.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	// Optional -- when empty, pending authorizations live in process memory
	// and callback affinity to this process must be guaranteed.
	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "8632"
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	switch cfg.Environment {
	case "":
		cfg.Environment = EnvDevelopment
	case EnvDevelopment, EnvProduction:
	default:
		return nil, fmt.Errorf("ENVIRONMENT must be %q or %q", EnvDevelopment, EnvProduction)
	}

	// Parse log level, default to info
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	cfg.JWTTTL = envDuration("JWT_TTL", 24*time.Hour)
	cfg.PendingAuthTTL = envDuration("PENDING_AUTH_TTL", 10*time.Minute)

	cfg.Google = oauth.Config{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURI:  os.Getenv("GOOGLE_REDIRECT_URI"),
	}
	cfg.SoundCloud = oauth.Config{
		ClientID:     os.Getenv("SOUNDCLOUD_CLIENT_ID"),
		ClientSecret: os.Getenv("SOUNDCLOUD_CLIENT_SECRET"),
		RedirectURI:  os.Getenv("SOUNDCLOUD_REDIRECT_URI"),
	}

	// Fail startup on a provider that is configured but invalid. An entirely
	// unconfigured provider is allowed -- its endpoints answer 503.
	for name, pc := range map[string]oauth.Config{"google": cfg.Google, "soundcloud": cfg.SoundCloud} {
		if pc.Configured() {
			if err := ValidateProvider(pc, cfg.Environment); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		}
	}

	return cfg, nil
}

// ValidateProvider checks a provider credential triple against the environment
// policy. Pure and cheap -- called at startup and again on every authorize
// request. In production the redirect URI must use https; in development http
// is additionally permitted, but only for localhost/127.0.0.1.
func ValidateProvider(pc oauth.Config, environment string) error {
	if pc.ClientID == "" {
		return fmt.Errorf("client id not configured")
	}
	if pc.ClientSecret == "" {
		return fmt.Errorf("client secret not configured")
	}
	if pc.RedirectURI == "" {
		return fmt.Errorf("redirect URI not configured")
	}

	u, err := url.Parse(pc.RedirectURI)
	if err != nil {
		return fmt.Errorf("redirect URI is not a valid URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if environment != EnvDevelopment {
			return fmt.Errorf("redirect URI must use https in %s", environment)
		}
		host := u.Host
		if h, _, splitErr := net.SplitHostPort(u.Host); splitErr == nil {
			host = h
		}
		if host != "localhost" && host != "127.0.0.1" {
			return fmt.Errorf("http redirect URI is only allowed for localhost in development")
		}
		return nil
	default:
		return fmt.Errorf("redirect URI must use http or https, got %q", u.Scheme)
	}
}

// envDuration reads an env var as time.Duration, returning def if missing or unparseable.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
