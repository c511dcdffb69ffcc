package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bookhub/internal/util"
)

// ConfigPath is the default config location; BOOKHUB_WEB_CONFIG overrides it.
var ConfigPath = envOr("BOOKHUB_WEB_CONFIG", "config.yaml")

const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
	SessionBackendCookie = "cookie"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                       string   `yaml:"port"`
	LogLevel                   string   `yaml:"logLevel"`
	APIBaseURL                 string   `yaml:"apiBaseURL"`
	APITimeout                 string   `yaml:"apiTimeout"`
	SessionBackend             string   `yaml:"sessionBackend"`
	SessionTTL                 string   `yaml:"sessionTTL"`
	SessionCookieName          string   `yaml:"sessionCookieName"`
	SessionCookieSecure        bool     `yaml:"sessionCookieSecure"`
	SessionSecret              string   `yaml:"sessionSecret"`
	RedisAddr                  string   `yaml:"redisAddr"`
	RedisPassword              string   `yaml:"redisPassword"`
	LoginRateLimitPerMinute    int      `yaml:"loginRateLimitPerMinute"`
	RegisterRateLimitPerMinute int      `yaml:"registerRateLimitPerMinute"`
	TrustedProxyCIDRs          []string `yaml:"trustedProxyCIDRs"`
	CORSAllowedOrigins         []string `yaml:"corsAllowedOrigins"`
}

// Load reads config from path (defaults to ConfigPath) and applies env overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("BOOKHUB_WEB_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKHUB_API_URL"); v != "" {
		cfg.APIBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKHUB_API_TIMEOUT"); v != "" {
		cfg.APITimeout = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKHUB_SESSION_BACKEND"); v != "" {
		cfg.SessionBackend = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("BOOKHUB_SESSION_TTL"); v != "" {
		cfg.SessionTTL = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKHUB_SESSION_COOKIE_NAME"); v != "" {
		cfg.SessionCookieName = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKHUB_SESSION_COOKIE_SECURE"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.SessionCookieSecure = b
		}
	}
	if v := os.Getenv("BOOKHUB_SESSION_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("BOOKHUB_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("BOOKHUB_REGISTER_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.RegisterRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("BOOKHUB_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitList(v)
	}
	if v := os.Getenv("BOOKHUB_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "3000"
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:5000"
	}
	if cfg.SessionBackend == "" {
		cfg.SessionBackend = SessionBackendRedis
	}
	if cfg.SessionTTL == "" {
		cfg.SessionTTL = "24h"
	}
}

func validateConfig(cfg FileConfig) error {
	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: apiBaseURL must be an absolute http(s) URL, got %q", cfg.APIBaseURL)
	}
	switch cfg.SessionBackend {
	case SessionBackendMemory:
	case SessionBackendRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis session backend")
		}
	case SessionBackendCookie:
		if len(cfg.SessionSecret) < 32 {
			return errors.New("config: sessionSecret of at least 32 bytes is required for the cookie session backend")
		}
	default:
		return fmt.Errorf("config: unknown sessionBackend %q (memory, redis, cookie)", cfg.SessionBackend)
	}
	if _, err := ParseDuration("sessionTTL", cfg.SessionTTL); err != nil {
		return err
	}
	if _, err := ParseDuration("apiTimeout", cfg.APITimeout); err != nil {
		return err
	}
	if cfg.LoginRateLimitPerMinute < 0 || cfg.RegisterRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if _, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs); err != nil {
		return fmt.Errorf("config: invalid trustedProxyCIDRs: %w", err)
	}
	for _, origin := range cfg.CORSAllowedOrigins {
		u, err := url.Parse(strings.TrimSpace(origin))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: invalid corsAllowedOrigins entry %q", origin)
		}
	}
	return nil
}

// ParseDuration parses an optional duration setting; empty means zero.
func ParseDuration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must be >= 0", name)
	}
	return dur, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
