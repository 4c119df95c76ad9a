package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const devSecret = "supersecret-dev-key"

type Config struct {
	Mode     Mode   `yaml:"mode"`
	HTTPAddr string `yaml:"http_addr"`
	LogMode  string `yaml:"log_mode"` // dev|prod

	// offline stand-in for the data service
	DBDriver string `yaml:"db_driver"` // sqlite|postgres
	DBDSN    string `yaml:"db_dsn"`

	// online data service
	BackendURL     string        `yaml:"backend_url"`
	BackendTimeout time.Duration `yaml:"backend_timeout"`

	AuthHMACSecret string        `yaml:"auth_hmac_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl"`

	BlobBasePath string `yaml:"blob_base_path"`

	RedisAddr string        `yaml:"redis_addr"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`

	CORSOrigins []string `yaml:"cors_origins"`

	// live quiz sessions untouched this long are dropped
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl"`

	// bootstrap account for the offline store
	SuperAdminUser string `yaml:"superadmin_user"`
	SuperAdminPass string `yaml:"superadmin_pass"`
}

func defaults() Config {
	return Config{
		Mode:           ModeOffline,
		HTTPAddr:       ":8080",
		LogMode:        "dev",
		DBDriver:       "sqlite",
		BackendTimeout: 15 * time.Second,
		AuthHMACSecret: devSecret,
		TokenTTL:       12 * time.Hour,
		BlobBasePath:   "./data",
		CacheTTL:       5 * time.Minute,
		CORSOrigins:    []string{"http://localhost:3000"},
		SessionIdleTTL: 2 * time.Hour,
	}
}

// Load reads the YAML file at path (if any) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	cfg = applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv is Load with CONFIG_PATH as the file.
func FromEnv() (Config, error) {
	return Load(os.Getenv("CONFIG_PATH"))
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return yaml.NewDecoder(f).Decode(cfg)
}

func applyEnv(c Config) Config {
	c.Mode = Mode(strings.ToLower(envOr("MODE", string(c.Mode))))
	c.HTTPAddr = envOr("HTTP_ADDR", c.HTTPAddr)
	c.LogMode = envOr("LOG_MODE", c.LogMode)
	c.DBDriver = envOr("DB_DRIVER", c.DBDriver)
	c.DBDSN = envOr("DB_DSN", c.DBDSN)
	c.BackendURL = envOr("BACKEND_URL", c.BackendURL)
	c.BackendTimeout = envDuration("BACKEND_TIMEOUT", c.BackendTimeout)
	c.AuthHMACSecret = envOr("AUTH_HMAC_SECRET", c.AuthHMACSecret)
	c.TokenTTL = envDuration("TOKEN_TTL", c.TokenTTL)
	c.BlobBasePath = envOr("BLOB_BASE_PATH", c.BlobBasePath)
	c.RedisAddr = envOr("REDIS_ADDR", c.RedisAddr)
	c.CacheTTL = envDuration("CACHE_TTL", c.CacheTTL)
	c.CORSOrigins = csvOr("CORS_ORIGINS", c.CORSOrigins)
	c.SessionIdleTTL = envDuration("SESSION_IDLE_TTL", c.SessionIdleTTL)
	c.SuperAdminUser = envOr("SUPERADMIN_USER", c.SuperAdminUser)
	c.SuperAdminPass = envOr("SUPERADMIN_PASS", c.SuperAdminPass)
	return c
}

func (c Config) Validate() error {
	var errs []error
	switch c.Mode {
	case ModeOffline:
		if c.DBDriver != "sqlite" && c.DBDriver != "postgres" {
			errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver))
		}
	case ModeOnline:
		if c.BackendURL == "" {
			errs = append(errs, errors.New("BACKEND_URL required in online mode"))
		}
		if c.AuthHMACSecret == devSecret {
			errs = append(errs, errors.New("AUTH_HMAC_SECRET must be set in online mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("MODE must be offline or online, got %q", c.Mode))
	}
	if c.AuthHMACSecret == "" {
		errs = append(errs, errors.New("AUTH_HMAC_SECRET must not be empty"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.SessionIdleTTL <= 0 {
		errs = append(errs, errors.New("SESSION_IDLE_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
func csvOr(k string, def []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
