package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	API      APIConfig      `yaml:"api"`
	Limiter  LimiterConfig  `yaml:"limiter"`
	Session  SessionConfig  `yaml:"session"`
	Banner   BannerConfig   `yaml:"banner"`
	Delivery DeliveryConfig `yaml:"delivery"`
	CORS     CORSConfig     `yaml:"cors"`
}

type ServerConfig struct {
	Addr                string `yaml:"addr"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// APIConfig points at the external generation service.
type APIConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type LimiterConfig struct {
	MaxConcurrent int     `yaml:"max_concurrent"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	// WaitSeconds is how long a submission may queue for a slot before it fails.
	WaitSeconds int `yaml:"wait_seconds"`
}

type SessionConfig struct {
	Type           string `yaml:"type"` // memory | redis
	CookieName     string `yaml:"cookie_name"`
	TTLMinutes     int    `yaml:"ttl_minutes"`
	MaxIdleMinutes int    `yaml:"max_idle_minutes"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisPassword  string `yaml:"redis_password"`
	RedisDB        int    `yaml:"redis_db"`
}

// BannerConfig controls how long confirmation and error banners stay visible.
type BannerConfig struct {
	SuccessSeconds    int `yaml:"success_seconds"`
	ErrorSeconds      int `yaml:"error_seconds"`
	ValidationSeconds int `yaml:"validation_seconds"`
}

type DeliveryConfig struct {
	// ArchiveDir, when set, also keeps a decoded copy of every delivered artifact.
	ArchiveDir string `yaml:"archive_dir"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c LimiterConfig) Wait() time.Duration {
	return time.Duration(c.WaitSeconds) * time.Second
}

func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

func (c SessionConfig) MaxIdle() time.Duration {
	return time.Duration(c.MaxIdleMinutes) * time.Minute
}

func Load() (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := defaultConfig()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                ":3000",
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 120,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		API: APIConfig{
			BaseURL:        "http://localhost:8000/api/v1",
			TimeoutSeconds: 60,
		},
		Limiter: LimiterConfig{
			MaxConcurrent: 10,
			RatePerSecond: 5,
			WaitSeconds:   5,
		},
		Session: SessionConfig{
			Type:           "memory",
			CookieName:     "slidegen_session",
			TTLMinutes:     60,
			MaxIdleMinutes: 30,
			RedisAddr:      "localhost:6379",
		},
		Banner: BannerConfig{
			SuccessSeconds:    5,
			ErrorSeconds:      5,
			ValidationSeconds: 3,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("API_TIMEOUT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid API_TIMEOUT_SECONDS %q: %w", v, err)
		}
		cfg.API.TimeoutSeconds = n
	}
	if v := os.Getenv("SESSION_TYPE"); v != "" {
		cfg.Session.Type = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Session.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Session.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
		cfg.Session.RedisDB = n
	}
	if v := os.Getenv("DELIVERY_ARCHIVE_DIR"); v != "" {
		cfg.Delivery.ArchiveDir = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORS.AllowedOrigins = origins
	}
	return nil
}

func (c *Config) Validate() error {
	u, err := url.ParseRequestURI(c.API.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid api.base_url %q", c.API.BaseURL)
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be positive, got %d", c.API.TimeoutSeconds)
	}
	switch c.Session.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown session.type %q", c.Session.Type)
	}
	if c.Session.CookieName == "" {
		return errors.New("session.cookie_name must not be empty")
	}
	if c.Limiter.MaxConcurrent <= 0 {
		return fmt.Errorf("limiter.max_concurrent must be positive, got %d", c.Limiter.MaxConcurrent)
	}
	if c.Limiter.WaitSeconds < 0 {
		return fmt.Errorf("limiter.wait_seconds must not be negative, got %d", c.Limiter.WaitSeconds)
	}
	// 写超时必须覆盖排队等待加一次完整的生成调用
	if budget := c.API.TimeoutSeconds + c.Limiter.WaitSeconds; c.Server.WriteTimeoutSeconds > 0 && c.Server.WriteTimeoutSeconds <= budget {
		return fmt.Errorf("server.write_timeout_seconds (%d) must exceed api.timeout_seconds + limiter.wait_seconds (%d)",
			c.Server.WriteTimeoutSeconds, budget)
	}
	return nil
}
