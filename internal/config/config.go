package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
	"quiz-league-client/internal/domain"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	API struct {
		BaseURL    string `yaml:"base_url"`
		Key        string `yaml:"key"`
		Timeout    string `yaml:"timeout"`
		MaxRetries int    `yaml:"max_retries"`
		BaseDelay  string `yaml:"base_delay"`
	} `yaml:"api"`
	User struct {
		ID string `yaml:"id"`
	} `yaml:"user"`
	Quiz struct {
		domain.QuizConfig `yaml:",inline"`
		TTL               string `yaml:"ttl"`
	} `yaml:"quiz"`
	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		SearchTTL string `yaml:"search_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.API.Timeout = "10s"
	cfg.API.MaxRetries = 3
	cfg.API.BaseDelay = "1s"
	cfg.Quiz.QuizConfig = domain.DefaultQuizConfig()
	cfg.Quiz.TTL = "10m"
	cfg.Redis.SearchTTL = "30s"
	cfg.Log.Level = "info"
	cfg.Log.Pretty = true
	return cfg
}

// Load reads YAML config from path on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadOptional is Load, except that a missing file yields Default.
func LoadOptional(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// ApplyEnv overrides file values with API_BASE_URL, API_KEY, USER_ID,
// PORT, REDIS_ADDR, DATABASE_URL and LOG_LEVEL when they are set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.API.BaseURL, "API_BASE_URL")
	set(&c.API.Key, "API_KEY")
	set(&c.User.ID, "USER_ID")
	set(&c.Server.Port, "PORT")
	set(&c.Redis.Addr, "REDIS_ADDR")
	set(&c.Postgres.URL, "DATABASE_URL")
	set(&c.Log.Level, "LOG_LEVEL")
	if v := getenv("API_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.API.MaxRetries = n
		}
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
