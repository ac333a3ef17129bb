// Package config reads the process configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	RedisAddr   string
	PostgresDSN string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	PerplexityAPIKey string
	PerplexityModel  string

	EmailAPIKey      string
	EmailFromName    string
	EmailFromAddress string
	EmailTo          string

	Workers      int
	BatchTimeout time.Duration
	TaskTimeout  time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present; real environment variables win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, err
	}

	c := Config{
		Port:             envOr("PORT", "8080"),
		RedisAddr:        envOr("REDIS_ADDR", "localhost:6379"),
		PostgresDSN:      os.Getenv("POSTGRES_DSN"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      os.Getenv("OPENAI_MODEL"),
		OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
		PerplexityAPIKey: os.Getenv("PERPLEXITY_API_KEY"),
		PerplexityModel:  envOr("PERPLEXITY_MODEL", "sonar"),
		EmailAPIKey:      os.Getenv("EMAIL_API_KEY"),
		EmailFromName:    envOr("FROM_NAME", "BrandLens"),
		EmailFromAddress: os.Getenv("FROM_ADDRESS"),
		EmailTo:          os.Getenv("NOTIFY_TO"),
	}

	var err error
	if c.Workers, err = envInt("ENGINE_WORKERS", 8); err != nil {
		return Config{}, err
	}
	if c.BatchTimeout, err = envDuration("BATCH_TIMEOUT", 35*time.Second); err != nil {
		return Config{}, err
	}
	if c.TaskTimeout, err = envDuration("TASK_TIMEOUT", 15*time.Second); err != nil {
		return Config{}, err
	}

	if c.Workers <= 0 {
		return Config{}, errors.New("ENGINE_WORKERS must be positive")
	}

	return c, nil
}

// NotificationsEnabled reports whether enough email settings are present to
// send completion notifications.
func (c Config) NotificationsEnabled() bool {
	return c.EmailAPIKey != "" && c.EmailFromAddress != "" && c.EmailTo != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.New(key + " must be a duration like 35s")
	}
	return d, nil
}
