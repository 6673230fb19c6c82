// Package config содержит логику чтения конфигурации сервиса корзины.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress   = "localhost:8080"
	defaultRedisAddress = "localhost:6379"
	defaultBasketTTL    = 2 * time.Minute
)

// Config содержит параметры конфигурации сервиса корзины.
type Config struct {
	RunAddress    string        `env:"RUN_ADDRESS"`
	DatabaseURI   string        `env:"DATABASE_URI"`
	RedisAddress  string        `env:"REDIS_ADDRESS"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB"`
	BasketTTL     time.Duration `env:"BASKET_TTL"`
	ClearRetries  uint64        `env:"CHECKOUT_CLEAR_RETRIES" envDefault:"3"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRedisAddress := cfg.RedisAddress
	envBasketTTL := cfg.BasketTTL

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "r", defaultRedisAddress, "redis address")
	flag.DurationVar(&cfg.BasketTTL, "t", defaultBasketTTL, "basket lifetime since last access")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}
	if envBasketTTL != 0 {
		cfg.BasketTTL = envBasketTTL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.RedisAddress == "" {
		cfg.RedisAddress = defaultRedisAddress
	}
	if cfg.BasketTTL <= 0 {
		cfg.BasketTTL = defaultBasketTTL
	}

	return cfg, nil
}
