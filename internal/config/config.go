// Package config содержит логику чтения конфигурации сервиса пополнений.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultMinDeposit — минимальная сумма заявки на пополнение в минорных единицах.
const DefaultMinDeposit = 10000

// Config содержит параметры конфигурации сервиса пополнений.
type Config struct {
	RunAddress      string `env:"RUN_ADDRESS"`
	DatabaseURI     string `env:"DATABASE_URI"`
	ProviderAddress string `env:"PROVIDER_ADDRESS"`
	AuthSecret      string `env:"AUTH_SECRET"`
	AdminKey        string `env:"ADMIN_KEY"`
	MinDeposit      int64  `env:"MIN_DEPOSIT"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Файл .env, если он есть рядом с бинарником, подгружается до разбора окружения.
func Parse() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envProviderAddress := cfg.ProviderAddress
	envAuthSecret := cfg.AuthSecret
	envAdminKey := cfg.AdminKey
	envMinDeposit := cfg.MinDeposit

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.ProviderAddress, "r", "", "fulfillment provider address")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret key for auth tokens")
	flag.StringVar(&cfg.AdminKey, "k", "", "API key for admin endpoints")
	flag.Int64Var(&cfg.MinDeposit, "m", 0, "minimum deposit amount in minor units")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envProviderAddress != "" {
		cfg.ProviderAddress = envProviderAddress
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envAdminKey != "" {
		cfg.AdminKey = envAdminKey
	}
	if envMinDeposit != 0 {
		cfg.MinDeposit = envMinDeposit
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.MinDeposit <= 0 {
		cfg.MinDeposit = DefaultMinDeposit
	}

	return cfg, nil
}
