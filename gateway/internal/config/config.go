package config

import (
	"github.com/Skotchmaster/marketplace/pkg/config"
)

type Config struct {
	ListenAddr string
	LogLevel   string
	CatalogURL string
	CartURL    string
	OrderURL   string
	JWTSecret  []byte
}

func Load() *Config {
	base := config.Load("gateway/.env")

	cfg := &Config{
		ListenAddr: config.EnvDefault("GATEWAY_ADDR", ":8080"),
		LogLevel:   base.LogLevel,
		CatalogURL: config.EnvDefault("CATALOG_URL", ""),
		CartURL:    config.EnvDefault("CART_URL", ""),
		OrderURL:   config.EnvDefault("ORDER_URL", ""),
		JWTSecret:  base.JWTAccessSecret,
	}

	config.MustNonEmpty(cfg.CatalogURL, "CATALOG_URL")
	config.MustNonEmpty(cfg.CartURL, "CART_URL")
	config.MustNonEmpty(cfg.OrderURL, "ORDER_URL")
	config.MustNonEmptyBytes(cfg.JWTSecret, "JWT_SECRET")
	return cfg
}
