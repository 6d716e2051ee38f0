package config

import (
	"fmt"

	"github.com/Skotchmaster/marketplace/pkg/config"
	"github.com/Skotchmaster/marketplace/services/order/internal/eligibility"
)

type ServiceConfig struct {
	config.Config
}

func Load() ServiceConfig {
	cfg := config.Load("services/order/.env")
	if cfg.ServiceName == "" {
		cfg.ServiceName = "order"
	}

	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	config.MustNonEmptyBytes(cfg.JWTAccessSecret, "JWT_SECRET")

	return ServiceConfig{Config: cfg}
}

// Policy returns the rule set from PAYMENT_POLICY_FILE, or the built-in one.
func (c ServiceConfig) Policy() ([]eligibility.Rule, error) {
	if c.PaymentPolicyFile == "" {
		return eligibility.DefaultPolicy(), nil
	}
	rules, err := eligibility.LoadPolicy(c.PaymentPolicyFile)
	if err != nil {
		return nil, fmt.Errorf("payment policy %s: %w", c.PaymentPolicyFile, err)
	}
	return rules, nil
}
