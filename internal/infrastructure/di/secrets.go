package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradepilot/pilot_service/internal/infrastructure/config"
	"github.com/tradepilot/pilot_service/pkg/logger"
	"github.com/tradepilot/pilot_service/pkg/secrets"
)

// ResolveSecrets fills credentials the config left empty from the configured secret
// store. Values already set through the config file or environment win.
func ResolveSecrets(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	if cfg.Secrets.Provider != "aws" {
		return nil
	}

	provider, err := secrets.NewAWSSecretsManagerProvider(ctx,
		cfg.Secrets.Region,
		cfg.Secrets.Prefix,
		time.Duration(cfg.Secrets.CacheTTLSeconds)*time.Second)
	if err != nil {
		return err
	}
	if err := resolveSecrets(ctx, cfg, secrets.NewManager(provider)); err != nil {
		return err
	}

	log.Info("Credentials resolved from AWS Secrets Manager",
		"region", cfg.Secrets.Region,
		"prefix", cfg.Secrets.Prefix)
	return cfg.CheckSecrets()
}

func resolveSecrets(ctx context.Context, cfg *config.Config, m *secrets.Manager) error {
	fill := func(dst *string, get func(context.Context) (string, error), name string, required bool) error {
		if *dst != "" {
			return nil
		}
		v, err := get(ctx)
		if err != nil {
			if !required && errors.Is(err, secrets.ErrSecretNotFound) {
				return nil
			}
			return fmt.Errorf("failed to resolve %s: %w", name, err)
		}
		*dst = v
		return nil
	}

	if err := fill(&cfg.JWT.Secret, m.JWTSecret, "jwt secret", true); err != nil {
		return err
	}
	if err := fill(&cfg.Scheduler.SharedSecret, m.SchedulerSecret, "scheduler secret", true); err != nil {
		return err
	}
	if err := fill(&cfg.Signal.APIKey, m.SignalAPIKey, "signal api key", false); err != nil {
		return err
	}
	if err := fill(&cfg.Pulse.APIKey, m.PulseAPIKey, "pulse api key", false); err != nil {
		return err
	}

	if cfg.Exchange.Venue == "rest" && (cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "") {
		cred, err := m.ExchangeCredential(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve exchange credentials: %w", err)
		}
		cfg.Exchange.APIKey = cred.APIKey
		cfg.Exchange.APISecret = cred.APISecret
	}
	return nil
}
