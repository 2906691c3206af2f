package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSecretNotFound is returned when a secret is missing or empty
var ErrSecretNotFound = errors.New("secret not found")

// Secret names, relative to the provider prefix
const (
	KeyJWTSecret           = "jwt-secret"
	KeySchedulerSecret     = "scheduler-shared-secret"
	KeyExchangeCredentials = "exchange-credentials"
	KeySignalAPIKey        = "signal-api-key"
	KeyPulseAPIKey         = "pulse-api-key"
)

type Provider interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// ExchangeCredential is the JSON document stored under KeyExchangeCredentials
type ExchangeCredential struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

type Manager struct {
	provider Provider
}

func NewManager(provider Provider) *Manager {
	return &Manager{provider: provider}
}

func (m *Manager) JWTSecret(ctx context.Context) (string, error) {
	return m.provider.GetSecret(ctx, KeyJWTSecret)
}

func (m *Manager) SchedulerSecret(ctx context.Context) (string, error) {
	return m.provider.GetSecret(ctx, KeySchedulerSecret)
}

func (m *Manager) SignalAPIKey(ctx context.Context) (string, error) {
	return m.provider.GetSecret(ctx, KeySignalAPIKey)
}

func (m *Manager) PulseAPIKey(ctx context.Context) (string, error) {
	return m.provider.GetSecret(ctx, KeyPulseAPIKey)
}

// ExchangeCredential reads the venue key pair
func (m *Manager) ExchangeCredential(ctx context.Context) (*ExchangeCredential, error) {
	raw, err := m.provider.GetSecret(ctx, KeyExchangeCredentials)
	if err != nil {
		return nil, err
	}
	var cred ExchangeCredential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return nil, fmt.Errorf("exchange credentials are not valid JSON: %w", err)
	}
	if cred.APIKey == "" || cred.APISecret == "" {
		return nil, fmt.Errorf("%w: exchange credentials incomplete", ErrSecretNotFound)
	}
	return &cred, nil
}
