package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradepilot/pilot_service/internal/adapters/exchange"
	"github.com/tradepilot/pilot_service/internal/adapters/pulse"
	"github.com/tradepilot/pilot_service/internal/infrastructure/config"
	"github.com/tradepilot/pilot_service/pkg/logger"
	"github.com/tradepilot/pilot_service/pkg/retry"
)

func TestPulseRetryPolicy(t *testing.T) {
	defaults := retry.DefaultPolicy()

	assert.Equal(t, defaults, pulseRetryPolicy(config.PulseConfig{}))
	assert.Equal(t, defaults, pulseRetryPolicy(config.PulseConfig{MaxRetries: -1}))

	p := pulseRetryPolicy(config.PulseConfig{MaxRetries: 7})
	assert.Equal(t, uint64(7), p.MaxRetries)
	assert.Equal(t, defaults.InitialInterval, p.InitialInterval)
}

func newTestContainer(cfg *config.Config) *Container {
	log := logger.NewNop()
	return &Container{Config: cfg, Logger: log, ZapLog: log.Zap()}
}

func TestBuildPulse_WithoutRedis(t *testing.T) {
	c := newTestContainer(&config.Config{Pulse: config.PulseConfig{
		BaseURL:        "http://pulse.local",
		TimeoutSeconds: 5,
		MaxRetries:     2,
	}})

	_, ok := c.buildPulse().(*pulse.Client)
	assert.True(t, ok)
}

func TestBuildExchange_Paper(t *testing.T) {
	c := newTestContainer(&config.Config{Exchange: config.ExchangeConfig{
		Venue:         "paper",
		Scope:         "trading",
		QuoteCurrency: "EUR",
		PaperCash:     "2500",
	}})

	gw, err := c.buildExchange()
	require.NoError(t, err)
	_, ok := gw.(*exchange.PaperVenue)
	assert.True(t, ok)

	c.Config.Exchange.PaperCash = "lots"
	_, err = c.buildExchange()
	assert.Error(t, err)
}
