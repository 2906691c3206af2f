// Package trading owns the per-user kill switch.
package trading

import (
	"context"

	"github.com/google/uuid"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	"github.com/tradepilot/pilot_service/internal/domain/repositories"
	"github.com/tradepilot/pilot_service/pkg/logger"
)

// Service reads and flips the trading-enabled flag. A user without a flag row
// gets a disabled one on first read.
type Service struct {
	flags  repositories.TradingFlagRepository
	logger *logger.Logger
}

// NewService creates a kill switch service
func NewService(flags repositories.TradingFlagRepository, log *logger.Logger) *Service {
	return &Service{flags: flags, logger: log}
}

// Get returns the user's flag, creating a disabled one if absent
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*entities.TradingFlag, error) {
	return s.flags.GetOrCreate(ctx, userID)
}

// IsEnabled reports whether the user may trade
func (s *Service) IsEnabled(ctx context.Context, userID uuid.UUID) (bool, error) {
	flag, err := s.flags.GetOrCreate(ctx, userID)
	if err != nil {
		return false, err
	}
	return flag.Enabled, nil
}

// Set turns trading on or off
func (s *Service) Set(ctx context.Context, userID uuid.UUID, enabled bool) (*entities.TradingFlag, error) {
	flag, err := s.flags.Set(ctx, userID, enabled)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Trading flag changed", "user_id", userID, "enabled", enabled)
	return flag, nil
}
