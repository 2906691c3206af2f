package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tradepilot/pilot_service/internal/domain/entities"
	domainerrors "github.com/tradepilot/pilot_service/internal/domain/errors"
	"github.com/tradepilot/pilot_service/internal/domain/repositories"
	"github.com/tradepilot/pilot_service/pkg/logger"
)

// Service manages user policies and keeps the user's scan job in step with the active one
type Service struct {
	policies repositories.PolicyRepository
	jobs     repositories.ScanJobRepository
	validate *validator.Validate
	timezone string
	logger   *logger.Logger
	now      func() time.Time
}

// NewService creates a new policy service. timezone is stored on scan jobs created at activation.
func NewService(policies repositories.PolicyRepository, jobs repositories.ScanJobRepository, timezone string, log *logger.Logger) *Service {
	return &Service{
		policies: policies,
		jobs:     jobs,
		validate: validator.New(),
		timezone: timezone,
		logger:   log,
		now:      time.Now,
	}
}

// Presets lists the built-in templates
func (s *Service) Presets() []entities.PolicyPreset {
	return Presets()
}

// GetActive returns the user's active policy or nil
func (s *Service) GetActive(ctx context.Context, userID uuid.UUID) (*entities.Policy, error) {
	return s.policies.GetActive(ctx, userID)
}

// List returns every policy of the user
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*entities.Policy, error) {
	return s.policies.ListByUser(ctx, userID)
}

// Get returns one of the user's policies
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*entities.Policy, error) {
	p, err := s.policies.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domainerrors.NotFoundError("POLICY")
	}
	return p, nil
}

// Create builds a new inactive policy from a preset, explicit values, or both.
// Explicit values override the preset.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req *entities.CreatePolicyRequest) (*entities.Policy, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, domainerrors.ValidationError("name", "name is required")
	}

	p := &entities.Policy{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      strings.TrimSpace(req.Name),
		Reporting: entities.ReportingSummary,
	}

	if req.PresetKey != "" {
		preset, ok := NewFromPreset(req.PresetKey)
		if !ok {
			return nil, domainerrors.ValidationError("preset_key", fmt.Sprintf("unknown preset %q", req.PresetKey))
		}
		p.PresetKey = preset.Key
		p.Config = preset.Config
		p.Allowlist = preset.Allowlist
		p.Reporting = preset.Reporting
	} else if req.Config == nil {
		return nil, domainerrors.ValidationError("config", "either preset_key or config is required")
	}

	if req.Config != nil {
		p.Config = *req.Config
	}
	if req.Allowlist != nil {
		p.Allowlist = req.Allowlist
	}
	if req.Blocklist != nil {
		p.Blocklist = req.Blocklist
	}
	if req.Reporting != nil {
		p.Reporting = *req.Reporting
	}
	p.Email = strings.TrimSpace(req.Email)

	if err := s.check(p); err != nil {
		return nil, err
	}

	if err := s.policies.Create(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("Policy created",
		"user_id", userID.String(),
		"policy_id", p.ID.String(),
		"preset", p.PresetKey)
	return p, nil
}

// Update replaces the given fields and bumps the version
func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, req *entities.UpdatePolicyRequest) (*entities.Policy, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	previousInterval := p.Config.Scan.IntervalMinutes

	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
		if p.Name == "" {
			return nil, domainerrors.ValidationError("name", "name is required")
		}
	}
	if req.Config != nil {
		p.Config = *req.Config
	}
	if req.Allowlist != nil {
		p.Allowlist = req.Allowlist
	}
	if req.Blocklist != nil {
		p.Blocklist = req.Blocklist
	}
	if req.Reporting != nil {
		p.Reporting = *req.Reporting
	}
	if req.Email != nil {
		p.Email = strings.TrimSpace(*req.Email)
	}

	if err := s.check(p); err != nil {
		return nil, err
	}

	if err := s.policies.Update(ctx, p); err != nil {
		return nil, err
	}

	if p.IsActive && p.Config.Scan.IntervalMinutes != previousInterval {
		if err := s.syncJob(ctx, p); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Policy updated",
		"user_id", userID.String(),
		"policy_id", p.ID.String(),
		"version", p.Version)
	return p, nil
}

// Activate makes the policy the user's only active one and schedules an immediate scan
func (s *Service) Activate(ctx context.Context, userID, id uuid.UUID) (*entities.Policy, error) {
	p, err := s.policies.Activate(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domainerrors.NotFoundError("POLICY")
	}

	if err := s.syncJob(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Deactivate clears the active flag. The scan job stays and idles until a policy is active again.
func (s *Service) Deactivate(ctx context.Context, userID, id uuid.UUID) (*entities.Policy, error) {
	p, err := s.policies.Deactivate(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domainerrors.NotFoundError("POLICY")
	}

	s.logger.Info("Policy deactivated",
		"user_id", userID.String(),
		"policy_id", id.String())
	return p, nil
}

func (s *Service) syncJob(ctx context.Context, p *entities.Policy) error {
	loc, err := time.LoadLocation(s.timezone)
	if err != nil {
		loc = time.UTC
	}
	now := s.now().UTC()
	local := now.In(loc)

	job, err := s.jobs.Upsert(ctx, &entities.ScanJob{
		UserID:          p.UserID,
		Status:          entities.ScanJobStatusActive,
		IntervalMinutes: p.Config.Scan.IntervalMinutes,
		NextRunAt:       now,
		Timezone:        loc.String(),
		LastResetDate:   time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc),
		HourWindowStart: now.Truncate(time.Hour),
	})
	if err != nil {
		return fmt.Errorf("failed to schedule scan job: %w", err)
	}

	s.logger.Info("Scan job scheduled",
		"user_id", p.UserID.String(),
		"job_id", job.ID.String(),
		"interval_minutes", job.IntervalMinutes)
	return nil
}

// check normalizes the asset lists and validates the whole policy
func (s *Service) check(p *entities.Policy) error {
	p.Allowlist = normalizeAssets(p.Allowlist)
	p.Blocklist = normalizeAssets(p.Blocklist)

	if err := s.validate.Struct(p.Config); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domainerrors.ValidationError(fe.Namespace(),
				fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
		return domainerrors.ValidationError("config", err.Error())
	}
	if err := s.validate.Var(p.Email, "omitempty,email"); err != nil {
		return domainerrors.ValidationError("notify_email", "invalid email address")
	}

	return ValidateConfig(p)
}

// ValidateConfig applies the checks struct tags cannot express
func ValidateConfig(p *entities.Policy) error {
	risk := p.Config.Risk
	if !risk.MinOrderValueEur.IsPositive() {
		return domainerrors.ValidationError("config.risk.min_order_value_eur", "minimum order value must be positive")
	}
	if risk.MaxOrderValueEur.LessThan(risk.MinOrderValueEur) {
		return domainerrors.ValidationError("config.risk.max_order_value_eur", "maximum order value must not be below the minimum")
	}

	for _, c := range p.Config.Signal.AllowedConfidence {
		if !entities.IsValidConfidence(c) {
			return domainerrors.ValidationError("config.signal.allowed_confidence",
				fmt.Sprintf("confidence %d is not one of 0, 25, 50, 75, 100", c))
		}
	}

	switch p.Reporting {
	case entities.ReportingSilent, entities.ReportingSummary, entities.ReportingVerbose:
	default:
		return domainerrors.ValidationError("reporting", fmt.Sprintf("unknown reporting level %q", p.Reporting))
	}

	for _, a := range p.Allowlist {
		if a == "" {
			return domainerrors.ValidationError("allowlist", "asset symbols must not be empty")
		}
	}
	return nil
}

func normalizeAssets(in []string) []string {
	if in == nil {
		return []string{}
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, a := range in {
		a = strings.ToUpper(strings.TrimSpace(a))
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
