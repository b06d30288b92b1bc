package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gatherspace/server/internal/audit"
	"github.com/gatherspace/server/internal/auth"
	"github.com/gatherspace/server/internal/config"
	"github.com/gatherspace/server/internal/domain/ids"
	"github.com/gatherspace/server/internal/sanitize"
)

var (
	ErrWrongPassword   = errors.New("current password is incorrect")
	ErrInvalidTimezone = errors.New("invalid timezone")
	ErrInactive        = errors.New("user is inactive")
)

// Service handles account and profile operations. Token issuance is
// external; this service never mints sessions.
type Service struct {
	repo        Repository
	auditLogger *audit.Logger
	logger      zerolog.Logger
}

func NewService(repo Repository, auditLogger *audit.Logger, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		auditLogger: auditLogger,
		logger:      config.Component(logger, "users"),
	}
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, email)
}

// UpdateProfile applies the caller's profile changes. Name is stripped of
// HTML; timezone must be a known IANA name.
func (s *Service) UpdateProfile(ctx context.Context, id string, params UpdateProfileParams) (*User, error) {
	if params.Name != nil {
		cleaned := sanitize.Text(*params.Name)
		if cleaned == "" {
			return nil, fmt.Errorf("name must not be empty")
		}
		params.Name = &cleaned
	}

	if params.Timezone != nil && *params.Timezone != "" {
		if _, err := time.LoadLocation(*params.Timezone); err != nil {
			return nil, ErrInvalidTimezone
		}
	}

	user, err := s.repo.UpdateProfile(ctx, id, params)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

// ChangePassword verifies the current password before storing a new hash.
func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := auth.CheckPassword(user.PasswordHash, current); err != nil {
		s.auditLogger.LogFailure("user.password_change", user.Email, "", map[string]string{
			"reason": "wrong current password",
		})
		return ErrWrongPassword
	}

	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}

	if err := s.repo.UpdatePassword(ctx, id, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.auditLogger.LogSuccess("user.password_change", user.Email, "user", user.ID, "", nil)
	return nil
}

// EnsureAdmin creates the bootstrap admin account on startup when
// configured and missing. Safe to call on every boot.
func (s *Service) EnsureAdmin(ctx context.Context, cfg config.AdminBootstrapConfig) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}

	_, err := s.repo.GetByEmail(ctx, cfg.Email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("check bootstrap admin: %w", err)
	}

	hash, err := auth.HashPassword(cfg.Password)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}

	id, err := ids.NewULID()
	if err != nil {
		return err
	}

	_, err = s.repo.Create(ctx, CreateParams{
		ID:                 id,
		Name:               cfg.Name,
		Email:              cfg.Email,
		PasswordHash:       hash,
		Role:               string(auth.RoleAdmin),
		IsActive:           true,
		EmailNotifications: true,
	})
	if err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}

	s.logger.Info().Str("email", cfg.Email).Msg("bootstrap admin created")
	return nil
}
