package programs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gatherspace/server/internal/auth"
	"github.com/gatherspace/server/internal/cache"
	"github.com/gatherspace/server/internal/config"
	"github.com/gatherspace/server/internal/domain/analytics"
	"github.com/gatherspace/server/internal/domain/ids"
	"github.com/gatherspace/server/internal/sanitize"
)

var (
	ErrNameRequired = errors.New("program name is required")
	ErrForbidden    = errors.New("not allowed to modify this program")
)

type Service struct {
	repo   Repository
	cache  *cache.Store
	logger zerolog.Logger
}

func NewService(repo Repository, store *cache.Store, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  store,
		logger: config.Component(logger, "programs"),
	}
}

func (s *Service) List(ctx context.Context, includeInactive bool) ([]ProgramWithCount, error) {
	return s.repo.List(ctx, includeInactive)
}

func (s *Service) Get(ctx context.Context, id string) (*Program, error) {
	return s.repo.GetByID(ctx, id)
}

// Create registers a new program owned by the calling admin.
func (s *Service) Create(ctx context.Context, ownerID, name, description string) (*Program, error) {
	name = sanitize.Text(name)
	if name == "" {
		return nil, ErrNameRequired
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, err
	}

	program, err := s.repo.Create(ctx, CreateParams{
		ID:          id,
		Name:        name,
		Description: sanitize.HTML(description),
		OwnerID:     ownerID,
	})
	if err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}

	analytics.Invalidate(s.cache)
	s.logger.Info().Str("program_id", program.ID).Str("name", program.Name).Msg("program created")
	return program, nil
}

// Update applies a partial change. Only admins and the owning user may
// modify a program.
func (s *Service) Update(ctx context.Context, id, actorID, actorRole string, params UpdateParams) (*Program, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !auth.IsAdmin(actorRole) && current.OwnerID != actorID {
		return nil, ErrForbidden
	}

	if params.Name != nil {
		cleaned := sanitize.Text(*params.Name)
		if cleaned == "" {
			return nil, ErrNameRequired
		}
		params.Name = &cleaned
	}
	if params.Description != nil {
		cleaned := sanitize.HTML(*params.Description)
		params.Description = &cleaned
	}

	program, err := s.repo.Update(ctx, id, params)
	if err != nil {
		return nil, fmt.Errorf("update program: %w", err)
	}

	analytics.Invalidate(s.cache)
	return program, nil
}
