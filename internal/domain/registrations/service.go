package registrations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gatherspace/server/internal/cache"
	"github.com/gatherspace/server/internal/config"
	"github.com/gatherspace/server/internal/domain/analytics"
	"github.com/gatherspace/server/internal/domain/events"
	"github.com/gatherspace/server/internal/domain/ids"
	"github.com/gatherspace/server/internal/metrics"
	"github.com/gatherspace/server/internal/sanitize"
)

var (
	ErrDuplicate      = errors.New("already registered for this role")
	ErrCapacityFull   = errors.New("role capacity is full")
	ErrRoleNotOffered = errors.New("role is not offered for this event")
	ErrEventCompleted = errors.New("event has already completed")
	ErrNameRequired   = errors.New("guest name is required")
)

type Service struct {
	repo   Repository
	events events.Repository
	cache  *cache.Store
	logger zerolog.Logger
}

func NewService(repo Repository, eventsRepo events.Repository, store *cache.Store, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		events: eventsRepo,
		cache:  store,
		logger: config.Component(logger, "registrations"),
	}
}

// Register signs the user up for a role on the event. The role must be
// offered, the event not yet completed, capacity not exhausted, and the
// user not already holding an active registration for that role.
func (s *Service) Register(ctx context.Context, eventID, userID, roleName string) (*Registration, error) {
	event, role, err := s.openRole(ctx, eventID, roleName)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindActive(ctx, event.ID, userID, role.Name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check existing registration: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicate
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, err
	}

	registration, err := s.repo.Create(ctx, CreateParams{
		ID:      id,
		EventID: event.ID,
		UserID:  userID,
		Role:    role.Name,
		Status:  StatusConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("create registration: %w", err)
	}

	metrics.RegistrationsTotal.WithLabelValues("member").Inc()
	analytics.Invalidate(s.cache)
	s.logger.Info().
		Str("event_id", event.ID).
		Str("user_id", userID).
		Str("role", role.Name).
		Msg("registration created")
	return registration, nil
}

// Cancel withdraws the user's active registration for a role.
func (s *Service) Cancel(ctx context.Context, eventID, userID, roleName string) error {
	if err := s.repo.Cancel(ctx, eventID, userID, strings.TrimSpace(roleName)); err != nil {
		return err
	}
	analytics.Invalidate(s.cache)
	return nil
}

// ListForEvent returns both member and guest registrations. Authorization
// is the caller's concern since it depends on the event's organizer.
func (s *Service) ListForEvent(ctx context.Context, eventID string) ([]Registration, []GuestRegistration, error) {
	members, err := s.repo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("list registrations: %w", err)
	}
	guests, err := s.repo.ListGuestsByEvent(ctx, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("list guest registrations: %w", err)
	}
	return members, guests, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]RegistrationWithEvent, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ActiveUserIDs lists the users to notify about changes to the event.
func (s *Service) ActiveUserIDs(ctx context.Context, eventID string) ([]string, error) {
	return s.repo.ActiveUserIDs(ctx, eventID)
}

func (s *Service) CountsByRole(ctx context.Context, eventID string) (map[string]int, error) {
	return s.repo.CountsByRole(ctx, eventID)
}

type GuestSignupInput struct {
	Name  string
	Email string
	Phone string
	Role  string
}

// GuestSignup registers an unauthenticated guest for a role. Validation
// mirrors Register, plus a duplicate check on (event, email, role).
func (s *Service) GuestSignup(ctx context.Context, eventID string, input GuestSignupInput) (*GuestRegistration, error) {
	event, role, err := s.openRole(ctx, eventID, input.Role)
	if err != nil {
		return nil, err
	}

	name := sanitize.Text(input.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	email := normalizeEmail(input.Email)

	existing, err := s.repo.FindActiveGuest(ctx, event.ID, email, role.Name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check existing guest registration: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicate
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, err
	}

	guest, err := s.repo.CreateGuest(ctx, GuestCreateParams{
		ID:      id,
		EventID: event.ID,
		Name:    name,
		Email:   email,
		Phone:   sanitize.Text(input.Phone),
		Role:    role.Name,
		Status:  GuestStatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("create guest registration: %w", err)
	}

	metrics.RegistrationsTotal.WithLabelValues("guest").Inc()
	analytics.Invalidate(s.cache)
	s.logger.Info().
		Str("event_id", event.ID).
		Str("role", role.Name).
		Msg("guest registration created")
	return guest, nil
}

// MigrationResult reports the outcome per guest row.
type MigrationResult struct {
	Migrated []string
	Skipped  []string
}

// MigrateGuests converts the caller's active guest registrations into
// user registrations. Each row is checked for a conflicting active user
// registration first; conflicting rows are skipped and reported rather
// than migrated.
func (s *Service) MigrateGuests(ctx context.Context, userID, email string) (MigrationResult, error) {
	result := MigrationResult{Migrated: []string{}, Skipped: []string{}}

	rows, err := s.repo.ListActiveGuestsByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return result, fmt.Errorf("list guest registrations: %w", err)
	}

	for _, row := range rows {
		existing, err := s.repo.FindActive(ctx, row.EventID, userID, row.Role)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return result, fmt.Errorf("check conflict for guest %s: %w", row.ID, err)
		}
		if existing != nil {
			result.Skipped = append(result.Skipped, row.ID)
			continue
		}

		id, err := ids.NewULID()
		if err != nil {
			return result, err
		}
		err = s.repo.MigrateGuest(ctx, row.ID, CreateParams{
			ID:      id,
			EventID: row.EventID,
			UserID:  userID,
			Role:    row.Role,
			Status:  StatusConfirmed,
		})
		if err != nil {
			return result, fmt.Errorf("migrate guest %s: %w", row.ID, err)
		}
		result.Migrated = append(result.Migrated, row.ID)
	}

	if len(result.Migrated) > 0 {
		analytics.Invalidate(s.cache)
		s.logger.Info().
			Str("user_id", userID).
			Int("migrated", len(result.Migrated)).
			Int("skipped", len(result.Skipped)).
			Msg("guest registrations migrated")
	}
	return result, nil
}

// openRole loads the event and resolves the requested role, rejecting
// completed events. Status is derived fresh so a stale stored status
// cannot let registrations slip into a finished event.
func (s *Service) openRole(ctx context.Context, eventID, roleName string) (*events.Event, events.Role, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, events.Role{}, err
	}

	if events.ComputeStatus(event, time.Now()) == events.StatusCompleted {
		return nil, events.Role{}, ErrEventCompleted
	}

	role, ok := findRole(event.Roles, roleName)
	if !ok {
		return nil, events.Role{}, ErrRoleNotOffered
	}

	if role.Capacity > 0 {
		count, err := s.repo.CountActiveForRole(ctx, event.ID, role.Name)
		if err != nil {
			return nil, events.Role{}, fmt.Errorf("count registrations: %w", err)
		}
		if count >= role.Capacity {
			return nil, events.Role{}, ErrCapacityFull
		}
	}

	return event, role, nil
}

func findRole(roles []events.Role, name string) (events.Role, bool) {
	trimmed := strings.TrimSpace(name)
	for _, role := range roles {
		if strings.EqualFold(role.Name, trimmed) {
			return role, true
		}
	}
	return events.Role{}, false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
