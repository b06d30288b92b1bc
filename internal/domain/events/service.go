package events

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gatherspace/server/internal/auth"
	"github.com/gatherspace/server/internal/cache"
	"github.com/gatherspace/server/internal/config"
	"github.com/gatherspace/server/internal/domain/analytics"
	"github.com/gatherspace/server/internal/domain/ids"
	"github.com/gatherspace/server/internal/metrics"
	"github.com/gatherspace/server/internal/sanitize"
)

var ErrForbidden = errors.New("not allowed to modify this event")

const (
	maxTitleLength       = 200
	maxLocationLength    = 300
	maxDescriptionLength = 10000
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
		logger: config.Component(logger, "events"),
	}
}

func (s *Service) List(ctx context.Context, filters Filters, pagination Pagination) (ListResult, error) {
	return s.repo.List(ctx, filters, pagination)
}

func (s *Service) Get(ctx context.Context, id string) (*Event, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateInput is the payload for a new event. Empty optional fields mean
// absent.
type CreateInput struct {
	Title       string
	Description string
	Location    string
	ProgramID   string
	Date        string
	StartTime   string
	EndDate     string
	EndTime     string
	TimeZone    string
	Roles       []Role
}

// Create validates and stores a new event owned by organizerID. The
// status column is derived at write time so fresh rows never wait for the
// background updater.
func (s *Service) Create(ctx context.Context, organizerID string, input CreateInput) (*Event, error) {
	title := sanitize.Text(input.Title)
	if title == "" {
		return nil, ValidationError{Field: "title", Message: "must not be empty"}
	}
	if len(title) > maxTitleLength {
		return nil, ValidationError{Field: "title", Message: fmt.Sprintf("must be at most %d characters", maxTitleLength)}
	}

	description := sanitize.HTML(input.Description)
	if len(description) > maxDescriptionLength {
		return nil, ValidationError{Field: "description", Message: fmt.Sprintf("must be at most %d characters", maxDescriptionLength)}
	}

	location := sanitize.Text(input.Location)
	if len(location) > maxLocationLength {
		return nil, ValidationError{Field: "location", Message: fmt.Sprintf("must be at most %d characters", maxLocationLength)}
	}

	if err := validateDate("date", input.Date, true); err != nil {
		return nil, err
	}
	if err := validateClock("startTime", input.StartTime, true); err != nil {
		return nil, err
	}
	if err := validateDate("endDate", input.EndDate, false); err != nil {
		return nil, err
	}
	if err := validateClock("endTime", input.EndTime, false); err != nil {
		return nil, err
	}

	timeZone := strings.TrimSpace(input.TimeZone)
	if timeZone == "" {
		timeZone = "UTC"
	}
	if _, err := time.LoadLocation(timeZone); err != nil {
		return nil, ValidationError{Field: "timeZone", Message: "unknown IANA time zone"}
	}

	var programID *string
	if trimmed := strings.TrimSpace(input.ProgramID); trimmed != "" {
		if err := ids.ValidateULID(trimmed); err != nil {
			return nil, ValidationError{Field: "programId", Message: "invalid ULID"}
		}
		programID = &trimmed
	}

	roles, err := normalizeRoles(input.Roles)
	if err != nil {
		return nil, err
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, err
	}

	params := CreateParams{
		ID:          id,
		Title:       title,
		Description: description,
		Location:    location,
		ProgramID:   programID,
		OrganizerID: organizerID,
		Date:        input.Date,
		StartTime:   input.StartTime,
		EndDate:     optional(input.EndDate),
		EndTime:     optional(input.EndTime),
		TimeZone:    timeZone,
		Roles:       roles,
	}
	params.Status = ComputeStatus(&Event{
		Date:      params.Date,
		StartTime: params.StartTime,
		EndDate:   params.EndDate,
		EndTime:   params.EndTime,
		TimeZone:  params.TimeZone,
	}, time.Now())

	event, err := s.repo.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	analytics.Invalidate(s.cache)
	s.logger.Info().
		Str("event_id", event.ID).
		Str("organizer_id", organizerID).
		Str("status", event.Status).
		Msg("event created")
	return event, nil
}

// UpdateInput carries a partial event update. Nil fields are untouched;
// empty strings clear optional fields.
type UpdateInput struct {
	Title       *string
	Description *string
	Location    *string
	ProgramID   *string
	Date        *string
	StartTime   *string
	EndDate     *string
	EndTime     *string
	TimeZone    *string
	Roles       []Role
}

// Update applies a partial change for the event's organizer or an admin.
// The returned bool reports whether the schedule moved, which callers use
// to decide on notifying registrants.
func (s *Service) Update(ctx context.Context, id, actorID, actorRole string, input UpdateInput) (*Event, bool, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !auth.IsAdmin(actorRole) && current.OrganizerID != actorID {
		return nil, false, ErrForbidden
	}

	params := UpdateParams{Roles: nil}
	projected := *current

	if input.Title != nil {
		title := sanitize.Text(*input.Title)
		if title == "" {
			return nil, false, ValidationError{Field: "title", Message: "must not be empty"}
		}
		if len(title) > maxTitleLength {
			return nil, false, ValidationError{Field: "title", Message: fmt.Sprintf("must be at most %d characters", maxTitleLength)}
		}
		params.Title = &title
	}
	if input.Description != nil {
		description := sanitize.HTML(*input.Description)
		if len(description) > maxDescriptionLength {
			return nil, false, ValidationError{Field: "description", Message: fmt.Sprintf("must be at most %d characters", maxDescriptionLength)}
		}
		params.Description = &description
	}
	if input.Location != nil {
		location := sanitize.Text(*input.Location)
		if len(location) > maxLocationLength {
			return nil, false, ValidationError{Field: "location", Message: fmt.Sprintf("must be at most %d characters", maxLocationLength)}
		}
		params.Location = &location
	}
	if input.ProgramID != nil {
		trimmed := strings.TrimSpace(*input.ProgramID)
		if trimmed != "" {
			if err := ids.ValidateULID(trimmed); err != nil {
				return nil, false, ValidationError{Field: "programId", Message: "invalid ULID"}
			}
		}
		params.ProgramID = &trimmed
	}

	scheduleChanged := false

	if input.Date != nil {
		if err := validateDate("date", *input.Date, true); err != nil {
			return nil, false, err
		}
		if *input.Date != current.Date {
			scheduleChanged = true
		}
		params.Date = input.Date
		projected.Date = *input.Date
	}
	if input.StartTime != nil {
		if err := validateClock("startTime", *input.StartTime, true); err != nil {
			return nil, false, err
		}
		if *input.StartTime != current.StartTime {
			scheduleChanged = true
		}
		params.StartTime = input.StartTime
		projected.StartTime = *input.StartTime
	}
	if input.EndDate != nil {
		if err := validateDate("endDate", *input.EndDate, false); err != nil {
			return nil, false, err
		}
		if derefOr(current.EndDate, "") != *input.EndDate {
			scheduleChanged = true
		}
		params.EndDate = input.EndDate
		projected.EndDate = optional(*input.EndDate)
	}
	if input.EndTime != nil {
		if err := validateClock("endTime", *input.EndTime, false); err != nil {
			return nil, false, err
		}
		if derefOr(current.EndTime, "") != *input.EndTime {
			scheduleChanged = true
		}
		params.EndTime = input.EndTime
		projected.EndTime = optional(*input.EndTime)
	}
	if input.TimeZone != nil {
		timeZone := strings.TrimSpace(*input.TimeZone)
		if timeZone == "" {
			timeZone = "UTC"
		}
		if _, err := time.LoadLocation(timeZone); err != nil {
			return nil, false, ValidationError{Field: "timeZone", Message: "unknown IANA time zone"}
		}
		if timeZone != current.TimeZone {
			scheduleChanged = true
		}
		params.TimeZone = &timeZone
		projected.TimeZone = timeZone
	}

	if input.Roles != nil {
		roles, err := normalizeRoles(input.Roles)
		if err != nil {
			return nil, false, err
		}
		params.Roles = roles
	}

	status := ComputeStatus(&projected, time.Now())
	params.Status = &status

	updated, err := s.repo.Update(ctx, id, params)
	if err != nil {
		return nil, false, fmt.Errorf("update event: %w", err)
	}

	analytics.Invalidate(s.cache)
	return updated, scheduleChanged, nil
}

// Delete hides the event and cancels its registrations. The removed event
// is returned so callers can notify affected registrants.
func (s *Service) Delete(ctx context.Context, id, actorID, actorRole string) (*Event, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.IsAdmin(actorRole) && current.OrganizerID != actorID {
		return nil, ErrForbidden
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("delete event: %w", err)
	}

	analytics.Invalidate(s.cache)
	s.logger.Info().Str("event_id", id).Str("actor_id", actorID).Msg("event deleted")
	return current, nil
}

// UpdateStatuses recomputes every stored status and rewrites rows that
// drifted past a schedule boundary. Returns the number of transitions.
func (s *Service) UpdateStatuses(ctx context.Context, now time.Time) (int, error) {
	all, err := s.repo.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}

	transitions := 0
	invalidate := false
	for i := range all {
		event := &all[i]
		derived := ComputeStatus(event, now)
		if derived == event.Status {
			continue
		}
		if err := s.repo.UpdateStatus(ctx, event.ID, derived); err != nil {
			return transitions, fmt.Errorf("update status for %s: %w", event.ID, err)
		}
		metrics.EventStatusTransitionsTotal.WithLabelValues(derived).Inc()
		s.logger.Debug().
			Str("event_id", event.ID).
			Str("from", event.Status).
			Str("to", derived).
			Msg("event status transition")
		transitions++
		if derived != StatusUpcoming {
			invalidate = true
		}
	}

	if invalidate {
		analytics.Invalidate(s.cache)
	}
	return transitions, nil
}

// DueForReminder lists events starting within the window that have not
// had a reminder sent yet.
func (s *Service) DueForReminder(ctx context.Context, now time.Time, window time.Duration) ([]Event, error) {
	candidates, err := s.repo.ListUpcomingWithoutReminder(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reminder candidates: %w", err)
	}

	due := make([]Event, 0, len(candidates))
	for _, event := range candidates {
		start, err := StartsAt(&event)
		if err != nil {
			continue
		}
		if start.After(now) && start.Sub(now) <= window {
			due = append(due, event)
		}
	}
	return due, nil
}

func (s *Service) MarkReminderSent(ctx context.Context, id string, at time.Time) error {
	return s.repo.MarkReminderSent(ctx, id, at)
}

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type FilterError struct {
	Field   string
	Message string
}

func (e FilterError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func ParseFilters(values url.Values) (Filters, Pagination, error) {
	filters := Filters{}
	pagination := Pagination{Limit: 20}

	status := strings.ToLower(strings.TrimSpace(values.Get("status")))
	if status != "" && !isAllowedStatus(status) {
		return filters, pagination, FilterError{Field: "status", Message: "must be upcoming, ongoing or completed"}
	}
	filters.Status = status

	programID := strings.TrimSpace(values.Get("programId"))
	if programID != "" {
		if err := ids.ValidateULID(programID); err != nil {
			return filters, pagination, FilterError{Field: "programId", Message: "invalid ULID"}
		}
	}
	filters.ProgramID = programID

	from, err := parseFilterDate("from", values.Get("from"))
	if err != nil {
		return filters, pagination, err
	}
	to, err := parseFilterDate("to", values.Get("to"))
	if err != nil {
		return filters, pagination, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return filters, pagination, FilterError{Field: "to", Message: "must be on or after from"}
	}
	filters.From = from
	filters.To = to

	filters.Query = strings.TrimSpace(values.Get("q"))

	limit, err := parseLimit(values)
	if err != nil {
		return filters, pagination, err
	}
	pagination.Limit = limit

	after := strings.TrimSpace(values.Get("after"))
	if after != "" {
		if err := ids.ValidateULID(after); err != nil {
			return filters, pagination, FilterError{Field: "after", Message: "must be a valid ULID (e.g., 01HQZX3Y4K6F7G8H9J0K1M2N3P)"}
		}
	}
	pagination.After = after

	return filters, pagination, nil
}

func parseFilterDate(field string, value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, FilterError{Field: field, Message: "must be ISO8601 date"}
	}
	return &parsed, nil
}

func parseLimit(values url.Values) (int, error) {
	limit := 20
	rawLimit := strings.TrimSpace(values.Get("limit"))
	if rawLimit == "" {
		return limit, nil
	}
	parsed, err := strconv.Atoi(rawLimit)
	if err != nil {
		return 0, FilterError{Field: "limit", Message: "must be a number"}
	}
	if parsed < 1 || parsed > 100 {
		return 0, FilterError{Field: "limit", Message: "must be between 1 and 100"}
	}
	return parsed, nil
}

func isAllowedStatus(value string) bool {
	switch value {
	case StatusUpcoming, StatusOngoing, StatusCompleted:
		return true
	default:
		return false
	}
}

func validateDate(field, value string, required bool) error {
	if value == "" {
		if required {
			return ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
	if _, err := time.Parse(dateLayout, value); err != nil {
		return ValidationError{Field: field, Message: "must be a YYYY-MM-DD date"}
	}
	return nil
}

func validateClock(field, value string, required bool) error {
	if value == "" {
		if required {
			return ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
	if _, err := time.Parse(timeLayout, value); err != nil {
		return ValidationError{Field: field, Message: "must be a HH:MM time"}
	}
	return nil
}

func normalizeRoles(roles []Role) ([]Role, error) {
	if roles == nil {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(roles))
	out := make([]Role, 0, len(roles))
	for _, role := range roles {
		name := sanitize.Text(role.Name)
		if name == "" {
			return nil, ValidationError{Field: "roles", Message: "role name must not be empty"}
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, ValidationError{Field: "roles", Message: fmt.Sprintf("duplicate role %q", name)}
		}
		if role.Capacity < 0 {
			return nil, ValidationError{Field: "roles", Message: "capacity must not be negative"}
		}
		seen[key] = struct{}{}
		out = append(out, Role{Name: name, Capacity: role.Capacity})
	}
	return out, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func derefOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	return *value
}
