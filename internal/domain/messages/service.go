package messages

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gatherspace/server/internal/cache"
	"github.com/gatherspace/server/internal/config"
	"github.com/gatherspace/server/internal/domain/analytics"
	"github.com/gatherspace/server/internal/domain/ids"
	"github.com/gatherspace/server/internal/sanitize"
)

var (
	ErrTitleRequired  = errors.New("message title is required")
	ErrInvalidChannel = errors.New("invalid message channel")
	ErrInvalidKind    = errors.New("invalid message kind")
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
		logger: config.Component(logger, "messages"),
	}
}

// CreateInput is the payload for one shared message.
type CreateInput struct {
	Kind      string
	Title     string
	Body      string
	EventID   string
	CreatedBy string
}

// CreateForRecipients stores one message plus system and bell ledger rows
// for every recipient. The notification orchestrator is the main caller;
// it hands over an already-deduplicated recipient list.
func (s *Service) CreateForRecipients(ctx context.Context, input CreateInput, recipientIDs []string) (*SystemMessage, error) {
	if !isKnownKind(input.Kind) {
		return nil, ErrInvalidKind
	}

	title := sanitize.Text(input.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, err
	}

	message, err := s.repo.CreateWithStates(ctx, CreateParams{
		ID:        id,
		Kind:      input.Kind,
		Title:     title,
		Body:      sanitize.HTML(input.Body),
		EventID:   optional(input.EventID),
		CreatedBy: optional(input.CreatedBy),
	}, recipientIDs)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	analytics.Invalidate(s.cache)
	s.logger.Info().
		Str("message_id", message.ID).
		Str("kind", message.Kind).
		Int("recipients", len(recipientIDs)).
		Msg("system message created")
	return message, nil
}

func (s *Service) Get(ctx context.Context, id string) (*SystemMessage, error) {
	return s.repo.GetByID(ctx, id)
}

// Inbox lists the caller's system-channel entries, newest first.
func (s *Service) Inbox(ctx context.Context, userID string, opts ListOptions) (ListResult, error) {
	return s.repo.ListForUser(ctx, userID, ChannelSystem, opts)
}

// Bell lists the caller's bell-channel entries, newest first.
func (s *Service) Bell(ctx context.Context, userID string, limit int) (ListResult, error) {
	if limit < 1 || limit > maxListLimit {
		limit = defaultListLimit
	}
	return s.repo.ListForUser(ctx, userID, ChannelBell, ListOptions{Limit: limit})
}

func (s *Service) MarkRead(ctx context.Context, messageID, userID, channel string) error {
	if channel != ChannelSystem && channel != ChannelBell {
		return ErrInvalidChannel
	}
	return s.repo.MarkRead(ctx, messageID, userID, channel)
}

func (s *Service) MarkAllRead(ctx context.Context, userID, channel string) error {
	if channel != ChannelSystem && channel != ChannelBell {
		return ErrInvalidChannel
	}
	return s.repo.MarkAllRead(ctx, userID, channel)
}

// Dismiss soft-deletes the caller's entry on one channel.
func (s *Service) Dismiss(ctx context.Context, messageID, userID, channel string) error {
	if channel != ChannelSystem && channel != ChannelBell {
		return ErrInvalidChannel
	}
	return s.repo.SoftDelete(ctx, messageID, userID, channel)
}

// Retract withdraws a message from every recipient. Admin only; the
// entries stay in the ledger flagged removed so the retraction is
// auditable.
func (s *Service) Retract(ctx context.Context, messageID string) error {
	if _, err := s.repo.GetByID(ctx, messageID); err != nil {
		return err
	}
	if err := s.repo.RetractAll(ctx, messageID); err != nil {
		return fmt.Errorf("retract message: %w", err)
	}
	analytics.Invalidate(s.cache)
	s.logger.Info().Str("message_id", messageID).Msg("message retracted")
	return nil
}

// Cleanup drops dismissed and retracted ledger rows older than the
// retention window.
func (s *Service) Cleanup(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	dropped, err := s.repo.PurgeStates(ctx, now.Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge message states: %w", err)
	}
	if dropped > 0 {
		s.logger.Info().Int64("dropped", dropped).Msg("stale message states purged")
	}
	return dropped, nil
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

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

// ParseListOptions reads limit, offset and unread query parameters.
func ParseListOptions(values url.Values) (ListOptions, error) {
	opts := ListOptions{Limit: defaultListLimit}

	rawLimit := strings.TrimSpace(values.Get("limit"))
	if rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil {
			return opts, FilterError{Field: "limit", Message: "must be a number"}
		}
		if parsed < 1 || parsed > maxListLimit {
			return opts, FilterError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", maxListLimit)}
		}
		opts.Limit = parsed
	}

	rawOffset := strings.TrimSpace(values.Get("offset"))
	if rawOffset != "" {
		parsed, err := strconv.Atoi(rawOffset)
		if err != nil || parsed < 0 {
			return opts, FilterError{Field: "offset", Message: "must be a non-negative number"}
		}
		opts.Offset = parsed
	}

	rawUnread := strings.TrimSpace(values.Get("unread"))
	if rawUnread != "" {
		parsed, err := strconv.ParseBool(rawUnread)
		if err != nil {
			return opts, FilterError{Field: "unread", Message: "must be true or false"}
		}
		opts.UnreadOnly = parsed
	}

	return opts, nil
}

func isKnownKind(kind string) bool {
	switch kind {
	case KindAnnouncement, KindEventUpdated, KindEventCancelled,
		KindEventReminder, KindRegistrationConfirmed, KindGuestMigrated:
		return true
	default:
		return false
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
