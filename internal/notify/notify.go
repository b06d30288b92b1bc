// Package notify fans one domain occurrence out to its recipients: a
// shared system message with per-user inbox and bell entries, an email
// per opted-in user, and a bell payload on the broadcaster.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/gatherspace/server/internal/config"
	"github.com/gatherspace/server/internal/domain/messages"
	"github.com/gatherspace/server/internal/domain/users"
	"github.com/gatherspace/server/internal/metrics"
)

// Input describes one occurrence to deliver. It doubles as the queue
// payload for asynchronous fan-out, so fields carry JSON tags.
// A nil Recipients slice addresses every active user.
type Input struct {
	Kind       string   `json:"kind"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	EventID    string   `json:"event_id,omitempty"`
	ActorID    string   `json:"actor_id,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
}

// MessageCreator is the slice of the messages service the orchestrator
// needs.
type MessageCreator interface {
	CreateForRecipients(ctx context.Context, input messages.CreateInput, recipientIDs []string) (*messages.SystemMessage, error)
}

// EmailSender delivers one notification email. Implementations must not
// block on remote retries; failures are logged here and never bubble up.
type EmailSender interface {
	SendNotification(ctx context.Context, to, title, bodyHTML string) error
}

type Orchestrator struct {
	messages    MessageCreator
	users       users.Repository
	email       EmailSender
	broadcaster Broadcaster
	logger      zerolog.Logger
}

func NewOrchestrator(creator MessageCreator, usersRepo users.Repository, email EmailSender, broadcaster Broadcaster, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		messages:    creator,
		users:       usersRepo,
		email:       email,
		broadcaster: broadcaster,
		logger:      config.Component(logger, "notify"),
	}
}

// Deliver performs the whole fan-out synchronously. Exactly one system
// message is written even when the recipient list collapses to nothing,
// so an admin broadcast always leaves a record.
func (o *Orchestrator) Deliver(ctx context.Context, input Input) (*messages.SystemMessage, error) {
	recipients, err := o.resolveRecipients(ctx, input.Recipients)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}

	ids := make([]string, len(recipients))
	for i, user := range recipients {
		ids[i] = user.ID
	}

	message, err := o.messages.CreateForRecipients(ctx, messages.CreateInput{
		Kind:      input.Kind,
		Title:     input.Title,
		Body:      input.Body,
		EventID:   input.EventID,
		CreatedBy: input.ActorID,
	}, ids)
	if err != nil {
		return nil, err
	}

	metrics.NotificationsCreatedTotal.WithLabelValues(message.Kind, messages.ChannelSystem).Add(float64(len(ids)))
	metrics.NotificationsCreatedTotal.WithLabelValues(message.Kind, messages.ChannelBell).Add(float64(len(ids)))

	emailed := 0
	for _, user := range recipients {
		if user.EmailNotifications && user.Email != "" {
			if err := o.email.SendNotification(ctx, user.Email, message.Title, message.Body); err != nil {
				o.logger.Warn().
					Err(err).
					Str("message_id", message.ID).
					Str("user_id", user.ID).
					Msg("notification email failed")
			} else {
				emailed++
			}
		}

		o.broadcaster.BroadcastBell(ctx, user.ID, BellPayload{
			MessageID: message.ID,
			Kind:      message.Kind,
			Title:     message.Title,
			EventID:   input.EventID,
			CreatedAt: message.CreatedAt,
		})
	}

	o.logger.Info().
		Str("message_id", message.ID).
		Str("kind", message.Kind).
		Int("recipients", len(ids)).
		Int("emailed", emailed).
		Msg("notification delivered")
	return message, nil
}

// resolveRecipients dedupes the requested IDs keeping first-seen order
// and drops unknown or deactivated accounts. A nil request expands to
// every active user.
func (o *Orchestrator) resolveRecipients(ctx context.Context, requested []string) ([]users.User, error) {
	if requested == nil {
		return o.users.ListActive(ctx)
	}

	seen := make(map[string]struct{}, len(requested))
	unique := make([]string, 0, len(requested))
	for _, id := range requested {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil, nil
	}

	resolved, err := o.users.GetByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]users.User, len(resolved))
	for _, user := range resolved {
		byID[user.ID] = user
	}

	kept := make([]users.User, 0, len(unique))
	for _, id := range unique {
		user, ok := byID[id]
		if !ok || !user.IsActive {
			continue
		}
		kept = append(kept, user)
	}
	return kept, nil
}
