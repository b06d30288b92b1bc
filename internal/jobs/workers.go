package jobs

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/riverqueue/river"
	"github.com/rs/zerolog"

	"github.com/gatherspace/server/internal/config"
	"github.com/gatherspace/server/internal/domain/events"
	"github.com/gatherspace/server/internal/domain/messages"
	"github.com/gatherspace/server/internal/domain/registrations"
	"github.com/gatherspace/server/internal/notify"
)

const (
	defaultReminderWindow   = 24 * time.Hour
	defaultCleanupRetention = 90 * 24 * time.Hour
)

// NotifyFanoutArgs carries one notification through the queue. Embedding
// keeps the JSON payload identical to the input of an inline delivery.
type NotifyFanoutArgs struct {
	notify.Input
}

func (NotifyFanoutArgs) Kind() string { return JobKindNotifyFanout }

// NotifyFanoutWorker performs a deferred notification fan-out.
type NotifyFanoutWorker struct {
	river.WorkerDefaults[NotifyFanoutArgs]
	Notifier *notify.Orchestrator
	Logger   zerolog.Logger
}

func (NotifyFanoutWorker) Kind() string { return JobKindNotifyFanout }

func (w NotifyFanoutWorker) Work(ctx context.Context, job *river.Job[NotifyFanoutArgs]) error {
	if w.Notifier == nil {
		return fmt.Errorf("notifier not configured")
	}

	input := job.Args.Input
	message, err := w.Notifier.Deliver(ctx, input)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}

	w.Logger.Debug().
		Str("message_id", message.ID).
		Str("kind", input.Kind).
		Int("attempt", job.Attempt).
		Msg("queued notification delivered")
	return nil
}

// StatusUpdateArgs defines the periodic event status sweep.
type StatusUpdateArgs struct{}

func (StatusUpdateArgs) Kind() string { return JobKindEventStatusUpdate }

// StatusUpdateWorker recomputes derived event statuses from the clock.
type StatusUpdateWorker struct {
	river.WorkerDefaults[StatusUpdateArgs]
	Events *events.Service
	Logger zerolog.Logger
}

func (StatusUpdateWorker) Kind() string { return JobKindEventStatusUpdate }

func (w StatusUpdateWorker) Work(ctx context.Context, job *river.Job[StatusUpdateArgs]) error {
	if w.Events == nil {
		return fmt.Errorf("events service not configured")
	}

	updated, err := w.Events.UpdateStatuses(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update event statuses: %w", err)
	}

	if updated > 0 {
		w.Logger.Info().Int("updated", updated).Msg("event statuses advanced")
	}
	return nil
}

// EventRemindersArgs defines the periodic reminder sweep.
type EventRemindersArgs struct{}

func (EventRemindersArgs) Kind() string { return JobKindEventReminders }

// EventRemindersWorker notifies registrants of events starting within the
// reminder window. reminder_sent_at guards against repeats, so an event is
// reminded at most once even across overlapping sweeps.
type EventRemindersWorker struct {
	river.WorkerDefaults[EventRemindersArgs]
	Events        *events.Service
	Registrations *registrations.Service
	Notifier      *notify.Orchestrator
	Window        time.Duration
	Logger        zerolog.Logger
}

func (EventRemindersWorker) Kind() string { return JobKindEventReminders }

func (w EventRemindersWorker) Work(ctx context.Context, job *river.Job[EventRemindersArgs]) error {
	if w.Events == nil {
		return fmt.Errorf("events service not configured")
	}
	if w.Registrations == nil {
		return fmt.Errorf("registrations service not configured")
	}
	if w.Notifier == nil {
		return fmt.Errorf("notifier not configured")
	}

	window := w.Window
	if window <= 0 {
		window = defaultReminderWindow
	}

	now := time.Now().UTC()
	due, err := w.Events.DueForReminder(ctx, now, window)
	if err != nil {
		return fmt.Errorf("list events due for reminder: %w", err)
	}

	var sent, failed int
	for i := range due {
		event := &due[i]
		if err := w.remind(ctx, event, now); err != nil {
			failed++
			w.Logger.Error().Err(err).Str("event_id", event.ID).Msg("event reminder failed")
			continue
		}
		sent++
	}

	if sent > 0 {
		w.Logger.Info().Int("due", len(due)).Int("sent", sent).Msg("event reminders sent")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d due reminders failed", failed, len(due))
	}
	return nil
}

func (w EventRemindersWorker) remind(ctx context.Context, event *events.Event, now time.Time) error {
	userIDs, err := w.Registrations.ActiveUserIDs(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("list registrants: %w", err)
	}

	// Events nobody signed up for are marked without writing a message,
	// so they drop out of the sweep the same way.
	if len(userIDs) > 0 {
		input := notify.Input{
			Kind:       messages.KindEventReminder,
			Title:      "Reminder: " + event.Title,
			Body:       reminderBody(event),
			EventID:    event.ID,
			Recipients: userIDs,
		}
		if _, err := w.Notifier.Deliver(ctx, input); err != nil {
			return fmt.Errorf("deliver reminder: %w", err)
		}
	}

	if err := w.Events.MarkReminderSent(ctx, event.ID, now); err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}

func reminderBody(event *events.Event) string {
	body := fmt.Sprintf("<p>%s starts on %s at %s (%s).</p>",
		html.EscapeString(event.Title), event.Date, event.StartTime, event.TimeZone)
	if event.Location != "" {
		body += fmt.Sprintf("<p>Location: %s</p>", html.EscapeString(event.Location))
	}
	return body
}

// MessageCleanupArgs defines the periodic message state purge.
type MessageCleanupArgs struct{}

func (MessageCleanupArgs) Kind() string { return JobKindMessageCleanup }

// MessageCleanupWorker purges dismissed and retracted message states past
// the retention period.
type MessageCleanupWorker struct {
	river.WorkerDefaults[MessageCleanupArgs]
	Messages  *messages.Service
	Retention time.Duration
	Logger    zerolog.Logger
}

func (MessageCleanupWorker) Kind() string { return JobKindMessageCleanup }

func (w MessageCleanupWorker) Work(ctx context.Context, job *river.Job[MessageCleanupArgs]) error {
	if w.Messages == nil {
		return fmt.Errorf("messages service not configured")
	}

	retention := w.Retention
	if retention <= 0 {
		retention = defaultCleanupRetention
	}

	purged, err := w.Messages.Cleanup(ctx, time.Now().UTC(), retention)
	if err != nil {
		return fmt.Errorf("purge message states: %w", err)
	}

	w.Logger.Debug().Int64("purged", purged).Msg("message cleanup sweep finished")
	return nil
}

// NewWorkers registers every worker with its dependencies.
func NewWorkers(notifier *notify.Orchestrator, eventService *events.Service, registrationService *registrations.Service, messageService *messages.Service, cfg config.JobsConfig, logger zerolog.Logger) *river.Workers {
	jobLogger := config.Component(logger, "jobs")

	workers := river.NewWorkers()
	river.AddWorker[NotifyFanoutArgs](workers, NotifyFanoutWorker{
		Notifier: notifier,
		Logger:   jobLogger,
	})
	river.AddWorker[StatusUpdateArgs](workers, StatusUpdateWorker{
		Events: eventService,
		Logger: jobLogger,
	})
	river.AddWorker[EventRemindersArgs](workers, EventRemindersWorker{
		Events:        eventService,
		Registrations: registrationService,
		Notifier:      notifier,
		Window:        cfg.ReminderWindow,
		Logger:        jobLogger,
	})
	river.AddWorker[MessageCleanupArgs](workers, MessageCleanupWorker{
		Messages:  messageService,
		Retention: cfg.CleanupRetention,
		Logger:    jobLogger,
	})
	return workers
}
