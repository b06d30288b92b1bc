package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/gatherspace/server/internal/api/middleware"
	"github.com/gatherspace/server/internal/api/respond"
	"github.com/gatherspace/server/internal/domain/events"
	"github.com/gatherspace/server/internal/domain/messages"
	"github.com/gatherspace/server/internal/domain/registrations"
	"github.com/gatherspace/server/internal/domain/users"
	"github.com/gatherspace/server/internal/email"
	"github.com/gatherspace/server/internal/notify"
)

// GuestEmailer is the slice of the email service guest sign-up needs.
type GuestEmailer interface {
	SendGuestConfirmation(ctx context.Context, to string, data email.GuestConfirmationData) error
}

type GuestsHandler struct {
	Registrations *registrations.Service
	Events        *events.Service
	Users         *users.Service
	Notifier      *notify.Orchestrator
	Email         GuestEmailer
}

func NewGuestsHandler(registrationService *registrations.Service, eventService *events.Service, userService *users.Service, notifier *notify.Orchestrator, emailer GuestEmailer) *GuestsHandler {
	return &GuestsHandler{
		Registrations: registrationService,
		Events:        eventService,
		Users:         userService,
		Notifier:      notifier,
		Email:         emailer,
	}
}

type guestSignupRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"max=50"`
	Role  string `json:"role" validate:"required,max=100"`
}

// Signup registers an unauthenticated guest for an event role. Guests
// have no account, so the confirmation email is their only record.
func (h *GuestsHandler) Signup(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Registrations == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	id, ok := pathULID(w, r, "id")
	if !ok {
		return
	}

	var req guestSignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	guest, err := h.Registrations.GuestSignup(r.Context(), id, registrations.GuestSignupInput{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Role:  req.Role,
	})
	if err != nil {
		writeRegistrationError(w, r, err)
		return
	}

	h.sendConfirmation(r.Context(), id, guest)

	respond.JSON(w, http.StatusCreated, newGuestRegistrationResponse(guest))
}

func (h *GuestsHandler) sendConfirmation(ctx context.Context, eventID string, guest *registrations.GuestRegistration) {
	if h.Email == nil || h.Events == nil {
		return
	}

	logger := zerolog.Ctx(ctx)
	event, err := h.Events.Get(ctx, eventID)
	if err != nil {
		logger.Error().Err(err).Str("event_id", eventID).Msg("load event for guest confirmation failed")
		return
	}

	err = h.Email.SendGuestConfirmation(ctx, guest.Email, email.GuestConfirmationData{
		Name:       guest.Name,
		EventTitle: event.Title,
		EventDate:  event.Date,
		StartTime:  event.StartTime,
		Location:   event.Location,
		Role:       guest.Role,
	})
	if err != nil {
		logger.Warn().Err(err).
			Str("event_id", eventID).
			Str("guest_id", guest.ID).
			Msg("guest confirmation email failed")
	}
}

type migrateGuestsResponse struct {
	Migrated []string `json:"migrated"`
	Skipped  []string `json:"skipped"`
}

// Migrate converts the caller's active guest registrations into user
// registrations. Rows that would collide with an existing registration
// are skipped and reported.
func (h *GuestsHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Registrations == nil || h.Users == nil {
		respond.Error(w, r, http.StatusInternalServerError, "", nil)
		return
	}

	claims := middleware.Claims(r)
	user, err := h.Users.Get(r.Context(), claims.UserID())
	if err != nil {
		writeUserError(w, r, err)
		return
	}

	result, err := h.Registrations.MigrateGuests(r.Context(), user.ID, user.Email)
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, "", err)
		return
	}

	if len(result.Migrated) > 0 && h.Notifier != nil {
		title, body := guestMigratedNotice(len(result.Migrated))
		if _, err := h.Notifier.Deliver(r.Context(), notify.Input{
			Kind:       messages.KindGuestMigrated,
			Title:      title,
			Body:       body,
			ActorID:    user.ID,
			Recipients: []string{user.ID},
		}); err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).
				Str("user_id", user.ID).
				Msg("guest migration fan-out failed")
		}
	}

	respond.JSON(w, http.StatusOK, migrateGuestsResponse{
		Migrated: result.Migrated,
		Skipped:  result.Skipped,
	})
}
